package utils

import (
	fiber "github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/booklet-evaluation/utils/response"
)

// MakeHTTPHandleFunc binds deps to a handler that needs them and maps any
// returned error onto the response envelope.
func MakeHTTPHandleFunc[D any](handler func(c *fiber.Ctx, deps D) error, deps D) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := handler(c, deps); err != nil {
			return response.FromError(c, err)
		}
		return nil
	}
}
