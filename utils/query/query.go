package query

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Pagination reads page and limit from the query string, clamped to sane
// bounds.
func Pagination(c *fiber.Ctx) (page, limit int) {
	page = positive(c.Query("page"), 1)
	limit = positive(c.Query("limit"), DefaultLimit)
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// Offset is the row offset of page.
func Offset(page, limit int) int {
	return (page - 1) * limit
}

// UintParam reads a positive integer route or query value.
func UintParam(raw string) (uint, bool) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

func positive(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
