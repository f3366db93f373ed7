package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var ErrOutsideRoot = errors.New("path escapes the configured root")

// IsPDF reports whether name has a .pdf extension, in any case.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// ListPDFs returns the PDF file names directly inside dir, sorted by name.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && IsPDF(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// CountPDFs returns the number of PDFs directly inside dir.
func CountPDFs(dir string) (int, error) {
	names, err := ListPDFs(dir)
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// TrimExt returns name without its extension.
func TrimExt(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// CopyFile copies src into dstDir under the same base name, replacing any
// existing file. The copy is written to a temporary file in dstDir and
// renamed, so readers never see a partial file.
func CopyFile(src, dstDir string) (string, error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dstDir, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	target := filepath.Join(dstDir, filepath.Base(src))
	tmp := filepath.Join(dstDir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(src), uuid.NewString()[:8]))

	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}

	written, err := io.Copy(out, in)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to copy %s: %w", filepath.Base(src), err)
	}

	if info, statErr := in.Stat(); statErr == nil && info.Size() != written {
		os.Remove(tmp)
		return "", fmt.Errorf("short copy of %s: wrote %d of %d bytes", filepath.Base(src), written, info.Size())
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return target, nil
}

// SafeJoin joins rel onto root and rejects results outside root.
func SafeJoin(root, rel string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(absRoot, filepath.Clean(string(filepath.Separator)+rel))
	if joined != absRoot && !strings.HasPrefix(joined, absRoot+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return joined, nil
}
