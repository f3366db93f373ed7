package classifier

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sahilchouksey/booklet-evaluation/utils/apperror"
	"github.com/sahilchouksey/booklet-evaluation/utils/fileutil"
)

// Booklet folders a caller may browse.
const (
	FolderScanned   = "scanned"
	FolderProcessed = "processed"
	FolderRejected  = "rejected"
)

func (s *Service) folderDir(subjectCode, folder string) (string, error) {
	if err := validateSubjectCode(subjectCode); err != nil {
		return "", err
	}
	switch folder {
	case "", FolderScanned:
		return s.layout.ScannedDir(subjectCode), nil
	case FolderProcessed:
		return s.layout.ProcessedDir(subjectCode), nil
	case FolderRejected:
		return s.layout.RejectedDir(subjectCode), nil
	}
	return "", apperror.Validation("Unknown folder %q", folder)
}

// ListBooklets lists the PDFs in one of a subject's booklet folders. A
// folder that does not exist yet is empty.
func (s *Service) ListBooklets(subjectCode, folder string) ([]string, error) {
	dir, err := s.folderDir(subjectCode, folder)
	if err != nil {
		return nil, err
	}
	names, err := fileutil.ListPDFs(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, apperror.IO("failed to list booklets", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// BookletPath returns the path of a named booklet for serving.
func (s *Service) BookletPath(subjectCode, folder, bookletName string) (string, error) {
	if err := validateBookletName(bookletName); err != nil {
		return "", err
	}
	dir, err := s.folderDir(subjectCode, folder)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, bookletName)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", apperror.NotFound("Booklet %s not found", bookletName)
	}
	return path, nil
}

// RemoveRejected deletes rejected booklets of a subject from both the
// rejected folder and the scanned folder, so they are not classified again.
// With an empty bookletName every rejected booklet is removed.
func (s *Service) RemoveRejected(ctx context.Context, subjectCode, bookletName string) ([]string, error) {
	if err := validateSubjectCode(subjectCode); err != nil {
		return nil, err
	}

	var names []string
	if bookletName != "" {
		if err := validateBookletName(bookletName); err != nil {
			return nil, err
		}
		if _, err := os.Stat(filepath.Join(s.layout.RejectedDir(subjectCode), bookletName)); err != nil {
			return nil, apperror.NotFound("Rejected booklet %s not found", bookletName)
		}
		names = []string{bookletName}
	} else {
		listed, err := fileutil.ListPDFs(s.layout.RejectedDir(subjectCode))
		if err != nil && !os.IsNotExist(err) {
			return nil, apperror.IO("failed to list rejected booklets", err)
		}
		names = listed
	}

	removed := make([]string, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		for _, dir := range []string{s.layout.RejectedDir(subjectCode), s.layout.ScannedDir(subjectCode)} {
			if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
				return removed, apperror.IO("failed to remove "+name, err)
			}
		}
		removed = append(removed, name)
	}

	log.Infof("[CLASSIFY] %s: removed %d rejected booklets", subjectCode, len(removed))
	return removed, nil
}

func validateSubjectCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return apperror.Validation("Subject code is required.")
	}
	if strings.ContainsAny(code, `/\`) || code == "." || code == ".." {
		return apperror.Validation("Invalid subject code %q", code)
	}
	return nil
}

func validateBookletName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperror.Validation("Booklet name is required.")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return apperror.Validation("Invalid booklet name %q", name)
	}
	if !fileutil.IsPDF(name) {
		return apperror.Validation("Booklet %s is not a PDF", name)
	}
	return nil
}
