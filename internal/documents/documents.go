package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/buildtall-systems/printq/internal/domain"
)

// MaxSize is the largest accepted upload.
const MaxSize = 10 << 20

// ErrUnknownRef is returned for a reference the store never issued.
var ErrUnknownRef = errors.New("unknown document reference")

// File is an upload as received from the customer.
type File struct {
	Name string
	Data []byte
}

// Document describes a stored upload.
type Document struct {
	Ref  string
	Name string
	Size int64
}

// Store keeps uploaded documents and hands out URLs to them.
type Store interface {
	Upload(ctx context.Context, ownerID string, f File) (Document, error)
	AccessURL(ctx context.Context, ref string) (string, error)
}

// Validate accepts non-empty PDFs up to MaxSize.
func Validate(f File) error {
	if strings.TrimSpace(f.Name) == "" {
		return domain.Invalid(domain.ErrInvalidDocument, "document name is required")
	}
	if len(f.Data) == 0 {
		return domain.Invalid(domain.ErrInvalidDocument, "document %s is empty", f.Name)
	}
	if len(f.Data) > MaxSize {
		return domain.Invalid(domain.ErrInvalidDocument, "document %s exceeds %d MB", f.Name, MaxSize>>20)
	}
	if !isPDF(f.Data) {
		return domain.Invalid(domain.ErrInvalidDocument, "document %s is not a PDF", f.Name)
	}
	return nil
}

func isPDF(data []byte) bool {
	return http.DetectContentType(data) == "application/pdf" || bytes.HasPrefix(data, []byte("%PDF-"))
}

// Dir stores documents as files under a directory.
type Dir struct {
	root string
}

// NewDir creates root if needed.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving documents dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating documents dir: %w", err)
	}
	return &Dir{root: abs}, nil
}

func (d *Dir) Upload(ctx context.Context, ownerID string, f File) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if err := Validate(f); err != nil {
		return Document{}, err
	}
	if ownerID == "" {
		return Document{}, errors.New("owner is required")
	}

	ref := uuid.NewString()
	if err := os.WriteFile(d.path(ref), f.Data, 0o640); err != nil {
		return Document{}, fmt.Errorf("writing document: %w", err)
	}
	return Document{Ref: ref, Name: filepath.Base(f.Name), Size: int64(len(f.Data))}, nil
}

func (d *Dir) AccessURL(_ context.Context, ref string) (string, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return "", ErrUnknownRef
	}
	p := d.path(ref)
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrUnknownRef
		}
		return "", fmt.Errorf("stat document: %w", err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String(), nil
}

func (d *Dir) path(ref string) string {
	return filepath.Join(d.root, ref+".pdf")
}
