// Package blob fetches product documents from any afs-supported location
// (file://, mem://, s3://, gs://, http://).
package blob

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"

	"github.com/kailas-cloud/catalogix/internal/domain"
	"github.com/kailas-cloud/catalogix/internal/domain/document"
)

// fs is the consumer interface over afs.Service (ISP).
type fs interface {
	Exists(ctx context.Context, URL string, options ...storage.Option) (bool, error)
	DownloadWithURL(ctx context.Context, URL string, options ...storage.Option) ([]byte, error)
}

// Store resolves document references against a base URL.
type Store struct {
	fs      fs
	baseURL string
}

// New creates a blob store. baseURL may be empty when references are absolute URLs.
func New(service fs, baseURL string) *Store {
	return &Store{fs: service, baseURL: strings.TrimRight(baseURL, "/")}
}

// NewDefault creates a blob store over the default afs service.
func NewDefault(baseURL string) *Store {
	return New(afs.New(), baseURL)
}

// Fetch loads the document behind ref. The content type is derived from the extension;
// unknown extensions yield an empty tag and the extractor sniffs the bytes.
func (s *Store) Fetch(ctx context.Context, ref string) (document.Document, error) {
	location, err := s.resolve(ref)
	if err != nil {
		return document.Document{}, err
	}

	ok, err := s.fs.Exists(ctx, location)
	if err != nil {
		return document.Document{}, fmt.Errorf("check %s: %w", location, err)
	}
	if !ok {
		return document.Document{}, fmt.Errorf("document %s: %w", ref, domain.ErrDocumentNotFound)
	}

	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return document.Document{}, fmt.Errorf("download %s: %w", location, err)
	}
	return document.New(data, contentType(url.Path(location)))
}

// Ping checks that the base location is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.baseURL == "" {
		return nil
	}
	if _, err := s.fs.Exists(ctx, s.baseURL); err != nil {
		return fmt.Errorf("blob store %s: %w", s.baseURL, err)
	}
	return nil
}

func (s *Store) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty document reference: %w", domain.ErrDocumentNotFound)
	}
	if strings.Contains(ref, "://") {
		return ref, nil
	}
	if s.baseURL == "" {
		return "", fmt.Errorf("relative reference %q without documents.base_url: %w", ref, domain.ErrDocumentNotFound)
	}
	if strings.Contains(ref, "..") {
		return "", fmt.Errorf("reference %q escapes base url: %w", ref, domain.ErrDocumentNotFound)
	}
	return url.Join(s.baseURL, strings.TrimLeft(ref, "/")), nil
}

// documentTypes covers extensions the system mime table may lack.
var documentTypes = map[string]string{
	".txt":  "text/plain",
	".csv":  "text/csv",
	".md":   "text/markdown",
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/vnd.ms-excel",
}

func contentType(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if ct, ok := documentTypes[ext]; ok {
		return ct
	}
	return mime.TypeByExtension(ext)
}

// FileURL converts a local path into a file:// reference.
func FileURL(p string) string {
	return file.Scheme + "://" + p
}
