// Package uploads stores post attachments on local disk and serves them
// back under a public prefix.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/stokaro/trustboard/core/apperr"
)

// FormField is the multipart field holding the files.
const FormField = "files"

// URLPrefix is the public path files are served under.
const URLPrefix = "/uploads/"

const (
	DefaultMaxBytes = 10 << 20
	DefaultMaxFiles = 5
	// formOverhead bounds the non-file part of a multipart body.
	formOverhead = 1 << 20
)

// DefaultAllowedExt is the extension allow-list used when none is configured.
var DefaultAllowedExt = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".pdf"}

const (
	MsgTooLarge      = "파일 크기가 너무 큽니다."
	MsgTooMany       = "첨부 파일 개수가 너무 많습니다."
	MsgBadExtension  = "허용되지 않는 파일 형식입니다."
	MsgMalformedForm = "잘못된 요청 형식입니다."
)

// Options configure a Storage.
type Options struct {
	Dir        string
	MaxBytes   int64
	MaxFiles   int
	AllowedExt []string
}

// Storage writes uploaded files into a directory.
type Storage struct {
	dir        string
	maxBytes   int64
	maxFiles   int
	allowedExt []string
	logger     *slog.Logger
}

// New creates the upload directory if needed and returns a Storage for it.
func New(opts Options) (*Storage, error) {
	if opts.Dir == "" {
		return nil, errors.New("upload directory is required")
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if len(opts.AllowedExt) == 0 {
		opts.AllowedExt = DefaultAllowedExt
	}
	allowed := make([]string, 0, len(opts.AllowedExt))
	for _, ext := range opts.AllowedExt {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed = append(allowed, ext)
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Storage{
		dir:        opts.Dir,
		maxBytes:   opts.MaxBytes,
		maxFiles:   opts.MaxFiles,
		allowedExt: allowed,
		logger:     slog.Default(),
	}, nil
}

// WithLogger sets the logger for the storage
func (s *Storage) WithLogger(l *slog.Logger) *Storage {
	tmp := *s
	tmp.logger = l
	return &tmp
}

// Dir returns the directory files are written to.
func (s *Storage) Dir() string {
	return s.dir
}

// ParseForm reads a multipart request body within the configured limits.
func (s *Storage) ParseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes*int64(s.maxFiles)+formOverhead)
	if err := r.ParseMultipartForm(formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation(MsgTooLarge)
		}
		return apperr.Validation(MsgMalformedForm)
	}
	return nil
}

// SaveForm stores the files of a parsed multipart request and returns their
// public paths in upload order.
func (s *Storage) SaveForm(r *http.Request) ([]string, error) {
	if r.MultipartForm == nil {
		return []string{}, nil
	}
	return s.Save(r.MultipartForm.File[FormField])
}

// Save validates and stores files. Nothing is written unless every file
// passes validation, and a failed write removes the files already stored.
func (s *Storage) Save(files []*multipart.FileHeader) ([]string, error) {
	if len(files) > s.maxFiles {
		return nil, apperr.Validation(MsgTooMany)
	}
	for _, fh := range files {
		if fh.Size > s.maxBytes {
			return nil, apperr.Validation(MsgTooLarge)
		}
		if !slices.Contains(s.allowedExt, strings.ToLower(filepath.Ext(fh.Filename))) {
			return nil, apperr.Validation(MsgBadExtension)
		}
	}

	paths := make([]string, 0, len(files))
	for _, fh := range files {
		p, err := s.store(fh)
		if err != nil {
			s.Remove(context.Background(), paths)
			return nil, apperr.Internal(err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (s *Storage) store(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	name := uuid.NewString() + strings.ToLower(filepath.Ext(fh.Filename))
	dst, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := io.Copy(dst, io.LimitReader(src, s.maxBytes+1)); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return URLPrefix + name, nil
}

// Remove deletes stored files by public path. Failures are logged and
// paths outside the upload prefix are ignored.
func (s *Storage) Remove(_ context.Context, paths []string) {
	for _, p := range paths {
		name, ok := strings.CutPrefix(p, URLPrefix)
		if !ok || name == "" || name != path.Base(name) {
			s.logger.Warn("Refusing to remove attachment outside upload directory", "path", p)
			continue
		}
		err := os.Remove(filepath.Join(s.dir, name))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("Failed to remove attachment", "path", p, "error", err)
		}
	}
}

// Handler serves stored files under URLPrefix without directory listings.
func (s *Storage) Handler() http.Handler {
	files := http.StripPrefix(URLPrefix, http.FileServer(http.Dir(s.dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
