package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrUnsupportedType = errors.New("only .png, .jpg and .jpeg formats are allowed")
	ErrTooLarge        = errors.New("file exceeds the upload size limit")
	ErrNotStored       = errors.New("url does not point into the upload store")
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
}

// AllowedContentType reports whether uploads of contentType are accepted.
func AllowedContentType(contentType string) bool {
	_, ok := allowedTypes[normalizeType(contentType)]
	return ok
}

func normalizeType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// LocalStore writes uploads under a directory served at baseURL.
type LocalStore struct {
	dir     string
	baseURL string
	maxSize int64
	now     func() time.Time
	logger  *zerolog.Logger
}

func NewLocalStore(dir, baseURL string, maxSize int64, logger *zerolog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	l := logger.With().Str("component", "file_store").Logger()
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		maxSize: maxSize,
		now:     time.Now,
		logger:  &l,
	}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

// Save stores r under a unique name and returns its public URL. The original
// file name only contributes a sanitized stem.
func (s *LocalStore) Save(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	ext, ok := allowedTypes[normalizeType(contentType)]
	if !ok {
		return "", ErrUnsupportedType
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fileName := fmt.Sprintf("%d-%s-%s%s", s.now().UnixMilli(), uuid.NewString()[:8], stem(name), ext)
	full := filepath.Join(s.dir, fileName)

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	n, err := io.Copy(f, src)
	closeErr := f.Close()
	if err == nil && s.maxSize > 0 && n > s.maxSize {
		err = ErrTooLarge
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(full)
		if errors.Is(err, ErrTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("write upload: %w", err)
	}

	s.logger.Debug().Str("file", fileName).Int64("bytes", n).Msg("Upload stored")
	return s.baseURL + "/" + path.Base(fileName), nil
}

// Remove deletes a file previously returned by Save. A file that is
// already gone is not an error.
func (s *LocalStore) Remove(_ context.Context, url string) error {
	name, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || name == "" || name != path.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("%w: %s", ErrNotStored, url)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload: %w", err)
	}
	s.logger.Debug().Str("file", name).Msg("Upload removed")
	return nil
}

func stem(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteByte('-')
		}
		if b.Len() >= 40 {
			break
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}
