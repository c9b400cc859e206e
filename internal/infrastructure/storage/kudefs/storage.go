package kudefs

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
)

const dataURLPrefix = "data:"

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// PageCounter validates a PDF and returns its page count.
type PageCounter func(rs io.ReadSeeker) (int, error)

// Storage keeps KUDE PDFs that arrived inline so they can be served by URL.
type Storage struct {
	basePath   string
	publicPath string
	pages      PageCounter
	now        func() time.Time
}

type Options struct {
	// PublicPath prefixes the keys returned by Materialize, e.g. "/v1/kude/files/".
	PublicPath  string
	PageCounter PageCounter
}

func New(basePath string, options Options) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/kude"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create kude dir: %w", err)
	}
	pages := options.PageCounter
	if pages == nil {
		pages = pdfcpuPageCount
	}
	return &Storage{
		basePath:   basePath,
		publicPath: options.PublicPath,
		pages:      pages,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Materialize stores data: URLs and returns their public path. http(s) URLs
// already point at the ERP and are returned as they are.
func (s *Storage) Materialize(ctx context.Context, label, url string) (string, error) {
	url = strings.TrimSpace(url)
	switch {
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return url, nil
	case strings.HasPrefix(url, dataURLPrefix):
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "materialize kude", fmt.Errorf("unsupported url scheme"))
	}

	content, err := decodeDataURL(url)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "materialize kude", err)
	}
	pageCount, err := s.pages(bytes.NewReader(content))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "materialize kude", fmt.Errorf("invalid pdf: %w", err))
	}

	key := fmt.Sprintf("%s-%s.pdf", sanitizeKey(label), s.now().Format("20060102T150405.000"))
	if err := s.Save(ctx, key, bytes.NewReader(content)); err != nil {
		return "", err
	}
	slog.Info("kude_stored", "key", key, "pages", pageCount, "bytes", len(content))
	return s.publicPath + key, nil
}

func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	_, copyErr := io.Copy(f, data)
	closeErr := f.Close()
	if copyErr == nil && closeErr == nil {
		return nil
	}
	// A partial PDF must not be served later.
	_ = os.Remove(path)
	if copyErr != nil {
		return fmt.Errorf("write file: %w", copyErr)
	}
	return fmt.Errorf("close file: %w", closeErr)
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrNotFound, "open kude", err)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *Storage) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || key != sanitizeKey(key) {
		return "", domain.WrapError(domain.ErrInvalidInput, "kude key", fmt.Errorf("invalid key %q", key))
	}
	return filepath.Join(s.basePath, key), nil
}

func decodeDataURL(url string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(url, dataURLPrefix), ",")
	if !ok {
		return nil, fmt.Errorf("malformed data url")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("data url is not base64 encoded")
	}
	if mediaType := strings.TrimSuffix(meta, ";base64"); mediaType != "" && mediaType != "application/pdf" {
		return nil, fmt.Errorf("unexpected media type %q", mediaType)
	}
	content, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	return content, nil
}

func sanitizeKey(label string) string {
	out := strings.Trim(unsafeKeyChars.ReplaceAllString(strings.TrimSpace(label), "_"), "._")
	if out == "" {
		return "kude"
	}
	return out
}

func pdfcpuPageCount(rs io.ReadSeeker) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(rs, conf)
}

func init() {
	// pdfcpu otherwise writes a config dir under $HOME on first use.
	api.DisableConfigDir()
}
