package kudefs

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/facturasend-workflow/internal/core/domain"
)

func fixedPages(n int) PageCounter {
	return func(rs io.ReadSeeker) (int, error) {
		raw, err := io.ReadAll(rs)
		if err != nil {
			return 0, err
		}
		if !strings.HasPrefix(string(raw), "%PDF-") {
			return 0, errors.New("missing pdf header")
		}
		return n, nil
	}
}

func newTestStorage(t *testing.T, pages PageCounter) (*Storage, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir, Options{PublicPath: "/v1/kude/files/", PageCounter: pages})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.now = func() time.Time { return time.Date(2026, 10, 14, 8, 30, 0, 0, time.UTC) }
	return s, dir
}

func TestMaterializeStoresDataURL(t *testing.T) {
	s, dir := newTestStorage(t, fixedPages(2))
	body := "%PDF-1.7 fake kude"
	url := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte(body))

	location, err := s.Materialize(context.Background(), "lote-42", url)
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	wantKey := "lote-42-20261014T083000.000.pdf"
	if location != "/v1/kude/files/"+wantKey {
		t.Fatalf("unexpected location %q", location)
	}
	raw, err := os.ReadFile(filepath.Join(dir, wantKey))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(raw) != body {
		t.Fatalf("unexpected stored body %q", raw)
	}

	rc, err := s.Open(context.Background(), wantKey)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	opened, _ := io.ReadAll(rc)
	if string(opened) != body {
		t.Fatalf("unexpected opened body %q", opened)
	}
}

func TestMaterializePassesHTTPURLThrough(t *testing.T) {
	s, _ := newTestStorage(t, fixedPages(1))
	url := "https://erp.example.com/private/files/kude.pdf"

	location, err := s.Materialize(context.Background(), "cdc-01", url)
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if location != url {
		t.Fatalf("expected url passthrough, got %q", location)
	}
}

func TestMaterializeRejectsInvalidContent(t *testing.T) {
	s, _ := newTestStorage(t, fixedPages(1))
	cases := map[string]string{
		"scheme":     "ftp://erp/kude.pdf",
		"no comma":   "data:application/pdf;base64",
		"not base64": "data:application/pdf,plain",
		"media type": "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte("%PDF-")),
		"bad pdf":    "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte("<html>")),
	}
	for name, url := range cases {
		if _, err := s.Materialize(context.Background(), "kude", url); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", name, err)
		}
	}
}

func TestPdfcpuRejectsGarbage(t *testing.T) {
	s, _ := newTestStorage(t, nil)
	url := "data:application/pdf;base64," + base64.StdEncoding.EncodeToString([]byte("definitely not a pdf"))
	if _, err := s.Materialize(context.Background(), "kude", url); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected pdfcpu validation failure, got %v", err)
	}
}

func TestOpenRejectsTraversalAndMissing(t *testing.T) {
	s, _ := newTestStorage(t, fixedPages(1))
	if _, err := s.Open(context.Background(), "../etc/passwd"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid key, got %v", err)
	}
	if _, err := s.Open(context.Background(), "missing.pdf"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type failingReader struct {
	sent bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.sent {
		return 0, errors.New("connection reset")
	}
	r.sent = true
	return copy(p, "%PDF-1.7 partial"), nil
}

func TestSaveRemovesPartialFileOnWriteFailure(t *testing.T) {
	s, dir := newTestStorage(t, fixedPages(1))

	if err := s.Save(context.Background(), "lote-7.pdf", &failingReader{}); err == nil {
		t.Fatalf("expected write error")
	}
	if _, err := os.Stat(filepath.Join(dir, "lote-7.pdf")); !os.IsNotExist(err) {
		t.Fatalf("expected partial file removed, stat error = %v", err)
	}
}
