package localfs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/fin-extract/internal/core/domain"
)

func TestSaveOpenRoundTrip(t *testing.T) {
	s, err := New(t.TempDir(), "http://localhost:8080/")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	n, err := s.Save(context.Background(), "id_acme.csv", "text/csv", strings.NewReader("Item,2023\n"))
	if err != nil || n != 10 {
		t.Fatalf("Save() = %d, %v", n, err)
	}

	rc, err := s.Open(context.Background(), "id_acme.csv")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "Item,2023\n" {
		t.Fatalf("unexpected body %q", body)
	}

	if got := s.URL("id_acme.csv"); got != "http://localhost:8080/files/id_acme.csv" {
		t.Fatalf("URL() = %s", got)
	}
}

func TestOpenMissingIsNotFound(t *testing.T) {
	s, _ := New(t.TempDir(), "")
	if _, err := s.Open(context.Background(), "nope"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRejectsTraversalKeys(t *testing.T) {
	s, _ := New(t.TempDir(), "")
	for _, key := range []string{"", "../x", "a/b", ".."} {
		if _, err := s.Open(context.Background(), key); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("Open(%q) error = %v, want invalid input", key, err)
		}
	}
}
