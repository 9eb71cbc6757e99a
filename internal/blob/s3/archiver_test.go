package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/settled/internal/domain"
)

// memBlobs is an in-memory bucket.
type memBlobs struct {
	objects map[string][]byte
	puts    int
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Put(_ context.Context, path string, data []byte, _ string) error {
	m.objects[path] = bytes.Clone(data)
	m.puts++
	return nil
}

func (m *memBlobs) Get(_ context.Context, path string) ([]byte, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, domain.ErrNotFound)
	}
	return b, nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

type memAudit struct {
	events  []string
	entries []domain.AuditEntry
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return a.entries, nil
}

func TestArchiveSettlementOnce(t *testing.T) {
	blobs := newMemBlobs()
	audit := &memAudit{}
	a := NewArchiver(blobs, audit)
	ctx := context.Background()

	path, err := a.ArchiveSettlement(ctx, 7, []byte(`{"market":{"id":7}}`))
	if err != nil {
		t.Fatal(err)
	}
	if path != "settlements/market-7.json" {
		t.Fatalf("path = %q", path)
	}
	if _, err := a.ArchiveSettlement(ctx, 7, []byte(`{"changed":true}`)); err != nil {
		t.Fatal(err)
	}
	if blobs.puts != 1 || len(audit.events) != 1 {
		t.Fatalf("puts = %d, audit = %v: a second archive must be a no-op", blobs.puts, audit.events)
	}

	got, err := a.FetchSettlement(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"market":{"id":7}}` {
		t.Fatalf("fetched %s", got)
	}
	if _, err := a.FetchSettlement(ctx, 8); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing report err = %v, want ErrNotFound", err)
	}
	list, err := a.ListSettlements(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("listed %d reports, want 1", len(list))
	}
}

func TestArchiveAuditWritesJSONL(t *testing.T) {
	blobs := newMemBlobs()
	audit := &memAudit{entries: []domain.AuditEntry{
		{ID: 1, Event: "place_order"},
		{ID: 2, Event: "claim"},
	}}
	a := NewArchiver(blobs, audit)
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	n, err := a.ArchiveAudit(context.Background(), cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("archived %d entries, want 2", n)
	}
	data := blobs.objects["audit/2026-06-01.jsonl"]
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Fatalf("jsonl has %d lines, want 2", lines)
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		ssl  bool
		want string
	}{
		{"minio:9000", false, "http://minio:9000"},
		{"e2.example.com", true, "https://e2.example.com"},
		{"https://r2.example.com", false, "https://r2.example.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.ssl); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.ssl, got, tt.want)
		}
	}
}
