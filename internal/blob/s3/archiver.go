package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/settled/internal/domain"
)

// Archiver stores finalized-market reports and audit exports.
//
// Key schema:
//
//	settlements/market-{id}.json
//	audit/{YYYY-MM-DD}.jsonl
type Archiver struct {
	blobs domain.BlobStore
	audit domain.AuditStore
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(blobs domain.BlobStore, audit domain.AuditStore) *Archiver {
	return &Archiver{blobs: blobs, audit: audit}
}

func settlementPath(marketID uint64) string {
	return fmt.Sprintf("settlements/market-%d.json", marketID)
}

// ArchiveSettlement uploads the report of a finalized market and returns
// its key. A report already archived is left untouched.
func (a *Archiver) ArchiveSettlement(ctx context.Context, marketID uint64, report []byte) (string, error) {
	path := settlementPath(marketID)
	exists, err := a.blobs.Exists(ctx, path)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive settlement %d: %w", marketID, err)
	}
	if exists {
		return path, nil
	}

	if err := a.blobs.Put(ctx, path, report, "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive settlement %d: %w", marketID, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.settlement", map[string]any{
			"market_id": marketID,
			"path":      path,
			"size":      len(report),
		}); err != nil {
			return path, fmt.Errorf("s3blob: archive settlement audit log: %w", err)
		}
	}
	return path, nil
}

// FetchSettlement returns an archived report.
func (a *Archiver) FetchSettlement(ctx context.Context, marketID uint64) ([]byte, error) {
	return a.blobs.Get(ctx, settlementPath(marketID))
}

// ListSettlements returns every archived report.
func (a *Archiver) ListSettlements(ctx context.Context) ([]domain.BlobInfo, error) {
	return a.blobs.List(ctx, "settlements/")
}

// ArchiveAudit exports audit entries older than before as JSONL and
// returns how many were written.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (int, error) {
	if a.audit == nil {
		return 0, nil
	}
	entries, err := a.audit.List(ctx, domain.ListOpts{Until: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}
	path := fmt.Sprintf("audit/%s.jsonl", before.UTC().Format("2006-01-02"))
	if err := a.blobs.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}
	return len(entries), nil
}

func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

var _ domain.SettlementArchiver = (*Archiver)(nil)
