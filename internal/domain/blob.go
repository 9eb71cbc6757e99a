package domain

import (
	"context"
	"time"
)

// BlobInfo describes an archived object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// BlobStore is the object storage the archiver writes to. Get returns
// ErrNotFound for a missing path.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Get(ctx context.Context, path string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// SettlementArchiver stores the final report of a finalized market.
type SettlementArchiver interface {
	ArchiveSettlement(ctx context.Context, marketID uint64, report []byte) (string, error)
}
