package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// AuditPruner is implemented by audit stores that can drop archived rows.
type AuditPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver implements domain.Archiver by serializing aged rows to JSONL
// objects. Objects already present are not rewritten, so a rerun with the
// same cutoff is a no-op.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	stores domain.Stores
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver. reader may be nil to skip the existence
// check.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, stores domain.Stores) *Archiver {
	return &Archiver{writer: writer, reader: reader, stores: stores}
}

// ArchiveOpportunities uploads opportunities detected before the cutoff.
func (a *Archiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.stores.Opportunities.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list opportunities: %w", err)
	}
	return upload(ctx, a, "opportunities", before, opps)
}

// ArchiveOrders uploads orders created before the cutoff.
func (a *Archiver) ArchiveOrders(ctx context.Context, before time.Time) (int64, error) {
	orders, err := a.stores.Orders.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list orders: %w", err)
	}
	return upload(ctx, a, "orders", before, orders)
}

// ArchiveAudit uploads audit rows written before the cutoff and, when the
// store supports it, deletes them once the upload succeeded.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	until := before.Add(-time.Nanosecond)
	entries, err := a.stores.Audit.List(ctx, domain.ListOpts{Until: &until})
	if err != nil {
		return 0, fmt.Errorf("s3blob: list audit: %w", err)
	}
	n, err := upload(ctx, a, "audit", before, entries)
	if err != nil || n == 0 {
		return n, err
	}
	if pruner, ok := a.stores.Audit.(AuditPruner); ok {
		if _, err := pruner.DeleteBefore(ctx, before); err != nil {
			return n, fmt.Errorf("s3blob: prune audit: %w", err)
		}
	}
	return n, nil
}

func upload[T any](ctx context.Context, a *Archiver, kind string, before time.Time, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	path := archivePath(kind, before)
	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return 0, err
		}
		if exists {
			return 0, nil
		}
	}

	data, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: marshal %s: %w", kind, err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/x-ndjson"); err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

// archivePath builds archive/{kind}/{yyyy}/{mm}/{kind}_before_{rfc3339}.jsonl.
func archivePath(kind string, before time.Time) string {
	before = before.UTC()
	return fmt.Sprintf("archive/%s/%04d/%02d/%s_before_%s.jsonl",
		kind, before.Year(), int(before.Month()), kind, before.Format("20060102T150405Z"))
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
