package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"
	// Batches above this size go through the multipart uploader.
	multipartThreshold = 8 << 20
)

// EventArchiver implements domain.Archiver. It copies a window of the event
// log to one JSONL object and records the export in the audit log. Events are
// not removed from the ledger.
type EventArchiver struct {
	events domain.EventArchiveStore
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
}

// NewArchiver creates an EventArchiver.
func NewArchiver(events domain.EventArchiveStore, writer domain.BlobWriter, audit domain.AuditStore) *EventArchiver {
	return &EventArchiver{events: events, writer: writer, audit: audit}
}

// WithReader lets the archiver skip windows that were already exported.
func (a *EventArchiver) WithReader(r domain.BlobReader) *EventArchiver {
	a.reader = r
	return a
}

// ArchivePath returns the object key for a window ending at until:
//
//	events/2026/10/18/1792281600.jsonl
func ArchivePath(until time.Time) string {
	u := until.UTC()
	return fmt.Sprintf("events/%04d/%02d/%02d/%d.jsonl", u.Year(), int(u.Month()), u.Day(), u.Unix())
}

// ArchiveEvents exports events created in [since, until) and returns how
// many were written. An empty window writes nothing.
func (a *EventArchiver) ArchiveEvents(ctx context.Context, since, until time.Time) (int64, error) {
	path := ArchivePath(until)
	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive events: %w", err)
		}
		if exists {
			return 0, nil
		}
	}

	events, err := a.events.ListEventsBetween(ctx, since, until)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	lines := make([]domain.EventJSON, len(events))
	for i, e := range events {
		lines[i] = e.JSON()
	}
	buf, err := marshalJSONL(lines)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), MinPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	count := int64(len(events))
	if err := a.audit.Log(ctx, "archive.events", map[string]any{
		"path":  path,
		"count": count,
		"since": since.UTC().Format(time.RFC3339),
		"until": until.UTC().Format(time.RFC3339),
		"bytes": len(buf),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive events audit: %w", err)
	}
	return count, nil
}

// marshalJSONL writes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*EventArchiver)(nil)
