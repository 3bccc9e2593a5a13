package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/starstake/stakeboard/internal/domain"
)

// batchLimit caps how many rows a single archive run uploads. When a run
// hits the cap, the delete cutoff shrinks to the last uploaded row so
// nothing leaves the database without first landing in object storage.
const batchLimit = 10000

// multipartThreshold switches uploads to the multipart path. 8 MiB keeps
// single-shot puts for typical months and chunks the outliers.
const multipartThreshold = 8 * 1024 * 1024

// ActionArchiveSource provides the journal reads and deletes the archiver
// needs. The Postgres ActionStore satisfies it.
type ActionArchiveSource interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.ActionRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditArchiveSource provides the audit-log reads and deletes the archiver
// needs. The Postgres AuditStore satisfies it.
type AuditArchiveSource interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.AuditEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchiveImpl implements domain.Archiver: aged journal and audit rows are
// serialized to NDJSON, uploaded, and only then deleted from Postgres. A
// failed delete leaves the rows in place; the next run re-uploads them to
// a fresh object, so duplicates across objects are possible but data loss
// is not.
type ArchiveImpl struct {
	writer   domain.BlobWriter
	verifier domain.BlobReader
	actions  ActionArchiveSource
	audit    AuditArchiveSource
	auditLog domain.AuditStore
	bus      domain.EventBus
	logger   *slog.Logger
}

// NewArchiver creates an ArchiveImpl. bus may be nil when no event fan-out
// is wanted (CLI sync mode).
func NewArchiver(
	writer domain.BlobWriter,
	actions ActionArchiveSource,
	audit AuditArchiveSource,
	auditLog domain.AuditStore,
	bus domain.EventBus,
	logger *slog.Logger,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:   writer,
		actions:  actions,
		audit:    audit,
		auditLog: auditLog,
		bus:      bus,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// WithVerifier makes each run confirm the uploaded object is readable
// before any rows are deleted. An upload the backend acknowledged but
// cannot serve back would otherwise take its rows with it.
func (a *ArchiveImpl) WithVerifier(reader domain.BlobReader) *ArchiveImpl {
	a.verifier = reader
	return a
}

// ArchiveActions uploads journal rows older than the cutoff to
// archive/actions/YYYY-MM/<run-timestamp>.ndjson and deletes them. Returns
// the number of rows uploaded.
func (a *ArchiveImpl) ArchiveActions(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.actions.ListBefore(ctx, before, batchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive actions query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	cutoff := before
	if len(records) == batchLimit {
		// Truncated run: only delete up to the last uploaded row.
		cutoff = records[len(records)-1].CreatedAt
	}

	buf, err := marshalNDJSON(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive actions marshal: %w", err)
	}

	path := archivePath("actions", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive actions upload: %w", err)
	}
	if err := a.verifyUpload(ctx, path); err != nil {
		return 0, fmt.Errorf("s3blob: archive actions verify: %w", err)
	}

	deleted, err := a.actions.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive actions delete after upload to %s: %w", path, err)
	}

	count := int64(len(records))
	a.finishRun(ctx, "archive.actions", path, count, deleted, before)
	return count, nil
}

// ArchiveAudit uploads audit entries older than the cutoff to
// archive/audit/YYYY-MM/<run-timestamp>.ndjson and deletes them. Returns
// the number of rows uploaded. The completion entry it writes afterwards
// is newer than the cutoff, so it survives its own run.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before, batchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	cutoff := before
	if len(entries) == batchLimit {
		cutoff = entries[len(entries)-1].CreatedAt
	}

	buf, err := marshalNDJSON(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}
	if err := a.verifyUpload(ctx, path); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit verify: %w", err)
	}

	deleted, err := a.audit.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit delete after upload to %s: %w", path, err)
	}

	count := int64(len(entries))
	a.finishRun(ctx, "archive.audit", path, count, deleted, before)
	return count, nil
}

// upload picks the single-shot or multipart path based on payload size.
func (a *ArchiveImpl) upload(ctx context.Context, path string, buf []byte) error {
	if len(buf) > multipartThreshold {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

// verifyUpload checks the object back in storage when a verifier is set.
func (a *ArchiveImpl) verifyUpload(ctx context.Context, path string) error {
	if a.verifier == nil {
		return nil
	}
	ok, err := a.verifier.Exists(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("object %s missing after upload", path)
	}
	return nil
}

// finishRun records the audit trail and fans the completion event out to
// subscribers. Neither failure undoes the archive, so both are Warn-only.
func (a *ArchiveImpl) finishRun(ctx context.Context, event, path string, count, deleted int64, before time.Time) {
	a.logger.InfoContext(ctx, "archive run complete",
		slog.String("event", event),
		slog.String("path", path),
		slog.Int64("uploaded", count),
		slog.Int64("deleted", deleted),
	)

	if err := a.auditLog.Log(ctx, event, map[string]any{
		"path":    path,
		"count":   count,
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		a.logger.WarnContext(ctx, "archive audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}

	if a.bus != nil {
		a.bus.Publish(domain.Event{
			Kind:   domain.EventArchiveCompleted,
			At:     time.Now().UTC(),
			Reason: path,
			Count:  count,
		})
	}
}

// archivePath builds the object key for one archive run, partitioned by
// the year-month of the cutoff with a run timestamp for uniqueness.
//
//	archive/actions/2026-08/20260825T120000Z.ndjson
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%s.ndjson",
		kind,
		before.Format("2006-01"),
		time.Now().UTC().Format("20060102T150405Z"),
	)
}

// marshalNDJSON serialises a slice of values as newline-delimited JSON.
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalNDJSON[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("ndjson encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
