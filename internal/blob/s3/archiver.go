package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

const auditPageSize = 500

var _ domain.Archiver = (*Archiver)(nil)

// Archiver exports closed positions and audit entries to JSONL objects under
// archive/{kind}/YYYY-MM.jsonl, one object per calendar month of the record.
// Re-running over the same window is idempotent: records already present in
// the month's object are skipped. Nothing is deleted from the primary store.
type Archiver struct {
	writer    domain.BlobWriter
	reader    domain.BlobReader
	positions domain.PositionStore
	audit     domain.AuditStore
}

// NewArchiver creates an Archiver. reader may be nil, in which case each run
// overwrites the month's object with the records of that run.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, positions domain.PositionStore, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, reader: reader, positions: positions, audit: audit}
}

// ArchivePositions exports positions closed before the cutoff and returns how
// many were newly written.
func (a *Archiver) ArchivePositions(ctx context.Context, before time.Time) (int64, error) {
	positions, err := a.positions.ListClosedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions query: %w", err)
	}
	months := groupByMonth(positions, func(p domain.Position) time.Time {
		if p.ClosedAt != nil {
			return *p.ClosedAt
		}
		return p.CreatedAt
	})

	var total int64
	for _, m := range sortedKeys(months) {
		path := archivePath("positions", m)
		n, err := mergeJSONL(ctx, a.reader, a.writer, path, months[m], func(p domain.Position) string { return p.ID })
		if err != nil {
			return total, err
		}
		total += n
	}
	if total > 0 {
		a.record(ctx, "archive.positions", before, total)
	}
	return total, nil
}

// ArchiveAudit exports audit entries created before the cutoff.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	var entries []domain.AuditEntry
	for offset := 0; ; offset += auditPageSize {
		page, err := a.audit.List(ctx, domain.ListOpts{Limit: auditPageSize, Offset: offset, Until: &before})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
		}
		entries = append(entries, page...)
		if len(page) < auditPageSize {
			break
		}
	}
	months := groupByMonth(entries, func(e domain.AuditEntry) time.Time { return e.CreatedAt })

	var total int64
	for _, m := range sortedKeys(months) {
		path := archivePath("audit", m)
		n, err := mergeJSONL(ctx, a.reader, a.writer, path, months[m], func(e domain.AuditEntry) string {
			return strconv.FormatInt(e.ID, 10)
		})
		if err != nil {
			return total, err
		}
		total += n
	}
	if total > 0 {
		a.record(ctx, "archive.audit", before, total)
	}
	return total, nil
}

func (a *Archiver) record(ctx context.Context, event string, before time.Time, count int64) {
	// Best effort: the export already succeeded.
	_ = a.audit.Log(ctx, event, map[string]any{
		"count":  count,
		"before": before.UTC().Format(time.RFC3339),
	})
}

// mergeJSONL appends the records not yet present in the object at path and
// uploads the result. It returns how many records were appended.
func mergeJSONL[T any](ctx context.Context, r domain.BlobReader, w domain.BlobWriter, path string, records []T, key func(T) string) (int64, error) {
	var buf bytes.Buffer
	seen := make(map[string]bool)

	if r != nil {
		body, err := r.Get(ctx, path)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return 0, fmt.Errorf("s3blob: read %s: %w", path, err)
		default:
			err := scanJSONL(body, &buf, func(rec T) { seen[key(rec)] = true })
			body.Close()
			if err != nil {
				return 0, fmt.Errorf("s3blob: read %s: %w", path, err)
			}
		}
	}

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	var added int64
	for i, rec := range records {
		k := key(rec)
		if seen[k] {
			continue
		}
		seen[k] = true
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("s3blob: encode record %d for %s: %w", i, path, err)
		}
		added++
	}
	if added == 0 {
		return 0, nil
	}

	if err := w.Put(ctx, path, bytes.NewReader(buf.Bytes()), "application/x-ndjson"); err != nil {
		return 0, err
	}
	return added, nil
}

// scanJSONL copies every non-empty line of src to dst and hands its decoded
// value to fn.
func scanJSONL[T any](src io.Reader, dst *bytes.Buffer, fn func(T)) error {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("decode line: %w", err)
		}
		fn(rec)
		dst.Write(line)
		dst.WriteByte('\n')
	}
	return sc.Err()
}

func groupByMonth[T any](records []T, at func(T) time.Time) map[string][]T {
	out := make(map[string][]T)
	for _, rec := range records {
		m := at(rec).UTC().Format("2006-01")
		out[m] = append(out[m], rec)
	}
	return out
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// archivePath is archive/{kind}/{YYYY-MM}.jsonl.
func archivePath(kind, month string) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, month)
}
