package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/courtsidelabs/parlayengine/internal/domain"
)

const (
	archiveContentType = "application/x-ndjson"

	// multipartThreshold switches uploads to the multipart manager once
	// a merged archive outgrows a single-shot put.
	multipartThreshold = 8 * 1024 * 1024
)

// TicketArchiveStore is the slice of the ticket store the archiver
// needs: fully settled tickets old enough to move, and their removal
// once the archive holds them.
type TicketArchiveStore interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Ticket, error)
	DeleteTicket(ctx context.Context, id string) error
}

// ArchiveImpl implements domain.Archiver by appending settled tickets
// to a monthly JSONL object and deleting them from the primary store.
// The upload lands before any delete, so a crash in between only means
// the next run re-reads rows the archive already holds and skips them.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	reader  domain.BlobReader
	tickets TicketArchiveStore
	audit   domain.AuditStore
	logger  *slog.Logger
}

// NewArchiver creates an ArchiveImpl. audit may be nil.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, tickets TicketArchiveStore, audit domain.AuditStore, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		reader:  reader,
		tickets: tickets,
		audit:   audit,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// archivedTicket is the JSONL row shape written to cold storage.
type archivedTicket struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Stake     float64       `json:"stake"`
	CreatedAt time.Time     `json:"created_at"`
	Legs      []archivedLeg `json:"legs"`
}

type archivedLeg struct {
	ID        string     `json:"id"`
	GameID    string     `json:"game_id"`
	Market    string     `json:"market"`
	Pick      string     `json:"pick"`
	Line      *float64   `json:"line,omitempty"`
	Price     int        `json:"price"`
	Status    string     `json:"status"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

func toArchived(t domain.Ticket) archivedTicket {
	out := archivedTicket{
		ID:        t.ID,
		UserID:    t.UserID,
		Stake:     t.Stake,
		CreatedAt: t.CreatedAt,
		Legs:      make([]archivedLeg, 0, len(t.Legs)),
	}
	for _, leg := range t.Legs {
		out.Legs = append(out.Legs, archivedLeg{
			ID:        leg.ID,
			GameID:    leg.GameID,
			Market:    string(leg.Market),
			Pick:      string(leg.Pick),
			Line:      leg.Line,
			Price:     leg.Price,
			Status:    string(leg.Status),
			SettledAt: leg.SettledAt,
		})
	}
	return out
}

// ArchiveSettledTickets moves every fully settled ticket older than
// the cutoff to archive/tickets/YYYY-MM.jsonl and deletes it from the
// primary store. Rows the month's archive already holds are not
// written twice. Returns the number of tickets removed.
func (a *ArchiveImpl) ArchiveSettledTickets(ctx context.Context, before time.Time) (int64, error) {
	tickets, err := a.tickets.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive tickets query: %w", err)
	}
	if len(tickets) == 0 {
		return 0, nil
	}

	path := archivePath("tickets", before)
	existing, archived, err := a.loadExisting(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive tickets load existing: %w", err)
	}

	fresh := make([]archivedTicket, 0, len(tickets))
	for _, t := range tickets {
		if !archived[t.ID] {
			fresh = append(fresh, toArchived(t))
		}
	}

	if len(fresh) > 0 {
		lines, err := marshalJSONL(fresh)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive tickets marshal: %w", err)
		}
		if err := a.upload(ctx, path, append(existing, lines...)); err != nil {
			return 0, fmt.Errorf("s3blob: archive tickets upload: %w", err)
		}
	} else {
		a.logger.InfoContext(ctx, "archive already holds batch, deleting only",
			slog.String("path", path), slog.Int("tickets", len(tickets)))
	}

	var removed int64
	for _, t := range tickets {
		if err := a.tickets.DeleteTicket(ctx, t.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return removed, fmt.Errorf("s3blob: delete archived ticket %s: %w", t.ID, err)
		}
		removed++
	}

	if a.audit != nil {
		err := a.audit.Log(ctx, "archive.tickets", map[string]any{
			"path":   path,
			"count":  removed,
			"before": before.Format(time.RFC3339),
		})
		if err != nil {
			return removed, fmt.Errorf("s3blob: archive tickets audit log: %w", err)
		}
	}

	return removed, nil
}

// loadExisting fetches the current month object, returning its raw
// bytes and the set of ticket IDs it already holds. A missing object
// is an empty archive.
func (a *ArchiveImpl) loadExisting(ctx context.Context, path string) ([]byte, map[string]bool, error) {
	ids := make(map[string]bool)

	body, err := a.reader.Get(ctx, path)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ids, nil
	}
	if err != nil {
		return nil, nil, err
	}
	defer body.Close()

	var buf bytes.Buffer
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var row struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(line, &row); err == nil && row.ID != "" {
			ids[row.ID] = true
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), ids, nil
}

func (a *ArchiveImpl) upload(ctx context.Context, path string, buf []byte) error {
	if len(buf) >= multipartThreshold {
		return a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0)
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), archiveContentType)
}

// archivePath builds the object key for an archive file, partitioned
// by the year-month of the cutoff time.
//
//	archive/tickets/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
