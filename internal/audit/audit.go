// Package audit provides an async, buffered writer for the append-only
// audit log (spec.md §4.7 / §3 AuditEntry), plus the GET /audit handler.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ordermesh/hub/internal/store"
	"github.com/ordermesh/hub/pkg/tenant"
)

// Entry represents a single audit log entry to be written.
type Entry struct {
	TenantID     uuid.UUID
	ActorID      *string
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	OldValue     json.RawMessage
	NewValue     json.RawMessage
	Metadata     json.RawMessage
	Tags         []string
}

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed by a background goroutine, so instrumented
// call sites (job transitions, approval decisions, gateway calls) never
// block on a database round trip.
type Writer struct {
	store   *store.Store
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(s *store.Store, logger *slog.Logger) *Writer {
	return &Writer{
		store:   s,
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start begins the background goroutine that flushes audit entries to the database.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the caller;
// if the buffer is full the entry is dropped and a warning is logged.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"action", entry.Action, "resource_type", entry.ResourceType)
	}
}

// LogFromRequest is a convenience method that extracts the tenant and an
// actor hint (the caller's remote IP) from the request context, then
// enqueues the entry.
func (w *Writer) LogFromRequest(r *http.Request, action, resourceType string, resourceID *uuid.UUID, newValue json.RawMessage) {
	ip := clientIP(r)
	var actor *string
	if ip.IsValid() {
		s := ip.String()
		actor = &s
	}

	w.Log(Entry{
		TenantID:     tenant.FromContext(r.Context()),
		ActorID:      actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		NewValue:     newValue,
		Tags:         []string{store.TagAccessControl},
	})
}

// run is the background loop that drains the entries channel.
func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries to the database.
func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, e := range entries {
		if e.TenantID == uuid.Nil {
			w.logger.Warn("audit entry without tenant id, skipping", "action", e.Action)
			continue
		}

		received := store.AuditEntry{
			TenantID:     e.TenantID,
			ActorID:      e.ActorID,
			Action:       e.Action,
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			OldValue:     e.OldValue,
			NewValue:     e.NewValue,
			Metadata:     e.Metadata,
			Tags:         e.Tags,
			ReceivedAt:   time.Now(),
		}

		if err := w.store.InsertAuditEntry(ctx, w.store.Pool(), received); err != nil {
			w.logger.Error("writing audit log entry", "error", err,
				"action", e.Action, "resource_type", e.ResourceType)
		}
	}
}

// clientIP extracts the client IP address from the request, preferring
// X-Forwarded-For and X-Real-IP headers over RemoteAddr.
func clientIP(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}
