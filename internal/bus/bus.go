// Package bus publishes ledger events to NATS so other services can follow
// deals as they are logged, removed, and archived. Publishing is optional;
// with no NATS_URL the bot uses Nop.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"

	"blitzbot/internal/ledger"
)

// Subjects, one per event type.
const (
	SubjectDealLogged     = "deal.logged"
	SubjectDealRemoved    = "deal.removed"
	SubjectLedgerArchived = "ledger.archived"
)

// Event is the JSON payload published on every subject.
type Event struct {
	ID        string          `json:"id"`
	Subject   string          `json:"subject"`
	At        time.Time       `json:"at"`
	Deal      *DealPayload    `json:"deal,omitempty"`
	Partition *ArchivePayload `json:"partition,omitempty"`
}

// DealPayload is a ledger record as published.
type DealPayload struct {
	LoggedAt time.Time       `json:"logged_at"`
	UserID   string          `json:"user_id,omitempty"`
	UserName string          `json:"user_name"`
	Channel  string          `json:"channel"`
	Market   string          `json:"market"`
	Count    int             `json:"count"`
	SizeGB   decimal.Decimal `json:"size_gb"`
}

// ArchivePayload describes a completed rotation.
type ArchivePayload struct {
	Label string `json:"label"`
	Rows  int64  `json:"rows"`
}

// Publisher publishes ledger events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	DealLogged(ctx context.Context, rec ledger.Record) error
	DealRemoved(ctx context.Context, rec ledger.Record) error
	LedgerArchived(ctx context.Context, p ledger.Partition) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) DealLogged(context.Context, ledger.Record) error { return nil }
func (Nop) DealRemoved(context.Context, ledger.Record) error { return nil }
func (Nop) LedgerArchived(context.Context, ledger.Partition) error { return nil }
func (Nop) Close() error { return nil }

// Config holds NATS connection settings.
type Config struct {
	// NatsURL is the NATS server URL (e.g., "nats://host:4222").
	NatsURL string

	// NatsToken is the auth token for NATS (optional).
	NatsToken string

	// Prefix is prepended to every subject with a dot, e.g. "blitzbot".
	Prefix string
}

// conn is the subset of *nats.Conn the publisher uses.
type conn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSPublisher publishes events as core NATS messages.
type NATSPublisher struct {
	nc     conn
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

// Connect dials NATS and returns a publisher.
func Connect(cfg Config, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name("blitzbot"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if cfg.NatsToken != "" {
		opts = append(opts, nats.Token(cfg.NatsToken))
	}

	nc, err := nats.Connect(cfg.NatsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("NATS connect: %w", err)
	}
	logger.Info("NATS publisher connected", "url", cfg.NatsURL)
	return newPublisher(nc, cfg.Prefix, logger), nil
}

func newPublisher(nc conn, prefix string, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{nc: nc, prefix: prefix, now: time.Now, logger: logger}
}

// DealLogged publishes SubjectDealLogged.
func (p *NATSPublisher) DealLogged(ctx context.Context, rec ledger.Record) error {
	return p.publish(ctx, SubjectDealLogged, Event{Deal: dealPayload(rec)})
}

// DealRemoved publishes SubjectDealRemoved.
func (p *NATSPublisher) DealRemoved(ctx context.Context, rec ledger.Record) error {
	return p.publish(ctx, SubjectDealRemoved, Event{Deal: dealPayload(rec)})
}

// LedgerArchived publishes SubjectLedgerArchived.
func (p *NATSPublisher) LedgerArchived(ctx context.Context, part ledger.Partition) error {
	return p.publish(ctx, SubjectLedgerArchived, Event{
		Partition: &ArchivePayload{Label: part.Label, Rows: part.Rows},
	})
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

func (p *NATSPublisher) publish(ctx context.Context, subject string, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full := p.subject(subject)
	ev.ID = uuid.NewString()
	ev.Subject = full
	ev.At = p.now().UTC()

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}
	if err := p.nc.Publish(full, data); err != nil {
		return fmt.Errorf("publish %s: %w", full, err)
	}
	p.logger.Debug("published ledger event", "subject", full, "id", ev.ID)
	return nil
}

func (p *NATSPublisher) subject(s string) string {
	if p.prefix == "" {
		return s
	}
	return p.prefix + "." + s
}

func dealPayload(rec ledger.Record) *DealPayload {
	return &DealPayload{
		LoggedAt: rec.Timestamp.UTC(),
		UserID:   rec.UserID,
		UserName: rec.UserName,
		Channel:  rec.ChannelName,
		Market:   rec.Market,
		Count:    rec.DealCount,
		SizeGB:   rec.PackageSizeGB,
	}
}
