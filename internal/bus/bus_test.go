package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"blitzbot/internal/ledger"
)

type published struct {
	subject string
	data    []byte
}

// fakeConn records published messages.
type fakeConn struct {
	mu      sync.Mutex
	msgs    []published
	err     error
	drained bool
}

func (c *fakeConn) Publish(subj string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, published{subject: subj, data: data})
	return nil
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func fixedNow() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }

func TestDealLogged_Payload(t *testing.T) {
	nc := &fakeConn{}
	p := newPublisher(nc, "blitzbot", nil)
	p.now = fixedNow

	rec := ledger.Record{
		Timestamp: time.Date(2026, 10, 19, 4, 30, 0, 0, time.UTC),
		UserID:    "U1", UserName: "Alice", ChannelName: "blitz-socal-deals",
		Market: "socal", DealCount: 1, PackageSizeGB: decimal.RequireFromString("1.5"),
	}
	if err := p.DealLogged(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if len(nc.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(nc.msgs))
	}
	msg := nc.msgs[0]
	if msg.subject != "blitzbot.deal.logged" {
		t.Errorf("subject = %s", msg.subject)
	}

	var ev Event
	if err := json.Unmarshal(msg.data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.ID == "" {
		t.Error("event ID not set")
	}
	if !ev.At.Equal(fixedNow()) {
		t.Errorf("At = %v", ev.At)
	}
	if ev.Deal == nil || ev.Deal.UserName != "Alice" || ev.Deal.Market != "socal" || ev.Deal.SizeGB.String() != "1.5" {
		t.Errorf("deal payload = %+v", ev.Deal)
	}
	if ev.Partition != nil {
		t.Error("deal event must not carry a partition")
	}
}

func TestLedgerArchived_NoPrefix(t *testing.T) {
	nc := &fakeConn{}
	p := newPublisher(nc, "", nil)

	if err := p.LedgerArchived(context.Background(), ledger.Partition{Label: "2026-09", Rows: 42}); err != nil {
		t.Fatal(err)
	}
	if nc.msgs[0].subject != SubjectLedgerArchived {
		t.Errorf("subject = %s, want %s", nc.msgs[0].subject, SubjectLedgerArchived)
	}
	var ev Event
	if err := json.Unmarshal(nc.msgs[0].data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Partition == nil || ev.Partition.Label != "2026-09" || ev.Partition.Rows != 42 {
		t.Errorf("partition payload = %+v", ev.Partition)
	}
}

func TestPublish_Errors(t *testing.T) {
	boom := errors.New("connection closed")
	p := newPublisher(&fakeConn{err: boom}, "", nil)
	if err := p.DealRemoved(context.Background(), ledger.Record{}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped publish error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	nc := &fakeConn{}
	if err := newPublisher(nc, "", nil).DealLogged(ctx, ledger.Record{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(nc.msgs) != 0 {
		t.Error("cancelled publish must not send")
	}
}

func TestClose_Drains(t *testing.T) {
	nc := &fakeConn{}
	if err := newPublisher(nc, "", nil).Close(); err != nil {
		t.Fatal(err)
	}
	if !nc.drained {
		t.Error("Close did not drain the connection")
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	ctx := context.Background()
	if p.DealLogged(ctx, ledger.Record{}) != nil || p.DealRemoved(ctx, ledger.Record{}) != nil ||
		p.LedgerArchived(ctx, ledger.Partition{}) != nil || p.Close() != nil {
		t.Error("Nop must never fail")
	}
}
