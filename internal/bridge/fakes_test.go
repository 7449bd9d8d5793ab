package bridge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"blitzbot/internal/deal"
	"blitzbot/internal/ledger"
	"blitzbot/internal/period"
)

var pacific = func() *time.Location {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		panic(err)
	}
	return loc
}()

// Wednesday afternoon.
var testNow = time.Date(2026, time.October, 21, 15, 0, 0, 0, pacific)

type post struct {
	channel string
	text    string
}

type reaction struct {
	channel, ts, emoji string
}

// fakeMessenger records outbound Slack calls.
type fakeMessenger struct {
	mu        sync.Mutex
	posts     []post
	reactions []reaction
	postErr   error
	panicOn   string // panic when posting text containing this
}

func (m *fakeMessenger) PostMessage(_ context.Context, channel, text string) error {
	if m.panicOn != "" && strings.Contains(text, m.panicOn) {
		panic("messenger exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postErr != nil {
		return m.postErr
	}
	m.posts = append(m.posts, post{channel: channel, text: text})
	return nil
}

func (m *fakeMessenger) AddReaction(_ context.Context, channel, ts, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions = append(m.reactions, reaction{channel, ts, emoji})
	return nil
}

func (m *fakeMessenger) getPosts() []post {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]post(nil), m.posts...)
}

func (m *fakeMessenger) lastPost(t *testing.T) post {
	t.Helper()
	posts := m.getPosts()
	if len(posts) == 0 {
		t.Fatal("expected a posted message, got none")
	}
	return posts[len(posts)-1]
}

// fakeDirectory resolves names from fixed maps and counts lookups.
type fakeDirectory struct {
	mu       sync.Mutex
	users    map[string]string
	channels map[string]string
	calls    int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users: map[string]string{
			"U1": "Alice Smith",
			"U2": "Bob Jones",
		},
		channels: map[string]string{
			"C1": "blitz-socal-deals",
			"C2": "general",
			"C3": "blitz-norcal-deals",
		},
	}
}

func (d *fakeDirectory) UserName(_ context.Context, id string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if name, ok := d.users[id]; ok {
		return name, nil
	}
	return "", errors.New("user_not_found")
}

func (d *fakeDirectory) ChannelName(_ context.Context, id string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if name, ok := d.channels[id]; ok {
		return name, nil
	}
	return "", errors.New("channel_not_found")
}

// fakePublisher records published ledger events.
type fakePublisher struct {
	mu       sync.Mutex
	logged   []ledger.Record
	removed  []ledger.Record
	archived []ledger.Partition
}

func (p *fakePublisher) DealLogged(_ context.Context, rec ledger.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logged = append(p.logged, rec)
	return nil
}

func (p *fakePublisher) DealRemoved(_ context.Context, rec ledger.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, rec)
	return nil
}

func (p *fakePublisher) LedgerArchived(_ context.Context, part ledger.Partition) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.archived = append(p.archived, part)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

// harness wires a dispatcher to a sqlite ledger and fakes.
type harness struct {
	store     *ledger.Store
	messenger *fakeMessenger
	directory *fakeDirectory
	publisher *fakePublisher
	d         *Dispatcher
	now       time.Time
	seq       int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		messenger: &fakeMessenger{},
		directory: newFakeDirectory(),
		publisher: &fakePublisher{},
		now:       testNow,
	}
	clock := func() time.Time { return h.now }

	store, err := ledger.Open(ledger.Config{
		DSN:      filepath.Join(t.TempDir(), "ledger.db"),
		Location: pacific,
		Now:      clock,
	})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	h.store = store

	h.d = NewDispatcher(DispatcherConfig{
		Ledger:    store,
		Resolver:  period.NewResolver(pacific, clock),
		Parser:    deal.Parser{},
		Rule:      deal.DefaultChannelRule,
		GapDays:   5,
		Messenger: h.messenger,
		Identity:  NewIdentityCache(h.directory, nil),
		Dedup:     NewDedup(64),
		Publisher: h.publisher,
		BotUserID: "UBOT",
	})
	return h
}

// msg builds a message with a fresh Slack timestamp at the given wall time.
func (h *harness) msg(channel, user, text string, at time.Time) Message {
	h.seq++
	return Message{
		ChannelID: channel,
		UserID:    user,
		Text:      text,
		TS:        fmt.Sprintf("%d.%06d", at.Unix(), h.seq),
	}
}

func (h *harness) send(channel, user, text string, at time.Time) Message {
	m := h.msg(channel, user, text, at)
	h.d.HandleMessage(context.Background(), m)
	return m
}

func (h *harness) todaysDeals(t *testing.T) []ledger.Record {
	t.Helper()
	res := period.NewResolver(pacific, func() time.Time { return h.now })
	recs, err := h.store.Query(context.Background(), res.Day(h.now))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	return recs
}

func clockAt(hour, minute int) time.Time {
	return time.Date(testNow.Year(), testNow.Month(), testNow.Day(), hour, minute, 0, 0, pacific)
}
