// Package leaderboard aggregates ledger records into ranked leaderboards.
//
// Three scopes are supported: a single channel (the current team working it),
// all markets (every user across every channel), and all teams (channels
// ranked against each other). Ranking is by summed deal count, descending;
// ties keep first-seen order so repeated queries render identically.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"blitzbot/internal/deal"
	"blitzbot/internal/ledger"
	"blitzbot/internal/period"
)

// Scope selects what a leaderboard ranks.
type Scope int

const (
	// ScopeChannel ranks users in one channel, most recent team only.
	ScopeChannel Scope = iota
	// ScopeMarkets ranks users across all channels.
	ScopeMarkets
	// ScopeTeams ranks channels.
	ScopeTeams
)

func (s Scope) String() string {
	switch s {
	case ScopeChannel:
		return "channel"
	case ScopeMarkets:
		return "markets"
	case ScopeTeams:
		return "teams"
	}
	return "scope(" + strconv.Itoa(int(s)) + ")"
}

// Source loads ledger records for an interval.
type Source interface {
	Query(ctx context.Context, iv period.Interval) ([]ledger.Record, error)
}

// Request describes one leaderboard query.
type Request struct {
	Scope    Scope
	Channel  string // channel name, for ScopeChannel
	Interval period.Interval
}

// Entry is one ranked line.
type Entry struct {
	Key    string
	Name   string
	Market string // dominant market
	Count  int
	SizeGB decimal.Decimal
}

// Board is a ranked leaderboard ready to render.
type Board struct {
	Entries    []Entry
	Total      int
	TotalGB    decimal.Decimal
	Label      string
	ShowMarket bool
}

// Engine builds leaderboards from a ledger Source.
type Engine struct {
	src     Source
	gapDays int
}

// New creates an Engine. gapDays <= 0 uses DefaultGapDays.
func New(src Source, gapDays int) *Engine {
	if gapDays <= 0 {
		gapDays = DefaultGapDays
	}
	return &Engine{src: src, gapDays: gapDays}
}

// Build loads and ranks the records selected by req.
func (e *Engine) Build(ctx context.Context, req Request) (Board, error) {
	records, err := e.src.Query(ctx, req.Interval)
	if err != nil {
		return Board{}, fmt.Errorf("load deals for %s: %w", req.Interval.Label, err)
	}

	var entries []Entry
	switch req.Scope {
	case ScopeChannel:
		var inChannel []ledger.Record
		for _, r := range records {
			if strings.EqualFold(r.ChannelName, req.Channel) {
				inChannel = append(inChannel, r)
			}
		}
		entries = Rank(Segment(inChannel, e.gapDays), byUser)
	case ScopeMarkets:
		entries = Rank(records, byUser)
	case ScopeTeams:
		entries = Rank(records, byChannel)
	default:
		return Board{}, fmt.Errorf("unsupported leaderboard scope %v", req.Scope)
	}

	b := Board{
		Entries:    entries,
		Label:      req.Interval.Label,
		ShowMarket: req.Scope != ScopeTeams && req.Interval.Scale != period.ScaleMonth,
	}
	for _, en := range entries {
		b.Total += en.Count
		b.TotalGB = b.TotalGB.Add(en.SizeGB)
	}
	return b, nil
}

// Leaderboard builds and renders a leaderboard. The text is empty when no
// deals match; callers supply their own fallback message.
func (e *Engine) Leaderboard(ctx context.Context, req Request) (text, label string, err error) {
	b, err := e.Build(ctx, req)
	if err != nil {
		return "", "", err
	}
	return b.Render(), b.Label, nil
}

// groupKey returns the grouping key and display name for a record.
type groupKey func(ledger.Record) (key, name string)

func byUser(r ledger.Record) (string, string) {
	return ledger.UserKey(r), r.UserName
}

func byChannel(r ledger.Record) (string, string) {
	return r.ChannelName, r.ChannelName
}

// Rank groups records by key, sums deal counts, and orders the groups by
// count descending. Groups with equal counts keep first-seen order. Each
// entry's Name is the last name seen for its key and Market is the market
// with the most deals (first seen wins ties).
func Rank(records []ledger.Record, key groupKey) []Entry {
	type group struct {
		entry   Entry
		markets map[string]int
		order   []string
	}
	var groups []*group
	index := make(map[string]*group)

	for _, r := range records {
		k, name := key(r)
		g, ok := index[k]
		if !ok {
			g = &group{entry: Entry{Key: k}, markets: make(map[string]int)}
			index[k] = g
			groups = append(groups, g)
		}
		if name != "" {
			g.entry.Name = name
		}
		count := r.DealCount
		if count <= 0 {
			count = 1
		}
		g.entry.Count += count
		g.entry.SizeGB = g.entry.SizeGB.Add(r.PackageSizeGB)
		if _, seen := g.markets[r.Market]; !seen {
			g.order = append(g.order, r.Market)
		}
		g.markets[r.Market] += count
	}

	entries := make([]Entry, 0, len(groups))
	for _, g := range groups {
		best := -1
		for _, m := range g.order {
			if g.markets[m] > best {
				best = g.markets[m]
				g.entry.Market = m
			}
		}
		if g.entry.Name == "" {
			g.entry.Name = g.entry.Key
		}
		entries = append(entries, g.entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	return entries
}

const separator = "───────────────"

// Render formats the board as numbered lines, a separator, and a total.
// An empty board renders as "".
func (b Board) Render() string {
	if len(b.Entries) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, en := range b.Entries {
		suffix := ""
		if b.ShowMarket && en.Market != "" && en.Market != deal.UnknownMarket {
			suffix = " (" + en.Market + ")"
		}
		fmt.Fprintf(&sb, "%d. %s%s — %d\n", i+1, en.Name, suffix, en.Count)
	}
	sb.WriteString(separator + "\n")
	fmt.Fprintf(&sb, "Total: %d", b.Total)
	if b.TotalGB.IsPositive() {
		fmt.Fprintf(&sb, " (%s GB)", FormatGB(b.TotalGB))
	}
	return sb.String()
}

// FormatGB renders a size without trailing zeros: 2, 0.5, 1.25.
func FormatGB(v decimal.Decimal) string {
	return v.String()
}
