// Package command parses the chat command vocabulary into a closed set of
// command values. Parsing is pure; resolving periods and touching the
// ledger happen in the dispatcher.
//
//	leaderboard [period]
//	master leaderboard [period]
//	teams leaderboard [period]
//	!remove [last deal|<size>]
//	help
package command

import (
	"strings"

	"github.com/shopspring/decimal"

	"blitzbot/internal/deal"
)

// Command is one parsed chat command. The concrete type selects the action.
type Command interface {
	command()
}

// ChannelQuery asks for the leaderboard of the channel it was posted in.
// Period is the raw period argument; empty means today.
type ChannelQuery struct {
	Period string
}

// MasterQuery asks for the leaderboard across all markets.
type MasterQuery struct {
	Period string
}

// TeamsQuery asks for channels ranked against each other.
type TeamsQuery struct {
	Period string
}

// RemoveCommand removes the sender's latest deal logged today in the
// channel, optionally only one of the given size.
type RemoveCommand struct {
	SizeGB  decimal.Decimal
	HasSize bool
}

// Help asks for the usage text.
type Help struct{}

// Unrecognized is a recognized command prefix followed by text that does
// not parse. It is reported back to the sender.
type Unrecognized struct {
	Text   string
	Reason string
}

func (ChannelQuery) command() {}
func (MasterQuery) command() {}
func (TeamsQuery) command() {}
func (RemoveCommand) command() {}
func (Help) command() {}
func (Unrecognized) command() {}

// Usage is the help text sent for Help and Unrecognized commands.
const Usage = "Commands:\n" +
	"• `leaderboard [today|yesterday|week|last week|month|last month|<date>|<date> to <date>]`\n" +
	"• `master leaderboard [period]`\n" +
	"• `teams leaderboard [period]`\n" +
	"• `!remove [last deal|<size>]` removes your latest deal logged today in this channel\n" +
	"Dates: `10/14`, `10/14/2026`, `Oct 14`, `October 14, 2026`"

const (
	prefixMaster      = "master leaderboard"
	prefixTeams       = "teams leaderboard"
	prefixLeaderboard = "leaderboard"
	prefixRemove      = "!remove"
	wordHelp          = "help"
	argLastDeal       = "last deal"
)

// Parse recognizes a command in text. It returns false when text is not a
// command at all, in which case the caller may treat it as a deal.
// Matching is case-insensitive and ignores surrounding and repeated
// whitespace.
func Parse(text string) (Command, bool) {
	norm := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if norm == "" {
		return nil, false
	}

	if norm == wordHelp {
		return Help{}, true
	}
	if arg, ok := cutWord(norm, prefixMaster); ok {
		return MasterQuery{Period: arg}, true
	}
	if arg, ok := cutWord(norm, prefixTeams); ok {
		return TeamsQuery{Period: arg}, true
	}
	if arg, ok := cutWord(norm, prefixLeaderboard); ok {
		return ChannelQuery{Period: arg}, true
	}
	if arg, ok := cutWord(norm, prefixRemove); ok {
		return parseRemove(norm, arg), true
	}
	return nil, false
}

func parseRemove(norm, arg string) Command {
	switch arg {
	case "", argLastDeal:
		return RemoveCommand{}
	}
	size, ok := deal.ParseSize(arg)
	if !ok {
		return Unrecognized{Text: norm, Reason: "expected `last deal` or a size like `2g` after !remove"}
	}
	return RemoveCommand{SizeGB: size, HasSize: true}
}

// cutWord strips prefix from s when prefix ends at a word boundary and
// returns the remainder.
func cutWord(s, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok {
		return "", false
	}
	if rest == "" {
		return "", true
	}
	if rest[0] != ' ' {
		return "", false
	}
	return rest[1:], true
}
