package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"blitzbot/internal/bus"
	"blitzbot/internal/command"
	"blitzbot/internal/deal"
	"blitzbot/internal/leaderboard"
	"blitzbot/internal/ledger"
	"blitzbot/internal/metrics"
	"blitzbot/internal/period"
)

// Ledger is the subset of *ledger.Store the bridge writes through.
type Ledger interface {
	leaderboard.Source
	Append(ctx context.Context, rec ledger.Record) (ledger.Record, error)
	RemoveLatest(ctx context.Context, req ledger.RemoveRequest) (ledger.Record, bool, error)
	ArchiveAndRotate(ctx context.Context) (ledger.Partition, error)
}

// Reactions and canned replies.
const (
	reactionLogged = "white_check_mark"

	replyUnavailable = "Sorry, the leaderboard is unavailable right now. Please try again shortly."
	replyRemoveError = "Sorry, I couldn't remove that deal right now. Please try again shortly."
)

// dealSubtypes are the message subtypes that can carry a deal announcement.
var dealSubtypes = map[string]bool{
	"":                 true,
	"file_share":       true,
	"thread_broadcast": true,
}

// DispatcherConfig holds the dispatcher's collaborators.
type DispatcherConfig struct {
	Ledger    Ledger
	Resolver  *period.Resolver
	Parser    deal.Parser
	Rule      deal.ChannelRule
	GapDays   int
	Messenger Messenger
	Identity  *IdentityCache
	Dedup     *Dedup
	Publisher bus.Publisher // optional
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// BotUserID is the bot's own user; its messages are ignored.
	BotUserID string
}

// Dispatcher routes inbound messages to deal logging or command handling.
type Dispatcher struct {
	ledger    Ledger
	engine    *leaderboard.Engine
	resolver  *period.Resolver
	parser    deal.Parser
	rule      deal.ChannelRule
	messenger Messenger
	identity  *IdentityCache
	dedup     *Dedup
	publisher bus.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	botUserID string
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = bus.Nop{}
	}
	dedup := cfg.Dedup
	if dedup == nil {
		dedup = NewDedup(512)
	}
	return &Dispatcher{
		ledger:    cfg.Ledger,
		engine:    leaderboard.New(cfg.Ledger, cfg.GapDays),
		resolver:  cfg.Resolver,
		parser:    cfg.Parser,
		rule:      cfg.Rule,
		messenger: cfg.Messenger,
		identity:  cfg.Identity,
		dedup:     dedup,
		publisher: pub,
		metrics:   cfg.Metrics,
		logger:    logger,
		botUserID: cfg.BotUserID,
	}
}

// HandleMessage processes one inbound message. It never panics; failures
// are logged and, where useful, reported to the channel.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.Event(metrics.OutcomeError)
			d.logger.Error("panic handling message",
				"channel", msg.ChannelID, "user", msg.UserID, "ts", msg.TS,
				"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()

	// Ignore bots, our own messages, and edits, deletes and joins.
	if msg.BotID != "" || !dealSubtypes[msg.SubType] || msg.UserID == "" || msg.UserID == d.botUserID {
		d.metrics.Event(metrics.OutcomeIgnored)
		return
	}
	if d.dedup.Seen(EventKey{User: msg.UserID, TS: msg.TS, Channel: msg.ChannelID}) {
		d.metrics.Event(metrics.OutcomeDuplicate)
		d.logger.Debug("duplicate message dropped", "channel", msg.ChannelID, "ts", msg.TS)
		return
	}

	if cmd, ok := command.Parse(msg.Text); ok {
		d.metrics.Event(metrics.OutcomeCommand)
		d.handleCommand(ctx, msg, cmd)
		return
	}

	if err := d.logDeal(ctx, msg); err != nil {
		d.metrics.Event(metrics.OutcomeError)
		d.logger.Error("failed to log deal", "channel", msg.ChannelID, "user", msg.UserID, "error", err)
	}
}

// logDeal appends a deal when msg is an announcement in an eligible channel.
func (d *Dispatcher) logDeal(ctx context.Context, msg Message) error {
	channelName := d.identity.ChannelName(ctx, msg.ChannelID)
	if !d.rule.Eligible(channelName) {
		d.metrics.Event(metrics.OutcomeIgnored)
		return nil
	}
	dl, ok := d.parser.Parse(msg.Text)
	if !ok {
		d.metrics.Event(metrics.OutcomeIgnored)
		return nil
	}

	ts, ok := parseTS(msg.TS)
	if !ok {
		ts = d.resolver.Now()
	}
	if _, err := d.appendDeal(ctx, msg.UserID, channelName, ts, dl); err != nil {
		return err
	}
	if err := d.messenger.AddReaction(ctx, msg.ChannelID, msg.TS, reactionLogged); err != nil {
		d.logger.Warn("failed to react to deal", "channel", msg.ChannelID, "error", err)
	}
	return nil
}

// appendDeal writes one ledger row and announces it on the bus.
func (d *Dispatcher) appendDeal(ctx context.Context, userID, channelName string, ts time.Time, dl deal.Deal) (ledger.Record, error) {
	rec, err := d.ledger.Append(ctx, ledger.Record{
		Timestamp:     ts,
		UserID:        userID,
		UserName:      d.identity.UserName(ctx, userID),
		ChannelName:   channelName,
		Market:        d.rule.Market(channelName),
		DealCount:     dl.Count,
		PackageSizeGB: dl.SizeGB,
	})
	if err != nil {
		return ledger.Record{}, err
	}

	d.metrics.Event(metrics.OutcomeDeal)
	d.metrics.DealLogged(rec.Market, rec.DealCount)
	d.logger.Info("deal logged",
		"channel", rec.ChannelName, "user", rec.UserName, "market", rec.Market,
		"count", rec.DealCount, "size_gb", rec.PackageSizeGB.String())

	if err := d.publisher.DealLogged(ctx, rec); err != nil {
		d.logger.Warn("failed to publish deal", "error", err)
	}
	return rec, nil
}

func (d *Dispatcher) handleCommand(ctx context.Context, msg Message, cmd command.Command) {
	switch c := cmd.(type) {
	case command.Help:
		d.metrics.Command("help")
		d.reply(ctx, msg.ChannelID, command.Usage)

	case command.Unrecognized:
		d.metrics.Command("unrecognized")
		d.reply(ctx, msg.ChannelID, fmt.Sprintf(":warning: I didn't understand `%s`: %s\n\n%s", c.Text, c.Reason, command.Usage))

	case command.ChannelQuery:
		d.metrics.Command("leaderboard")
		channelName := d.identity.ChannelName(ctx, msg.ChannelID)
		d.replyLeaderboard(ctx, msg.ChannelID, c.Period, leaderboard.Request{
			Scope: leaderboard.ScopeChannel, Channel: channelName,
		}, "#"+channelName+" Leaderboard")

	case command.MasterQuery:
		d.metrics.Command("master")
		d.replyLeaderboard(ctx, msg.ChannelID, c.Period, leaderboard.Request{Scope: leaderboard.ScopeMarkets}, "Master Leaderboard")

	case command.TeamsQuery:
		d.metrics.Command("teams")
		d.replyLeaderboard(ctx, msg.ChannelID, c.Period, leaderboard.Request{Scope: leaderboard.ScopeTeams}, "Teams Leaderboard")

	case command.RemoveCommand:
		d.metrics.Command("remove")
		d.remove(ctx, msg, c)

	default:
		d.logger.Warn("unhandled command", "type", fmt.Sprintf("%T", cmd))
	}
}

func (d *Dispatcher) replyLeaderboard(ctx context.Context, channelID, periodArg string, req leaderboard.Request, title string) {
	iv, err := d.resolver.Resolve(periodArg)
	if err != nil {
		d.reply(ctx, channelID, periodError(periodArg, err))
		return
	}
	req.Interval = iv
	text, err := d.Render(ctx, req, title)
	if err != nil {
		d.logger.Error("leaderboard failed", "scope", req.Scope.String(), "period", iv.Label, "error", err)
		d.reply(ctx, channelID, replyUnavailable)
		return
	}
	d.reply(ctx, channelID, text)
}

// Render builds a leaderboard and formats it under a bold title line. An
// empty board renders as a "no deals" line.
func (d *Dispatcher) Render(ctx context.Context, req leaderboard.Request, title string) (string, error) {
	start := time.Now()
	body, label, err := d.engine.Leaderboard(ctx, req)
	d.metrics.ObserveLeaderboard(req.Scope.String(), start)
	if err != nil {
		return "", err
	}
	header := fmt.Sprintf("*%s — %s*", title, label)
	if body == "" {
		return header + "\nNo deals logged yet.", nil
	}
	return header + "\n" + body, nil
}

func (d *Dispatcher) remove(ctx context.Context, msg Message, c command.RemoveCommand) {
	channelName := d.identity.ChannelName(ctx, msg.ChannelID)
	req := ledger.RemoveRequest{
		UserID:      msg.UserID,
		UserName:    d.identity.UserName(ctx, msg.UserID),
		ChannelName: channelName,
		Within:      d.resolver.Day(d.resolver.Now()),
	}
	if c.HasSize {
		size := c.SizeGB
		req.SizeGB = &size
	}

	rec, ok, err := d.ledger.RemoveLatest(ctx, req)
	if err != nil {
		d.metrics.Event(metrics.OutcomeError)
		d.logger.Error("failed to remove deal", "channel", channelName, "user", msg.UserID, "error", err)
		d.reply(ctx, msg.ChannelID, replyRemoveError)
		return
	}
	if !ok {
		what := "deals"
		if c.HasSize {
			what = leaderboard.FormatGB(c.SizeGB) + " GB deals"
		}
		d.reply(ctx, msg.ChannelID, fmt.Sprintf("Nothing to remove: you have no %s logged today in #%s.", what, channelName))
		return
	}

	d.metrics.DealRemoved()
	d.logger.Info("deal removed", "channel", channelName, "user", rec.UserName, "id", rec.ID)
	if err := d.publisher.DealRemoved(ctx, rec); err != nil {
		d.logger.Warn("failed to publish removal", "error", err)
	}
	d.reply(ctx, msg.ChannelID, fmt.Sprintf(":wastebasket: Removed your %s GB deal logged at %s.",
		leaderboard.FormatGB(rec.PackageSizeGB), rec.Timestamp.In(d.resolver.Location()).Format("3:04 PM")))
}

// reply posts text and logs delivery failures.
func (d *Dispatcher) reply(ctx context.Context, channelID, text string) {
	if err := d.messenger.PostMessage(ctx, channelID, text); err != nil {
		d.logger.Warn("failed to post reply", "channel", channelID, "error", err)
	}
}

func periodError(arg string, err error) string {
	hint := "expected a period or a date like `10/14` or `Oct 14`"
	if errors.Is(err, period.ErrInvertedRange) {
		hint = "the start date is after the end date"
	}
	return fmt.Sprintf(":warning: Couldn't read `%s`: %s.\n\n%s", arg, hint, command.Usage)
}
