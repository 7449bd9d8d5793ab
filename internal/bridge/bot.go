package bridge

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// Bot receives Slack events over Socket Mode and hands message events to a
// MessageHandler. It is the alternative to EventsHandler for deployments
// without a public webhook URL.
type Bot struct {
	socket   *socketmode.Client
	handler  MessageHandler
	commands SlashCommandHandler
	logger   *slog.Logger

	// Health state.
	connected      atomic.Bool
	numConnections atomic.Int32
}

// BotConfig holds configuration for the Socket Mode bot.
type BotConfig struct {
	API      *slack.Client // must carry the app-level token
	Handler  MessageHandler
	Commands SlashCommandHandler // optional
	Logger   *slog.Logger
	Debug    bool
}

// NewBot creates a new Socket Mode bot.
func NewBot(cfg BotConfig) *Bot {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		socket:   socketmode.New(cfg.API, socketmode.OptionDebug(cfg.Debug)),
		handler:  cfg.Handler,
		commands: cfg.Commands,
		logger:   logger,
	}
}

// IsConnected returns the bot's connection status.
func (b *Bot) IsConnected() bool {
	return b.connected.Load()
}

// NumConnections returns the number of active socket connections.
func (b *Bot) NumConnections() int {
	return int(b.numConnections.Load())
}

// Run starts the Socket Mode event loop. Blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	go b.handleEvents(ctx)

	err := b.socket.RunContext(ctx)
	b.connected.Store(false)
	return err
}

// handleEvents processes Socket Mode events.
func (b *Bot) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-b.socket.Events:
			if !ok {
				return
			}
			b.handleEvent(ctx, evt)
		}
	}
}

func (b *Bot) handleEvent(ctx context.Context, evt socketmode.Event) {
	b.logger.Debug("socket mode event received", "type", string(evt.Type))

	switch evt.Type {
	case socketmode.EventTypeConnecting:
		b.logger.Info("Slack Socket Mode connecting")

	case socketmode.EventTypeHello:
		if evt.Request != nil && evt.Request.NumConnections > 0 {
			b.numConnections.Store(int32(evt.Request.NumConnections))
			if evt.Request.NumConnections > 1 {
				b.logger.Warn("multiple Socket Mode connections detected",
					"num_connections", evt.Request.NumConnections)
			}
		}

	case socketmode.EventTypeConnected:
		b.connected.Store(true)
		b.logger.Info("Slack Socket Mode connected")

	case socketmode.EventTypeConnectionError:
		b.connected.Store(false)
		b.logger.Error("Slack Socket Mode connection error")

	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			b.socket.Ack(*evt.Request)
		}
		b.dispatch(ctx, eventsAPIEvent)

	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok || evt.Request == nil {
			return
		}
		if b.commands == nil {
			b.socket.Ack(*evt.Request)
			return
		}
		b.socket.Ack(*evt.Request, ephemeral(b.commands.HandleSlashCommand(ctx, cmd)))
	}
}

// dispatch forwards message events; other callback events are ignored.
func (b *Bot) dispatch(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	if ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent); ok {
		b.handler.HandleMessage(ctx, messageFromEvent(ev))
	}
}
