package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"blitzbot/internal/deal"
	"blitzbot/internal/leaderboard"
	"blitzbot/internal/metrics"
)

// SlashCommandHandler answers a slash command with the text of an ephemeral
// reply.
type SlashCommandHandler interface {
	HandleSlashCommand(ctx context.Context, cmd slack.SlashCommand) string
}

const replyDealUsage = ":x: Invalid deal format. Use `/deal 1g`, `/deal 2g` or `/deal 500mb`."

// HandleSlashCommand logs a deal from "/deal <size>". The deal is stamped
// with the current time since slash commands carry no message timestamp.
func (d *Dispatcher) HandleSlashCommand(ctx context.Context, cmd slack.SlashCommand) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.Event(metrics.OutcomeError)
			d.logger.Error("panic handling slash command",
				"command", cmd.Command, "channel", cmd.ChannelID, "user", cmd.UserID, "panic", fmt.Sprint(r))
			reply = replyUnavailable
		}
	}()

	if cmd.Command != "/deal" {
		d.metrics.Command("unrecognized")
		return fmt.Sprintf(":warning: I don't know the `%s` command.", cmd.Command)
	}
	d.metrics.Command("deal")

	size, ok := deal.ParseSize(strings.TrimSpace(cmd.Text))
	if !ok {
		return replyDealUsage
	}
	channelName := d.identity.ChannelName(ctx, cmd.ChannelID)
	if !d.rule.Eligible(channelName) {
		return fmt.Sprintf(":warning: Deals can only be logged in deal channels, not #%s.", channelName)
	}

	rec, err := d.appendDeal(ctx, cmd.UserID, channelName, d.resolver.Now(), deal.Deal{Count: 1, SizeGB: size})
	if err != nil {
		d.metrics.Event(metrics.OutcomeError)
		d.logger.Error("failed to log deal", "channel", channelName, "user", cmd.UserID, "error", err)
		return "Sorry, I couldn't log that deal right now. Please try again shortly."
	}
	return fmt.Sprintf(":white_check_mark: Logged a %s GB deal for %s in #%s.",
		leaderboard.FormatGB(rec.PackageSizeGB), rec.UserName, channelName)
}

// CommandsHandler serves Slack slash commands posted to the webhook.
type CommandsHandler struct {
	signingSecret string
	handler       SlashCommandHandler
	logger        *slog.Logger
}

// NewCommandsHandler creates the slash command handler.
func NewCommandsHandler(signingSecret string, handler SlashCommandHandler, logger *slog.Logger) *CommandsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandsHandler{signingSecret: signingSecret, handler: handler, logger: logger}
}

func (h *CommandsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, ok := verifySlackRequest(w, r, h.signingSecret, h.logger)
	if !ok {
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		h.logger.Debug("failed to parse slash command", "error", err)
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	text := h.handler.HandleSlashCommand(r.Context(), cmd)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ephemeral(text)); err != nil {
		h.logger.Warn("failed to write slash command reply", "error", err)
	}
}

func ephemeral(text string) slack.Msg {
	return slack.Msg{ResponseType: slack.ResponseTypeEphemeral, Text: text}
}
