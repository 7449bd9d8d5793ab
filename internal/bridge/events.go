package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// MessageHandler consumes inbound messages.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg Message)
}

const maxEventBody = 1 << 20

// EventsHandler serves the Slack Events API webhook. Requests are verified
// against the signing secret and acknowledged immediately; message events
// are handled in the background so Slack's 3-second deadline is met.
type EventsHandler struct {
	signingSecret string
	handler       MessageHandler
	logger        *slog.Logger

	wg sync.WaitGroup
}

// NewEventsHandler creates the webhook handler.
func NewEventsHandler(signingSecret string, handler MessageHandler, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{signingSecret: signingSecret, handler: handler, logger: logger}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, ok := verifySlackRequest(w, r, h.signingSecret, h.logger)
	if !ok {
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		h.logger.Debug("failed to parse Slack event", "error", err)
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge.Challenge))

	case slackevents.CallbackEvent:
		w.WriteHeader(http.StatusOK)
		ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
		if !ok {
			h.logger.Debug("ignoring Slack callback event", "type", event.InnerEvent.Type)
			return
		}
		msg := messageFromEvent(ev)
		ctx := context.WithoutCancel(r.Context())
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.handler.HandleMessage(ctx, msg)
		}()

	default:
		h.logger.Debug("unhandled Slack event type", "type", event.Type)
		w.WriteHeader(http.StatusOK)
	}
}

// verifySlackRequest reads the request body and checks its signature. On
// failure it writes the error response and returns false.
func verifySlackRequest(w http.ResponseWriter, r *http.Request, signingSecret string, logger *slog.Logger) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return nil, false
	}

	sv, err := slack.NewSecretsVerifier(r.Header, signingSecret)
	if err != nil {
		logger.Debug("missing or stale Slack signature headers", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return nil, false
	}
	if _, err := sv.Write(body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return nil, false
	}
	if err := sv.Ensure(); err != nil {
		logger.Warn("Slack signature mismatch", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return nil, false
	}
	return body, true
}

// Wait blocks until every dispatched message has been handled.
func (h *EventsHandler) Wait() {
	h.wg.Wait()
}
