package bridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// Messenger delivers replies to Slack.
type Messenger interface {
	PostMessage(ctx context.Context, channel, text string) error
	AddReaction(ctx context.Context, channel, ts, emoji string) error
}

// SlackAPI adapts *slack.Client to Messenger and Directory.
type SlackAPI struct {
	api *slack.Client
}

// NewSlackAPI wraps an existing client.
func NewSlackAPI(api *slack.Client) *SlackAPI {
	return &SlackAPI{api: api}
}

// PostMessage posts text to a channel ID or name.
func (s *SlackAPI) PostMessage(ctx context.Context, channel, text string) error {
	_, _, err := s.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("post message to %s: %w", channel, err)
	}
	return nil
}

// AddReaction reacts to the message at ts.
func (s *SlackAPI) AddReaction(ctx context.Context, channel, ts, emoji string) error {
	if err := s.api.AddReactionContext(ctx, emoji, slack.NewRefToMessage(channel, ts)); err != nil {
		return fmt.Errorf("add reaction %s: %w", emoji, err)
	}
	return nil
}

// UserName returns the user's real name, falling back to their handle.
func (s *SlackAPI) UserName(ctx context.Context, userID string) (string, error) {
	user, err := s.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get user %s: %w", userID, err)
	}
	if user.RealName != "" {
		return user.RealName, nil
	}
	return user.Name, nil
}

// ChannelName returns the channel's name without the leading '#'.
func (s *SlackAPI) ChannelName(ctx context.Context, channelID string) (string, error) {
	ch, err := s.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelID})
	if err != nil {
		return "", fmt.Errorf("get channel %s: %w", channelID, err)
	}
	return ch.Name, nil
}

// BotUserID returns the user ID the bot token authenticates as.
func (s *SlackAPI) BotUserID(ctx context.Context) (string, error) {
	auth, err := s.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("Slack auth test: %w", err)
	}
	return auth.UserID, nil
}

// Message is an inbound chat message, independent of transport.
type Message struct {
	ChannelID string
	UserID    string
	Text      string
	TS        string
	BotID     string
	SubType   string
}

func messageFromEvent(ev *slackevents.MessageEvent) Message {
	return Message{
		ChannelID: ev.Channel,
		UserID:    ev.User,
		Text:      ev.Text,
		TS:        ev.TimeStamp,
		BotID:     ev.BotID,
		SubType:   ev.SubType,
	}
}

// parseTS converts a Slack message timestamp ("1700000000.123456") to a time.
func parseTS(ts string) (time.Time, bool) {
	secs, frac, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secs, 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}, false
	}
	var nsec int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		n, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		for i := len(frac); i < 9; i++ {
			n *= 10
		}
		nsec = n
	}
	return time.Unix(sec, nsec), true
}
