package chat

import (
	"context"
	"log/slog"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// TwitchTransport streams chat for a Twitch channel over IRC. Used when a
// watched streamer simulcasts on Twitch and chat should be read there instead
// of from the Kick chatroom. The IRC library handles its own reconnects.
type TwitchTransport struct {
	Username string
	OAuth    string
	Channel  string

	msgs chan Message
}

// NewTwitchTransport creates a transport for one Twitch channel. The oauth
// token must be a user token with chat:read scope.
func NewTwitchTransport(username, oauth, channel string) *TwitchTransport {
	return &TwitchTransport{
		Username: username,
		OAuth:    oauth,
		Channel:  channel,
		msgs:     make(chan Message, 64),
	}
}

// Messages returns the delivery channel.
func (t *TwitchTransport) Messages() <-chan Message { return t.msgs }

// Run connects and blocks until ctx is canceled.
func (t *TwitchTransport) Run(ctx context.Context) error {
	defer close(t.msgs)
	logger := slog.Default().With(slog.String("component", "chat_twitch"), slog.String("channel", t.Channel))

	client := twitch.NewClient(t.Username, t.OAuth)
	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		m := Message{Content: msg.Message, Username: msg.User.Name, ReceivedAt: time.Now().UTC()}
		select {
		case t.msgs <- m:
		default:
			logger.Warn("chat message channel full; dropping message")
		}
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = client.Disconnect()
		close(done)
	}()

	client.Join(t.Channel)
	if err := client.Connect(); err != nil && ctx.Err() == nil {
		logger.Error("twitch chat connect error", slog.Any("err", err))
		return err
	}
	<-done
	return nil
}
