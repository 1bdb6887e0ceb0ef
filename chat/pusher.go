package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"
)

const (
	chatMessageEvent = `App\Events\ChatMessageEvent`

	reconnectDelay       = 5 * time.Second
	maxReconnectAttempts = 10
)

// PusherTransport streams chat for a Kick chatroom over the Pusher websocket.
// It subscribes to the chatroom channel, answers pings, and reconnects with a
// fixed delay up to a bounded number of attempts.
type PusherTransport struct {
	URL        string
	ChatroomID int64

	msgs chan Message
}

// NewPusherTransport creates a transport for one chatroom.
func NewPusherTransport(url string, chatroomID int64) *PusherTransport {
	return &PusherTransport{
		URL:        url,
		ChatroomID: chatroomID,
		msgs:       make(chan Message, 64),
	}
}

// Messages returns the delivery channel.
func (p *PusherTransport) Messages() <-chan Message { return p.msgs }

// Run connects and reads until ctx is canceled or reconnects are exhausted.
func (p *PusherTransport) Run(ctx context.Context) error {
	defer close(p.msgs)
	logger := slog.Default().With(slog.String("component", "chat_pusher"), slog.Int64("chatroom", p.ChatroomID))

	attempts := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		err := p.session(ctx, logger)
		if ctx.Err() != nil {
			return nil
		}
		attempts++
		if attempts > maxReconnectAttempts {
			logger.Error("chat websocket gave up after max reconnect attempts", slog.Int("attempts", attempts-1))
			return fmt.Errorf("chat websocket: max reconnect attempts exceeded")
		}
		logger.Warn("chat websocket disconnected; reconnecting",
			slog.Any("err", err), slog.Int("attempt", attempts), slog.Duration("delay", reconnectDelay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

// session runs a single websocket connection until it drops.
func (p *PusherTransport) session(ctx context.Context, logger *slog.Logger) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.Dial(dialCtx, p.URL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	// Emote walls occasionally exceed the default 32KB read limit.
	conn.SetReadLimit(1 << 20)

	sub := pusherFrame{Event: "pusher:subscribe"}
	sub.Data, _ = json.Marshal(map[string]string{"channel": fmt.Sprintf("chatrooms.%d.v2", p.ChatroomID)})
	if err := writeJSON(ctx, conn, sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	logger.Info("subscribed to chatroom")

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		msg, ok, err := ParsePusherMessage(raw, time.Now().UTC())
		if err != nil {
			logger.Debug("unparseable chat frame", slog.Any("err", err))
			continue
		}
		if ok {
			select {
			case p.msgs <- msg:
			default:
				logger.Warn("chat message channel full; dropping message")
			}
			continue
		}
		// Non-chat frames: only pings need a reply.
		var frame pusherFrame
		if json.Unmarshal(raw, &frame) == nil && frame.Event == "pusher:ping" {
			pong := pusherFrame{Event: "pusher:pong"}
			pong.Data, _ = json.Marshal(map[string]string{})
			if err := writeJSON(ctx, conn, pong); err != nil {
				return fmt.Errorf("pong: %w", err)
			}
		}
	}
}

type pusherFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ParsePusherMessage decodes a raw Pusher frame. ok is true only for chat
// message events; other frames return ok=false with no error. The Pusher
// protocol double-encodes event payloads as JSON strings.
func ParsePusherMessage(raw []byte, receivedAt time.Time) (Message, bool, error) {
	var frame pusherFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Message{}, false, err
	}
	if frame.Event != chatMessageEvent {
		return Message{}, false, nil
	}
	payload := frame.Data
	var inner string
	if json.Unmarshal(frame.Data, &inner) == nil {
		payload = []byte(inner)
	}
	var body struct {
		Content string `json:"content"`
		Sender  struct {
			Username string `json:"username"`
		} `json:"sender"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return Message{}, false, fmt.Errorf("chat payload: %w", err)
	}
	return Message{Content: body.Content, Username: body.Sender.Username, ReceivedAt: receivedAt}, true, nil
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, b)
}
