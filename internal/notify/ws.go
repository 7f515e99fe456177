package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"nhooyr.io/websocket"
)

// authFrame is the single incoming message type a subscriber may send:
// {"type": "auth", "userId": "..."}.
type authFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type wsChannel struct {
	conn *websocket.Conn
}

func (c *wsChannel) Send(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsChannel) Close() {
	_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
}

// Handler upgrades requests to /ws, waits for the auth frame, and then
// blocks delivering nothing itself; all writes go through Bus.NotifyUser /
// Bus.Broadcast from other goroutines via the Channel registered at auth
// time. The read loop detects client disconnect and handles auth frames:
// frames that are not a valid auth frame are ignored, and a later auth
// frame moves the channel to the new user id.
func Handler(bus *Bus, logger *slog.Logger, allowedOrigins []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: allowedOrigins})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusInternalError, "closing")

		ctx := r.Context()
		ch := &wsChannel{conn: conn}
		var userID string

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if userID != "" {
					bus.Unsubscribe(userID, ch)
				}
				return
			}
			var frame authFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				continue
			}
			if frame.Type != "auth" || frame.UserID == "" {
				continue
			}
			if userID != "" {
				bus.Unsubscribe(userID, ch)
			}
			userID = frame.UserID
			bus.Subscribe(userID, ch)
			if err := ch.Send(ctx, Event{Type: "auth:success", Data: map[string]string{"userId": userID}}); err != nil {
				logger.Debug("notify: auth ack write failed", "user_id", userID, "err", err)
				bus.Unsubscribe(userID, ch)
				return
			}
		}
	}
}
