package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/victornm/greensafari/internal/domain"
	"github.com/victornm/greensafari/internal/errors"
	"github.com/victornm/greensafari/internal/leaderboard"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// PublishLeaderboardUpdated broadcasts the leaderboard to every instance through Redis pub/sub.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	return a.publishNotification(ctx, e.Name(), e.Leaderboard)
}

func (a *API) publishNotification(ctx context.Context, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, a.leaderboardChannel(), b).Err()
}

func (a *API) leaderboardChannel() string {
	return fmt.Sprintf("%s:leaderboard", a.prefix)
}

// liveLeaderboard streams leaderboard notifications over a websocket, starting with the current leaderboard.
func (a *API) liveLeaderboard(c *gin.Context) {
	if a.redis == nil || a.ls == nil {
		writeError(c, errors.New(errors.CodeUnavailable, errors.WithMessagef("live leaderboard is not available")))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has replied to the client already.
		slog.WarnContext(c.Request.Context(), "api: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	sub := a.redis.Subscribe(ctx, a.leaderboardChannel())
	defer sub.Close()

	// Wait for the subscription so no update is lost after the snapshot.
	if _, err := sub.Receive(ctx); err != nil {
		slog.ErrorContext(ctx, "api: subscribe leaderboard failed", "error", err)
		closeWith(conn, websocket.CloseInternalServerErr, "subscribe failed")
		return
	}

	l, err := a.ls.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{})
	if err != nil {
		slog.ErrorContext(ctx, "api: get leaderboard failed", "error", err)
		closeWith(conn, websocket.CloseInternalServerErr, "get leaderboard failed")
		return
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Notification{Event: domain.EventNameLeaderboardUpdated, Data: l}); err != nil {
		return
	}

	// The client never sends data, reading only detects that it went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-msgs:
			if !ok {
				return
			}

			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}
