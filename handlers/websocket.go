package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"passenger-flow-api/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Subscriber interface {
	Subscribe(ctx context.Context, channel string) *redis.PubSub
}

type liveMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// LiveWebSocket relays the live passenger channel to the client. It runs
// behind middleware.Authenticate, which accepts the token as a query parameter.
func LiveWebSocket(cache Subscriber) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		pubsub := cache.Subscribe(ctx, services.LiveChannel)
		if pubsub == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live feed unavailable"})
			return
		}
		defer pubsub.Close()

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		// Read pump: detect client disconnect
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(wsPingPeriod)
		defer ping.Stop()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case msg, ok := <-ch:
				if !ok {
					return
				}
				out := liveMessage{Type: "passenger_count", Data: json.RawMessage(msg.Payload)}
				if !json.Valid(out.Data) {
					log.Warn().Str("channel", msg.Channel).Msg("dropping malformed live message")
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(out); err != nil {
					log.Debug().Err(err).Msg("ws write failed")
					return
				}
			}
		}
	}
}
