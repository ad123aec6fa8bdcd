package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// upgrader mirrors the teacher's websocket handler defaults
// (internal/handlers/websocket_handler.go): generous buffers, origin
// check left permissive since the stream endpoint is read-only and
// gated by the same bearer auth as the rest of the API.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const streamWriteWait = 10 * time.Second
const streamPingInterval = 30 * time.Second

// StreamHandler upgrades GET /api/v1/system/stream to a websocket and
// relays every EventBus event to the connected client until it
// disconnects (spec.md §9's "websocket is an acceptable one of
// several transports" note).
func (f *Facade) StreamHandler(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.WithError(err).Warn("api: websocket upgrade failed")
			return
		}
		defer conn.Close()

		sub := f.Subscribe()
		defer sub.Unsubscribe()

		ping := time.NewTicker(streamPingInterval)
		defer ping.Stop()

		for {
			select {
			case evt, ok := <-sub.C:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteJSON(evt); err != nil {
					return
				}
			case <-ping.C:
				conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}
