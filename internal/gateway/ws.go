package gateway

import (
	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// handleSubscribe upgrades to a websocket and streams the conversation's
// committed message inserts as JSON frames until the client disconnects.
// Every insert is forwarded, including ones triggered by the subscribing
// client's own posts.
func handleSubscribe(deps routeDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := websocket.Accept(c.Writer, c.Request, nil)
		if err != nil {
			// Accept already wrote the handshake failure response.
			return
		}
		defer conn.Close(websocket.StatusInternalError, "stream aborted")

		events, cancel := deps.broker.Subscribe(c.Param("id"))
		defer cancel()

		ctx := c.Request.Context()

		// Reads are discarded; the stream is one-way. CloseRead surfaces
		// the client going away as ctx cancellation.
		ctx = conn.CloseRead(ctx)

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case msg, ok := <-events:
				if !ok {
					conn.Close(websocket.StatusNormalClosure, "")
					return
				}
				if err := wsjson.Write(ctx, conn, msg); err != nil {
					return
				}
			}
		}
	}
}
