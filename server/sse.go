package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skillsenselab/scribed/logger"
)

// sseKeepAlive must stay under typical proxy idle timeouts (60s).
const sseKeepAlive = 30 * time.Second

// events streams job state snapshots over SSE. The stream ends when the
// job reaches a terminal state or the client disconnects. Connecting to
// an already-terminal job replays its final snapshot and closes.
func (h *Handler) events(c *gin.Context) {
	id := c.Param("id")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		RespondWithError(c, fmt.Errorf("streaming not supported"))
		return
	}

	snapshots, cancel, err := h.reporter.Subscribe(id)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	defer cancel()

	// SSE connections outlive the server's write timeout.
	rc := http.NewResponseController(c.Writer)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.log.Warn("Could not disable write deadline", map[string]interface{}{
			logger.FieldJobID: id,
			"error":           err.Error(),
		})
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case snap, open := <-snapshots:
			if !open {
				// Terminal snapshot already delivered.
				fmt.Fprint(c.Writer, "event: done\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				h.log.Error("Cannot encode job snapshot", map[string]interface{}{
					logger.FieldJobID: id,
					"error":           err.Error(),
				})
				return
			}
			fmt.Fprintf(c.Writer, "event: status\ndata: %s\n\n", payload)
			flusher.Flush()

		case <-keepAlive.C:
			fmt.Fprintf(c.Writer, ": keepalive %d\n\n", time.Now().Unix())
			flusher.Flush()
		}
	}
}
