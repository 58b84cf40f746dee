package handlers

import (
	"os"

	"github.com/gin-gonic/gin"

	"github.com/dialworks/leadagent/pkg/errors"
)

// GetRecording serves a finalized call recording. Track is "inbound" or
// "outbound", defaulting to outbound (the assistant's side).
func (h *Handler) GetRecording(c *gin.Context) {
	streamID := c.GetString("stream_id")
	track := c.DefaultQuery("track", "outbound")
	if track != "inbound" && track != "outbound" {
		errors.BadRequest(c, "track must be inbound or outbound")
		return
	}

	path := h.recorder.Path(streamID, track)
	if _, err := os.Stat(path); err != nil {
		errors.NotFound(c, "recording not found")
		return
	}

	c.Header("Content-Type", "audio/wav")
	c.File(path)
}
