package sse

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// WriteHeaders sets the response headers for an SSE stream
func WriteHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}

// Serve streams hub events for a topic until the client disconnects.
// It subscribes, writes each event in SSE wire format, and unsubscribes on return.
func Serve(c *gin.Context, hub *Hub, topic string) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	WriteHeaders(c)

	id, ch := hub.Subscribe(topic)
	defer hub.Unsubscribe(topic, id)

	clientGone := c.Request.Context().Done()

	for {
		select {
		case <-clientGone:
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := WriteEvent(c, event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// WriteEvent writes one event in SSE wire format
func WriteEvent(c *gin.Context, event Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}

	if event.Type != "" {
		if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event.Type); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(c.Writer, "data: %s\n\n", string(data))
	return err
}
