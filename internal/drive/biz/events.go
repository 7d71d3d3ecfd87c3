package biz

import (
	"github.com/teledrive-vn/teledrive/internal/pkg/sse"
)

// ProgressTopic is the hub topic all scan and upload progress goes to
const ProgressTopic = "scan"

// Progress phases, emitted in order by the reconciler. The uploader only
// emits completed and error.
const (
	PhaseConnecting       = "connecting"
	PhaseResolvingChannel = "resolving_channel"
	PhaseCountingMessages = "counting_messages"
	PhaseScanning         = "scanning"
	PhaseSaving           = "saving"
	PhaseCompleted        = "completed"
	PhaseError            = "error"
)

// ProgressEvent is one progress tick. Delivery is best-effort; missed
// events are not replayed.
type ProgressEvent struct {
	Phase      string `json:"phase"`
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	FilesFound int    `json:"files_found"`
	Error      string `json:"error,omitempty"`
}

// ProgressPublisher fans progress events out to subscribers
type ProgressPublisher interface {
	Publish(event ProgressEvent)
}

// HubPublisher publishes progress through the SSE hub
type HubPublisher struct {
	hub *sse.Hub
}

// NewHubPublisher creates a publisher over the hub
func NewHubPublisher(hub *sse.Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

// Publish implements ProgressPublisher
func (p *HubPublisher) Publish(event ProgressEvent) {
	p.hub.Publish(ProgressTopic, sse.Event{Type: event.Phase, Data: event})
}

// nopPublisher drops events; used when no hub is wired
type nopPublisher struct{}

func (nopPublisher) Publish(ProgressEvent) {}

var _ ProgressPublisher = nopPublisher{}
