package types

// EventKind discriminates the two event variants of a trajectory.
type EventKind string

const (
	EventKindMessage    EventKind = "message"
	EventKindScreenshot EventKind = "screenshot"
)

// EnrichmentState tracks background enrichment of a screenshot event.
type EnrichmentState string

const (
	EnrichmentPending   EnrichmentState = "pending"
	EnrichmentDescribed EnrichmentState = "described"
	EnrichmentEmbedded  EnrichmentState = "embedded"
	EnrichmentFailed    EnrichmentState = "failed"
)

// ScreenshotEvent is a screenshot observation plus the fields derived from it
// in the background. Description and Embedding are written at most once.
type ScreenshotEvent struct {
	Screenshot  *Screenshot     `json:"-"`
	Description string          `json:"description,omitempty"`
	Embedding   []float32       `json:"embedding,omitempty"`
	Redundant   bool            `json:"redundant"`
	Enrichment  EnrichmentState `json:"enrichment"`
}

// HasDescription reports whether enrichment produced a description.
func (e *ScreenshotEvent) HasDescription() bool {
	return e != nil && e.Description != ""
}

// HasEmbedding reports whether enrichment produced an embedding.
func (e *ScreenshotEvent) HasEmbedding() bool {
	return e != nil && len(e.Embedding) > 0
}

// Event is one entry of a trajectory: either a Message or a ScreenshotEvent.
type Event struct {
	ID         string           `json:"id"`
	Kind       EventKind        `json:"kind"`
	Message    Message          `json:"message,omitempty"`
	Screenshot *ScreenshotEvent `json:"screenshot,omitempty"`
}

// NewMessageEvent wraps a message.
func NewMessageEvent(id string, msg Message) Event {
	return Event{ID: id, Kind: EventKindMessage, Message: msg}
}

// NewScreenshotEvent wraps a screenshot with empty derived fields.
func NewScreenshotEvent(id string, shot *Screenshot) Event {
	return Event{
		ID:   id,
		Kind: EventKindScreenshot,
		Screenshot: &ScreenshotEvent{
			Screenshot: shot,
			Enrichment: EnrichmentPending,
		},
	}
}

// IsScreenshot reports whether the event is a screenshot observation.
func (e Event) IsScreenshot() bool {
	return e.Kind == EventKindScreenshot && e.Screenshot != nil
}

// Clone returns a copy that shares no mutable state with e. The screenshot
// pixels and an already-set embedding are never mutated again, so they are shared.
func (e Event) Clone() Event {
	e.Message = e.Message.Clone()
	if e.Screenshot != nil {
		se := *e.Screenshot
		e.Screenshot = &se
	}
	return e
}
