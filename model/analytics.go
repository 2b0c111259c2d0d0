package model

// Descriptors is a feature-descriptor set produced by the vision toolkit.
// Implementations may own native memory and must be closed.
type Descriptors interface {
	Len() int
	Close() error
}

type EventType string

const (
	EventBoxCount EventType = "box_count"
	EventFace     EventType = "face"
	EventSession  EventType = "session"
)

// Event is an analytics result published to external subscribers.
type Event struct {
	Type      EventType `json:"type"`
	Device    string    `json:"device"`
	SessionID string    `json:"sessionId,omitempty"`
	Count     int       `json:"count,omitempty"`
	Label     string    `json:"label,omitempty"`
	State     string    `json:"state,omitempty"`
	Snapshot  string    `json:"snapshot,omitempty"`
	Timestamp int64     `json:"timestamp"`
}
