package types

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// NewEvent returns an event with an initialised attribute map.
func NewEvent(eventType string) *Event {
	return &Event{Type: eventType, Attributes: make(map[string]string)}
}

// Clone returns a deep copy so subscribers cannot mutate the emitted value.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	attrs := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	return &Event{Type: e.Type, Attributes: attrs}
}
