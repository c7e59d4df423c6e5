package types

// Event represents a typed event emitted during state transitions. Amounts
// are rendered as base-10 integers and addresses as checksummed hex.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attribute returns the named attribute, or "" when absent.
func (e *Event) Attribute(key string) string {
	if e == nil {
		return ""
	}
	return e.Attributes[key]
}
