package progress

// EventType discriminates the three wire payloads.
type EventType string

const (
	TypeProgress EventType = "progress"
	TypeComplete EventType = "complete"
	TypeError    EventType = "error"
)

// Event is one message of the progress stream. Summary is only set on the
// complete event and its fields are flattened into the JSON object.
type Event struct {
	Type       EventType `json:"type"`
	Phase      Phase     `json:"phase,omitempty"`
	Message    string    `json:"message"`
	Uploaded   *int      `json:"uploaded,omitempty"`
	Total      *int      `json:"total,omitempty"`
	Percentage *int      `json:"percentage,omitempty"`
	*Summary
}

// Summary is the payload of a complete event.
type Summary struct {
	Constants      map[string]interface{} `json:"constants"`
	UploadedImages []string               `json:"uploadedImages"`
	ImageCount     int                    `json:"imageCount"`
	StoragePath    string                 `json:"storagePath"`
	CoverImage     *string                `json:"coverImage"`
	TotalSizeMB    float64                `json:"totalSizeMB"`
}

// Terminal reports whether e ends the stream.
func (e Event) Terminal() bool {
	return e.Type == TypeComplete || e.Type == TypeError
}

// Pct returns the percentage or -1 when absent.
func (e Event) Pct() int {
	if e.Percentage == nil {
		return -1
	}
	return *e.Percentage
}

// ErrorEvent builds a terminal error event.
func ErrorEvent(message string) Event {
	return Event{Type: TypeError, Message: message}
}

func intPtr(v int) *int { return &v }
