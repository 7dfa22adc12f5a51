package enums

import "fmt"

// RenderStatus tracks a render job through its lifecycle.
type RenderStatus string

const (
	RenderStatusPending    RenderStatus = "pending"
	RenderStatusProcessing RenderStatus = "processing"
	RenderStatusCompleted  RenderStatus = "completed"
	RenderStatusFailed     RenderStatus = "failed"
)

var validRenderStatuses = []RenderStatus{
	RenderStatusPending,
	RenderStatusProcessing,
	RenderStatusCompleted,
	RenderStatusFailed,
}

// String implements fmt.Stringer.
func (s RenderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s RenderStatus) IsValid() bool {
	for _, candidate := range validRenderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
func (s RenderStatus) IsTerminal() bool {
	return s == RenderStatusCompleted || s == RenderStatusFailed
}

// ParseRenderStatus converts raw input into a RenderStatus.
func ParseRenderStatus(value string) (RenderStatus, error) {
	for _, candidate := range validRenderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid render status %q", value)
}
