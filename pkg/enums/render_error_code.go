package enums

// RenderErrorCode is the machine-readable failure reason stored on a render job.
type RenderErrorCode string

const (
	RenderErrorCodeFailed  RenderErrorCode = "RENDER_FAILED"
	RenderErrorCodeTimeout RenderErrorCode = "RENDER_TIMEOUT"
)

// String implements fmt.Stringer.
func (c RenderErrorCode) String() string {
	return string(c)
}
