package guider

import "fmt"

// FrameError reports a non-OK response from the frame source.
type FrameError struct {
	Status int
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("guider: frame source returned status %d", e.Status)
}
