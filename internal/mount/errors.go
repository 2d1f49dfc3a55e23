package mount

import "errors"

// Sentinel errors returned by mount operations.
var (
	// ErrInvalidDirection indicates a direction outside north/south/east/west.
	ErrInvalidDirection = errors.New("mount: invalid direction")

	// ErrClosed indicates an operation on a controller after Shutdown.
	ErrClosed = errors.New("mount: controller is shut down")
)
