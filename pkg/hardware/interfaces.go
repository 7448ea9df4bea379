package hardware

import (
	"danfescan/pkg/capture"
	"danfescan/pkg/haptic"
)

// Hardware is a composite interface representing a scanning station: a
// frame source plus a way to signal a successful read.
type Hardware interface {
	capture.Device
	haptic.Feedback
}
