package guider

import (
	"bytes"
	"encoding/base64"
	"image/jpeg"

	"github.com/fogleman/gg"
)

const crosshairSize = 11

// renderOverlay draws the guiding annotations onto the detection frame
// and encodes it as a base64 JPEG data URL: a crosshair at the frame
// center, and when a target was found, the centroid crosshair, the
// error vector, and the lock ring.
func renderOverlay(det Detection, lockRadius float64, quality int) (string, error) {
	dc := gg.NewContextForImage(det.Frame)

	// Frame center, blue.
	dc.SetRGB255(0, 128, 255)
	drawCrosshair(dc, float64(det.CX), float64(det.CY))

	if det.Found {
		// Target centroid, red.
		dc.SetRGB255(255, 0, 0)
		drawCrosshair(dc, float64(det.TX), float64(det.TY))

		// Error vector, green.
		dc.SetRGB255(0, 200, 0)
		dc.SetLineWidth(2)
		dc.DrawLine(float64(det.CX), float64(det.CY), float64(det.TX), float64(det.TY))
		dc.Stroke()

		// Lock ring around center.
		dc.SetRGB255(0, 170, 0)
		dc.SetLineWidth(1)
		dc.DrawCircle(float64(det.CX), float64(det.CY), lockRadius)
		dc.Stroke()
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: quality}); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func drawCrosshair(dc *gg.Context, x, y float64) {
	dc.SetLineWidth(2)
	dc.DrawLine(x-crosshairSize, y, x+crosshairSize, y)
	dc.DrawLine(x, y-crosshairSize, x, y+crosshairSize)
	dc.Stroke()
	dc.DrawCircle(x, y, 2)
	dc.Fill()
}
