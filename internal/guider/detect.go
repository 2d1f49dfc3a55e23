package guider

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Detection is the outcome of one frame analysis. Frame holds the
// downscaled image the coordinates refer to.
type Detection struct {
	Frame *image.NRGBA

	// CX, CY is the frame center; TX, TY the detected centroid.
	CX, CY int
	TX, TY int

	// DX, DY, R is the error vector centroid-minus-center.
	DX, DY, R float64

	Found bool
}

// Detect downscales a frame, segments the bright disk, and locates its
// centroid. Found is false when no region of at least minArea pixels
// survives thresholding.
func Detect(src image.Image, downscaleWidth, blurSize, minArea int) Detection {
	frame := src
	if w := src.Bounds().Dx(); downscaleWidth > 0 && w > downscaleWidth {
		frame = imaging.Resize(src, downscaleWidth, 0, imaging.Box)
	}
	nrgba := imaging.Clone(frame)

	gray := imaging.Grayscale(nrgba)
	if blurSize > 1 {
		gray = imaging.Blur(gray, float64(blurSize)/2)
	}

	lum := luminance(gray)
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()

	det := Detection{
		Frame: nrgba,
		CX:    w / 2,
		CY:    h / 2,
	}

	threshold := otsuThreshold(lum)
	mask := make([]bool, len(lum))
	for i, v := range lum {
		mask[i] = v > threshold
	}

	region, ok := largestRegion(mask, w, h, minArea)
	if !ok {
		return det
	}

	det.TX = region.sumX / region.area
	det.TY = region.sumY / region.area
	det.DX = float64(det.TX - det.CX)
	det.DY = float64(det.TY - det.CY)
	det.R = math.Hypot(det.DX, det.DY)
	det.Found = true
	return det
}

// luminance extracts one brightness byte per pixel from a grayscale
// NRGBA image (R, G, and B are equal after imaging.Grayscale).
func luminance(img *image.NRGBA) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			out[y*w+x] = row[x*4]
		}
	}
	return out
}

// otsuThreshold picks the brightness cut that maximizes between-class
// variance over the image histogram.
func otsuThreshold(lum []uint8) uint8 {
	var hist [256]int
	for _, v := range lum {
		hist[v]++
	}
	total := len(lum)

	var sumAll float64
	for i, n := range hist {
		sumAll += float64(i) * float64(n)
	}

	var (
		sumBack    float64
		weightBack int
		bestVar    float64
		best       uint8
	)
	for t := 0; t < 256; t++ {
		weightBack += hist[t]
		if weightBack == 0 {
			continue
		}
		weightFore := total - weightBack
		if weightFore == 0 {
			break
		}
		sumBack += float64(t) * float64(hist[t])

		meanBack := sumBack / float64(weightBack)
		meanFore := (sumAll - sumBack) / float64(weightFore)
		diff := meanBack - meanFore
		between := float64(weightBack) * float64(weightFore) * diff * diff
		if between > bestVar {
			bestVar = between
			best = uint8(t)
		}
	}
	return best
}

// region accumulates first-order moments for one connected component.
type region struct {
	area int
	sumX int
	sumY int
}

// largestRegion labels 4-connected components of the mask and returns
// the one with the largest pixel count meeting minArea.
func largestRegion(mask []bool, w, h, minArea int) (region, bool) {
	visited := make([]bool, len(mask))
	queue := make([]int, 0, 256)

	var best region
	found := false

	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}

		var r region
		visited[start] = true
		queue = append(queue[:0], start)

		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]

			x, y := idx%w, idx/w
			r.area++
			r.sumX += x
			r.sumY += y

			if x > 0 && mask[idx-1] && !visited[idx-1] {
				visited[idx-1] = true
				queue = append(queue, idx-1)
			}
			if x < w-1 && mask[idx+1] && !visited[idx+1] {
				visited[idx+1] = true
				queue = append(queue, idx+1)
			}
			if y > 0 && mask[idx-w] && !visited[idx-w] {
				visited[idx-w] = true
				queue = append(queue, idx-w)
			}
			if y < h-1 && mask[idx+w] && !visited[idx+w] {
				visited[idx+w] = true
				queue = append(queue, idx+w)
			}
		}

		if r.area >= minArea && (!found || r.area > best.area) {
			best = r
			found = true
		}
	}
	return best, found
}
