package image

import (
	"image"

	"github.com/disintegration/imaging"
)

// autoOrient applies the transform implied by an EXIF orientation value so
// the pixel data matches how the photo was shot. Orientation 1 (and any
// out-of-range value) is a no-op.
func autoOrient(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
