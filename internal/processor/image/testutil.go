package image

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
)

// createTestImage creates a test image with a gradient pattern.
// The gradient makes it easy to verify transformations visually.
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8(255 * x / width)
			g := uint8(255 * y / height)
			b := uint8(128)
			img.Set(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}

	return img
}

// encodeTestJPEG encodes an image as JPEG and returns a reader.
func encodeTestJPEG(img image.Image, quality int) io.Reader {
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	return bytes.NewReader(buf.Bytes())
}

// encodeTestPNG encodes an image as PNG and returns a reader.
func encodeTestPNG(img image.Image) io.Reader {
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return bytes.NewReader(buf.Bytes())
}

// createTestJPEG creates a JPEG image of the specified size.
func createTestJPEG(width, height int) io.Reader {
	img := createTestImage(width, height)
	return encodeTestJPEG(img, 85)
}

// createTestPNG creates a PNG image of the specified size.
func createTestPNG(width, height int) io.Reader {
	img := createTestImage(width, height)
	return encodeTestPNG(img)
}

// createLandscapeImage creates a wide image (width > height).
func createLandscapeImage() io.Reader {
	return createTestJPEG(800, 400)
}

// createPortraitImage creates a tall image (height > width).
func createPortraitImage() io.Reader {
	return createTestJPEG(400, 800)
}

// createSquareImage creates a square image.
func createSquareImage() io.Reader {
	return createTestJPEG(600, 600)
}

// createSmallImage creates an image already within preview bounds.
func createSmallImage() io.Reader {
	return createTestJPEG(100, 100)
}

// createLargeImage creates a larger test image.
func createLargeImage() io.Reader {
	return createTestJPEG(2400, 1800)
}

// createInvalidImage returns data that is not a valid image.
func createInvalidImage() io.Reader {
	return bytes.NewReader([]byte("this is not an image"))
}

// createEmptyReader returns an empty reader.
func createEmptyReader() io.Reader {
	return bytes.NewReader([]byte{})
}

// createCorruptedJPEG returns a truncated JPEG (valid header, incomplete data).
func createCorruptedJPEG() io.Reader {
	data := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46}
	return bytes.NewReader(data)
}

// createAnimatedGIF builds a GIF with the given number of frames.
func createAnimatedGIF(width, height, frames int) []byte {
	palette := color.Palette{color.White, color.Black, color.RGBA{R: 255, A: 255}}
	g := &gif.GIF{}
	for i := 0; i < frames; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, width, height), palette)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				frame.SetColorIndex(x, y, uint8((x+y+i)%len(palette)))
			}
		}
		g.Image = append(g.Image, frame)
		g.Delay = append(g.Delay, 10)
	}
	var buf bytes.Buffer
	gif.EncodeAll(&buf, g)
	return buf.Bytes()
}

// createExifJPEG builds a minimal JPEG carrying an APP1 Exif segment with
// the given orientation tag. The image payload is a real 8x8 JPEG so the
// result both parses and decodes.
func createExifJPEG(orientation uint16) []byte {
	// TIFF blob: little-endian header, one IFD with a single orientation tag.
	tiff := &bytes.Buffer{}
	tiff.WriteString("II")
	binary.Write(tiff, binary.LittleEndian, uint16(42))
	binary.Write(tiff, binary.LittleEndian, uint32(8)) // IFD0 offset
	binary.Write(tiff, binary.LittleEndian, uint16(1)) // entry count
	binary.Write(tiff, binary.LittleEndian, uint16(tagOrientation))
	binary.Write(tiff, binary.LittleEndian, uint16(3)) // SHORT
	binary.Write(tiff, binary.LittleEndian, uint32(1))
	binary.Write(tiff, binary.LittleEndian, orientation)
	binary.Write(tiff, binary.LittleEndian, uint16(0)) // value padding
	binary.Write(tiff, binary.LittleEndian, uint32(0)) // next IFD

	payload := append([]byte("Exif\x00\x00"), tiff.Bytes()...)

	base := readerToBytes(createTestJPEG(8, 8))

	out := &bytes.Buffer{}
	out.Write(base[:2]) // SOI
	out.WriteByte(0xFF)
	out.WriteByte(0xE1)
	binary.Write(out, binary.BigEndian, uint16(len(payload)+2))
	out.Write(payload)
	out.Write(base[2:])
	return out.Bytes()
}

// getImageDimensions decodes an image and returns its dimensions.
func getImageDimensions(r io.Reader) (width, height int, err error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return 0, 0, err
	}
	bounds := img.Bounds()
	return bounds.Dx(), bounds.Dy(), nil
}

// readerToBytes reads all bytes from a reader.
func readerToBytes(r io.Reader) []byte {
	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.Bytes()
}
