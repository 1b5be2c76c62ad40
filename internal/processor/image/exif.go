package image

import (
	"encoding/binary"
	"errors"
	"time"
)

// ExifData carries the handful of EXIF fields the pipeline cares about:
// orientation for auto-rotate, GPS for reverse geocoding, capture time for
// the asset record. Anything else in the blob is ignored.
type ExifData struct {
	Orientation int
	Latitude    *float64
	Longitude   *float64
	TakenAt     *time.Time
}

const (
	tagOrientation      = 0x0112
	tagExifIFDPointer   = 0x8769
	tagGPSIFDPointer    = 0x8825
	tagDateTimeOriginal = 0x9003
	tagGPSLatitudeRef   = 0x0001
	tagGPSLatitude      = 0x0002
	tagGPSLongitudeRef  = 0x0003
	tagGPSLongitude     = 0x0004
)

var errNoExif = errors.New("no exif segment")

// ParseExif scans a JPEG for its APP1 Exif segment and decodes the TIFF IFDs
// inside it. Non-JPEG input or a missing segment yields zero-value ExifData,
// never an error the caller has to branch on.
func ParseExif(data []byte) ExifData {
	out := ExifData{Orientation: 1}

	seg, err := findExifSegment(data)
	if err != nil {
		return out
	}

	tiff := seg
	if len(tiff) < 8 {
		return out
	}
	var order binary.ByteOrder
	switch {
	case tiff[0] == 'I' && tiff[1] == 'I':
		order = binary.LittleEndian
	case tiff[0] == 'M' && tiff[1] == 'M':
		order = binary.BigEndian
	default:
		return out
	}

	ifd0 := order.Uint32(tiff[4:8])
	entries := readIFD(tiff, order, ifd0)

	var exifIFD, gpsIFD uint32
	for _, e := range entries {
		switch e.tag {
		case tagOrientation:
			if v, ok := e.short(order); ok && v >= 1 && v <= 8 {
				out.Orientation = int(v)
			}
		case tagExifIFDPointer:
			exifIFD, _ = e.long(order)
		case tagGPSIFDPointer:
			gpsIFD, _ = e.long(order)
		}
	}

	if exifIFD != 0 {
		for _, e := range readIFD(tiff, order, exifIFD) {
			if e.tag == tagDateTimeOriginal {
				if s, ok := e.ascii(tiff, order); ok {
					if t, err := time.Parse("2006:01:02 15:04:05", s); err == nil {
						out.TakenAt = &t
					}
				}
			}
		}
	}

	if gpsIFD != 0 {
		var latRef, lngRef string
		var lat, lng *float64
		for _, e := range readIFD(tiff, order, gpsIFD) {
			switch e.tag {
			case tagGPSLatitudeRef:
				latRef, _ = e.ascii(tiff, order)
			case tagGPSLongitudeRef:
				lngRef, _ = e.ascii(tiff, order)
			case tagGPSLatitude:
				lat = e.degrees(tiff, order)
			case tagGPSLongitude:
				lng = e.degrees(tiff, order)
			}
		}
		if lat != nil && lng != nil {
			if latRef == "S" {
				*lat = -*lat
			}
			if lngRef == "W" {
				*lng = -*lng
			}
			out.Latitude = lat
			out.Longitude = lng
		}
	}

	return out
}

func findExifSegment(data []byte) ([]byte, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, errNoExif
	}
	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xFF {
			return nil, errNoExif
		}
		marker := data[i+1]
		if marker == 0xDA { // start of scan, no more headers
			return nil, errNoExif
		}
		size := int(binary.BigEndian.Uint16(data[i+2 : i+4]))
		if size < 2 || i+2+size > len(data) {
			return nil, errNoExif
		}
		if marker == 0xE1 {
			seg := data[i+4 : i+2+size]
			if len(seg) > 6 && string(seg[:6]) == "Exif\x00\x00" {
				return seg[6:], nil
			}
		}
		i += 2 + size
	}
	return nil, errNoExif
}

type ifdEntry struct {
	tag     uint16
	typ     uint16
	count   uint32
	value   [4]byte
	rawData []byte // whole TIFF blob for offset lookups
}

func readIFD(tiff []byte, order binary.ByteOrder, offset uint32) []ifdEntry {
	if int(offset)+2 > len(tiff) {
		return nil
	}
	n := int(order.Uint16(tiff[offset : offset+2]))
	entries := make([]ifdEntry, 0, n)
	for i := 0; i < n; i++ {
		base := int(offset) + 2 + i*12
		if base+12 > len(tiff) {
			break
		}
		e := ifdEntry{
			tag:     order.Uint16(tiff[base : base+2]),
			typ:     order.Uint16(tiff[base+2 : base+4]),
			count:   order.Uint32(tiff[base+4 : base+8]),
			rawData: tiff,
		}
		copy(e.value[:], tiff[base+8:base+12])
		entries = append(entries, e)
	}
	return entries
}

func (e ifdEntry) short(order binary.ByteOrder) (uint16, bool) {
	if e.typ != 3 || e.count < 1 {
		return 0, false
	}
	return order.Uint16(e.value[:2]), true
}

func (e ifdEntry) long(order binary.ByteOrder) (uint32, bool) {
	if e.typ != 4 || e.count < 1 {
		return 0, false
	}
	return order.Uint32(e.value[:]), true
}

func (e ifdEntry) ascii(tiff []byte, order binary.ByteOrder) (string, bool) {
	if e.typ != 2 || e.count == 0 {
		return "", false
	}
	var raw []byte
	if e.count <= 4 {
		raw = e.value[:e.count]
	} else {
		off := order.Uint32(e.value[:])
		if int(off)+int(e.count) > len(tiff) {
			return "", false
		}
		raw = tiff[off : off+e.count]
	}
	// trim the NUL terminator
	for len(raw) > 0 && raw[len(raw)-1] == 0 {
		raw = raw[:len(raw)-1]
	}
	return string(raw), true
}

// degrees decodes the three-rational degrees/minutes/seconds GPS encoding.
func (e ifdEntry) degrees(tiff []byte, order binary.ByteOrder) *float64 {
	if e.typ != 5 || e.count != 3 {
		return nil
	}
	off := order.Uint32(e.value[:])
	if int(off)+24 > len(tiff) {
		return nil
	}
	parts := make([]float64, 3)
	for i := 0; i < 3; i++ {
		num := order.Uint32(tiff[off+uint32(i*8) : off+uint32(i*8)+4])
		den := order.Uint32(tiff[off+uint32(i*8)+4 : off+uint32(i*8)+8])
		if den == 0 {
			return nil
		}
		parts[i] = float64(num) / float64(den)
	}
	deg := parts[0] + parts[1]/60 + parts[2]/3600
	return &deg
}
