// Package mhd reads and writes 3D volumes in the MetaImage format
// (.mhd ASCII header plus raw voxel data, either detached in a .raw
// file or appended locally). It is the file boundary of the pipeline;
// the numerical core only ever sees volume.Volume values.
package mhd

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"krcahbone/pkg/volume"
)

// ElementType names the on-disk voxel representation.
type ElementType string

const (
	UChar  ElementType = "MET_UCHAR"
	Char   ElementType = "MET_CHAR"
	Short  ElementType = "MET_SHORT"
	UShort ElementType = "MET_USHORT"
	Float  ElementType = "MET_FLOAT"
	Double ElementType = "MET_DOUBLE"
)

func (t ElementType) size() int {
	switch t {
	case UChar, Char:
		return 1
	case Short, UShort:
		return 2
	case Float:
		return 4
	case Double:
		return 8
	}
	return 0
}

type header struct {
	dims        [3]int
	spacing     volume.Vec3
	origin      volume.Vec3
	elementType ElementType
	bigEndian   bool
	dataFile    string
}

// Read loads the MetaImage at path into a float64 volume, converting
// from the stored element type and preserving spacing and origin.
func Read(path string) (*volume.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	h, err := parseHeader(r)
	if err != nil {
		return nil, fmt.Errorf("mhd: %s: %w", path, err)
	}

	vol, err := volume.New(h.dims[0], h.dims[1], h.dims[2])
	if err != nil {
		return nil, fmt.Errorf("mhd: %s: %w", path, err)
	}
	vol.Spacing = h.spacing
	vol.Origin = h.origin

	data := r
	if h.dataFile != "LOCAL" {
		rawPath := h.dataFile
		if !filepath.IsAbs(rawPath) {
			rawPath = filepath.Join(filepath.Dir(path), rawPath)
		}
		raw, err := os.Open(rawPath)
		if err != nil {
			return nil, fmt.Errorf("mhd: %s: %w", path, err)
		}
		defer raw.Close()
		data = bufio.NewReader(raw)
	}

	if err := readSamples(data, h, vol.Data); err != nil {
		return nil, fmt.Errorf("mhd: %s: %w", path, err)
	}
	return vol, nil
}

func parseHeader(r *bufio.Reader) (header, error) {
	h := header{
		elementType: Float,
		spacing:     volume.Vec3{X: 1, Y: 1, Z: 1},
	}
	seenDims := false
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return h, fmt.Errorf("truncated header: %w", err)
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return h, fmt.Errorf("malformed header line %q", strings.TrimSpace(line))
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "ObjectType":
			if value != "Image" {
				return h, fmt.Errorf("unsupported ObjectType %q", value)
			}
		case "NDims":
			if value != "3" {
				return h, fmt.Errorf("only 3D images are supported, NDims = %s", value)
			}
		case "BinaryData":
			if !strings.EqualFold(value, "true") {
				return h, fmt.Errorf("ASCII element data is not supported")
			}
		case "CompressedData":
			if strings.EqualFold(value, "true") {
				return h, fmt.Errorf("compressed element data is not supported")
			}
		case "BinaryDataByteOrderMSB", "ElementByteOrderMSB":
			h.bigEndian = strings.EqualFold(value, "true")
		case "DimSize":
			n, err := parseFloats(value, 3)
			if err != nil {
				return h, fmt.Errorf("DimSize: %w", err)
			}
			for i := range h.dims {
				h.dims[i] = int(n[i])
			}
			seenDims = true
		case "ElementSpacing", "ElementSize":
			n, err := parseFloats(value, 3)
			if err != nil {
				return h, fmt.Errorf("%s: %w", key, err)
			}
			h.spacing = volume.Vec3{X: n[0], Y: n[1], Z: n[2]}
		case "Offset", "Origin", "Position":
			n, err := parseFloats(value, 3)
			if err != nil {
				return h, fmt.Errorf("%s: %w", key, err)
			}
			h.origin = volume.Vec3{X: n[0], Y: n[1], Z: n[2]}
		case "ElementNumberOfChannels":
			if value != "1" {
				return h, fmt.Errorf("multi-channel images are not supported")
			}
		case "ElementType":
			t := ElementType(value)
			if t.size() == 0 {
				return h, fmt.Errorf("unsupported ElementType %q", value)
			}
			h.elementType = t
		case "ElementDataFile":
			h.dataFile = value
			if !seenDims {
				return h, fmt.Errorf("header is missing DimSize")
			}
			return h, nil
		default:
			// TransformMatrix, AnatomicalOrientation and friends carry
			// no information this pipeline uses.
		}
	}
}

func parseFloats(s string, n int) ([]float64, error) {
	fields := strings.Fields(s)
	if len(fields) != n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(fields))
	}
	out := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func readSamples(r *bufio.Reader, h header, dst []float64) error {
	order := binary.ByteOrder(binary.LittleEndian)
	if h.bigEndian {
		order = binary.BigEndian
	}
	buf := make([]byte, len(dst)*h.elementType.size())
	if _, err := readFull(r, buf); err != nil {
		return fmt.Errorf("element data: %w", err)
	}

	switch h.elementType {
	case UChar:
		for i := range dst {
			dst[i] = float64(buf[i])
		}
	case Char:
		for i := range dst {
			dst[i] = float64(int8(buf[i]))
		}
	case Short:
		for i := range dst {
			dst[i] = float64(int16(order.Uint16(buf[2*i:])))
		}
	case UShort:
		for i := range dst {
			dst[i] = float64(order.Uint16(buf[2*i:]))
		}
	case Float:
		for i := range dst {
			dst[i] = float64(math.Float32frombits(order.Uint32(buf[4*i:])))
		}
	case Double:
		for i := range dst {
			dst[i] = math.Float64frombits(order.Uint64(buf[8*i:]))
		}
	}
	return nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Write stores the volume at path (which should end in .mhd) with a
// detached raw file alongside it, converting samples to elementType
// with clamping for the integral types.
func Write(path string, v *volume.Volume, elementType ElementType) error {
	if elementType.size() == 0 {
		return fmt.Errorf("mhd: unsupported element type %q", elementType)
	}
	rawName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".raw"
	rawPath := filepath.Join(filepath.Dir(path), rawName)

	var b strings.Builder
	fmt.Fprintf(&b, "ObjectType = Image\n")
	fmt.Fprintf(&b, "NDims = 3\n")
	fmt.Fprintf(&b, "BinaryData = True\n")
	fmt.Fprintf(&b, "BinaryDataByteOrderMSB = False\n")
	fmt.Fprintf(&b, "CompressedData = False\n")
	fmt.Fprintf(&b, "DimSize = %d %d %d\n", v.Width, v.Height, v.Depth)
	fmt.Fprintf(&b, "ElementSpacing = %g %g %g\n", v.Spacing.X, v.Spacing.Y, v.Spacing.Z)
	fmt.Fprintf(&b, "Offset = %g %g %g\n", v.Origin.X, v.Origin.Y, v.Origin.Z)
	fmt.Fprintf(&b, "ElementType = %s\n", elementType)
	fmt.Fprintf(&b, "ElementDataFile = %s\n", rawName)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return err
	}

	buf := make([]byte, len(v.Data)*elementType.size())
	order := binary.LittleEndian
	for i, val := range v.Data {
		switch elementType {
		case UChar:
			buf[i] = uint8(clamp(val, 0, math.MaxUint8))
		case Char:
			buf[i] = byte(int8(clamp(val, math.MinInt8, math.MaxInt8)))
		case Short:
			order.PutUint16(buf[2*i:], uint16(int16(clamp(val, math.MinInt16, math.MaxInt16))))
		case UShort:
			order.PutUint16(buf[2*i:], uint16(clamp(val, 0, math.MaxUint16)))
		case Float:
			order.PutUint32(buf[4*i:], math.Float32bits(float32(val)))
		case Double:
			order.PutUint64(buf[8*i:], math.Float64bits(val))
		}
	}
	return os.WriteFile(rawPath, buf, 0644)
}

func clamp(v, lo, hi float64) float64 {
	v = math.Round(v)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
