package codec

import (
	"bytes"
	"sync"

	"github.com/idlab-discover/pointcast/internal/fault"
	"github.com/idlab-discover/pointcast/internal/pointcloud"
)

// Format identifies a point-cloud encoding.
type Format string

const (
	FormatPly     Format = "Ply"
	FormatDraco   Format = "Draco"
	FormatLASzip  Format = "LASzip"
	FormatTmf     Format = "Tmf"
	FormatBitcode Format = "Bitcode"
)

// ID returns the wire identifier of the format.
func (f Format) ID() uint8 {
	switch f {
	case FormatPly:
		return 1
	case FormatDraco:
		return 2
	case FormatLASzip:
		return 3
	case FormatTmf:
		return 4
	case FormatBitcode:
		return 5
	}
	return 0
}

// FormatByID is the inverse of Format.ID.
func FormatByID(id uint8) (Format, bool) {
	switch id {
	case 1:
		return FormatPly, true
	case 2:
		return FormatDraco, true
	case 3:
		return FormatLASzip, true
	case 4:
		return FormatTmf, true
	case 5:
		return FormatBitcode, true
	}
	return "", false
}

// ParseFormat validates a format name from a request parameter.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatPly, FormatDraco, FormatLASzip, FormatTmf, FormatBitcode:
		return Format(s), nil
	}
	return "", fault.New(fault.KindInvalidArgument, "unknown encoding format %q", s)
}

// Codec encodes and decodes one format. Implementations must be pure: no
// shared mutable state across calls.
type Codec interface {
	Encode(points []pointcloud.Point, quantBits int) ([]byte, error)
	Decode(data []byte) ([]pointcloud.Point, error)
}

var (
	regMu    sync.RWMutex
	registry = map[Format]Codec{
		FormatPly:     plyCodec{},
		FormatBitcode: bitcodeCodec{},
	}
)

// Register installs an external codec implementation. Registering over an
// existing format replaces it.
func Register(f Format, c Codec) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[f] = c
}

func lookup(f Format) (Codec, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	c, ok := registry[f]
	if !ok {
		return nil, fault.New(fault.KindCodec, "no codec linked for format %s", f)
	}
	return c, nil
}

// Encode serializes at most maxPoints points in the given format.
// quantBits is the position quantization hint; formats that do not quantize
// ignore it.
func Encode(points []pointcloud.Point, f Format, quantBits int, maxPoints int) ([]byte, error) {
	c, err := lookup(f)
	if err != nil {
		return nil, err
	}
	if maxPoints > 0 && len(points) > maxPoints {
		points = points[:maxPoints]
	}
	return c.Encode(points, quantBits)
}

// Decode sniffs the format from the payload's magic and decodes it. Only the
// native formats are sniffable; external codec payloads must go through
// DecodeAs.
func Decode(data []byte) ([]pointcloud.Point, error) {
	switch {
	case bytes.HasPrefix(data, []byte("ply")):
		return DecodeAs(data, FormatPly)
	case bytes.HasPrefix(data, bitcodeMagic):
		return DecodeAs(data, FormatBitcode)
	}
	return nil, fault.New(fault.KindCodec, "unrecognized payload format")
}

// DecodeAs decodes a payload known to be in format f.
func DecodeAs(data []byte, f Format) ([]pointcloud.Point, error) {
	c, err := lookup(f)
	if err != nil {
		return nil, err
	}
	return c.Decode(data)
}

// plyCodec wraps the pointcloud PLY serializer.
type plyCodec struct{}

func (plyCodec) Encode(points []pointcloud.Point, _ int) ([]byte, error) {
	return pointcloud.MarshalPLY(points), nil
}

func (plyCodec) Decode(data []byte) ([]pointcloud.Point, error) {
	return pointcloud.ParsePLY(data)
}
