package pointcloud

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/idlab-discover/pointcast/internal/fault"
)

// plyFormat identifies the encoding declared in a PLY header.
type plyFormat int

const (
	plyASCII plyFormat = iota
	plyBinaryLE
)

type plyProperty struct {
	name string
	typ  string
}

// ParsePLY reads a PLY vertex cloud from raw bytes. Supported formats are
// ascii 1.0 and binary_little_endian 1.0 with float x/y/z and optional uchar
// red/green/blue properties. Unknown vertex properties are skipped.
func ParsePLY(data []byte) ([]Point, error) {
	r := bufio.NewReader(bytes.NewReader(data))

	line, err := r.ReadString('\n')
	if err != nil || strings.TrimSpace(line) != "ply" {
		return nil, fault.New(fault.KindCodec, "not a PLY file")
	}

	format := plyASCII
	vertexCount := -1
	var props []plyProperty
	inVertex := false
	for {
		line, err = r.ReadString('\n')
		if err != nil {
			return nil, fault.New(fault.KindCodec, "unterminated PLY header")
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "comment":
		case "format":
			if len(fields) < 2 {
				return nil, fault.New(fault.KindCodec, "malformed format line")
			}
			switch fields[1] {
			case "ascii":
				format = plyASCII
			case "binary_little_endian":
				format = plyBinaryLE
			default:
				return nil, fault.New(fault.KindCodec, "unsupported PLY format %q", fields[1])
			}
		case "element":
			if len(fields) == 3 && fields[1] == "vertex" {
				vertexCount, err = strconv.Atoi(fields[2])
				if err != nil || vertexCount < 0 {
					return nil, fault.New(fault.KindCodec, "bad vertex count %q", fields[2])
				}
				inVertex = true
			} else {
				inVertex = false
			}
		case "property":
			if inVertex && len(fields) == 3 {
				props = append(props, plyProperty{name: fields[2], typ: fields[1]})
			}
		case "end_header":
			goto body
		}
	}

body:
	if vertexCount < 0 {
		return nil, fault.New(fault.KindCodec, "PLY header missing vertex element")
	}
	switch format {
	case plyASCII:
		return parsePLYASCII(r, vertexCount, props)
	default:
		return parsePLYBinaryLE(r, vertexCount, props)
	}
}

func parsePLYASCII(r *bufio.Reader, count int, props []plyProperty) ([]Point, error) {
	points := make([]Point, 0, count)
	for i := 0; i < count; i++ {
		line, err := r.ReadString('\n')
		if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
			return nil, fault.New(fault.KindCodec, "PLY truncated at vertex %d", i)
		}
		fields := strings.Fields(line)
		if len(fields) < len(props) {
			return nil, fault.New(fault.KindCodec, "PLY vertex %d has %d fields, want %d", i, len(fields), len(props))
		}
		var p Point
		for j, prop := range props {
			switch prop.name {
			case "x", "y", "z":
				v, err := strconv.ParseFloat(fields[j], 32)
				if err != nil {
					return nil, fault.New(fault.KindCodec, "PLY vertex %d: bad %s", i, prop.name)
				}
				switch prop.name {
				case "x":
					p.X = float32(v)
				case "y":
					p.Y = float32(v)
				case "z":
					p.Z = float32(v)
				}
			case "red", "green", "blue":
				v, err := strconv.ParseUint(fields[j], 10, 8)
				if err != nil {
					return nil, fault.New(fault.KindCodec, "PLY vertex %d: bad %s", i, prop.name)
				}
				switch prop.name {
				case "red":
					p.R = uint8(v)
				case "green":
					p.G = uint8(v)
				case "blue":
					p.B = uint8(v)
				}
			}
		}
		points = append(points, p)
	}
	return points, nil
}

func propSize(typ string) int {
	switch typ {
	case "char", "uchar", "int8", "uint8":
		return 1
	case "short", "ushort", "int16", "uint16":
		return 2
	case "int", "uint", "float", "int32", "uint32", "float32":
		return 4
	case "double", "float64", "int64", "uint64":
		return 8
	}
	return 0
}

func parsePLYBinaryLE(r *bufio.Reader, count int, props []plyProperty) ([]Point, error) {
	stride := 0
	for _, prop := range props {
		s := propSize(prop.typ)
		if s == 0 {
			return nil, fault.New(fault.KindCodec, "unsupported PLY property type %q", prop.typ)
		}
		stride += s
	}
	buf := make([]byte, stride)
	points := make([]Point, 0, count)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fault.New(fault.KindCodec, "PLY truncated at vertex %d", i)
		}
		var p Point
		off := 0
		for _, prop := range props {
			s := propSize(prop.typ)
			switch prop.name {
			case "x", "y", "z":
				if prop.typ != "float" && prop.typ != "float32" {
					return nil, fault.New(fault.KindCodec, "PLY %s must be float", prop.name)
				}
				v := math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
				switch prop.name {
				case "x":
					p.X = v
				case "y":
					p.Y = v
				case "z":
					p.Z = v
				}
			case "red":
				p.R = buf[off]
			case "green":
				p.G = buf[off]
			case "blue":
				p.B = buf[off]
			}
			off += s
		}
		points = append(points, p)
	}
	return points, nil
}

// MarshalPLY serializes points as binary_little_endian PLY with xyz float and
// rgb uchar vertex properties.
func MarshalPLY(points []Point) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "ply\nformat binary_little_endian 1.0\nelement vertex %d\n", len(points))
	b.WriteString("property float x\nproperty float y\nproperty float z\n")
	b.WriteString("property uchar red\nproperty uchar green\nproperty uchar blue\n")
	b.WriteString("end_header\n")
	var scratch [15]byte
	for _, p := range points {
		binary.LittleEndian.PutUint32(scratch[0:], math.Float32bits(p.X))
		binary.LittleEndian.PutUint32(scratch[4:], math.Float32bits(p.Y))
		binary.LittleEndian.PutUint32(scratch[8:], math.Float32bits(p.Z))
		scratch[12] = p.R
		scratch[13] = p.G
		scratch[14] = p.B
		b.Write(scratch[:])
	}
	return b.Bytes()
}
