package codec

import (
	"encoding/binary"
	"math"

	"github.com/idlab-discover/pointcast/internal/fault"
	"github.com/idlab-discover/pointcast/internal/pointcloud"
)

var bitcodeMagic = []byte("BC01")

// bitcodeCodec is a compact quantized binary encoding. Positions are
// normalized against the cloud's bounding box and stored as fixed-point
// integers of quantBits precision (stored as uint16; values outside [8,16]
// fall back to 12).
//
// Layout, little-endian:
//
//	magic "BC01" | qbits u8 | count u32 | min xyz 3×f32 | range xyz 3×f32 |
//	count × (qx u16, qy u16, qz u16, r u8, g u8, b u8)
type bitcodeCodec struct{}

const bitcodeHeaderLen = 4 + 1 + 4 + 12 + 12
const bitcodePointLen = 6 + 3

func (bitcodeCodec) Encode(points []pointcloud.Point, quantBits int) ([]byte, error) {
	if quantBits < 8 || quantBits > 16 {
		quantBits = 12
	}
	minV := [3]float32{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
	maxV := [3]float32{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
	for _, p := range points {
		for i, v := range [3]float32{p.X, p.Y, p.Z} {
			if v < minV[i] {
				minV[i] = v
			}
			if v > maxV[i] {
				maxV[i] = v
			}
		}
	}
	if len(points) == 0 {
		minV = [3]float32{}
		maxV = [3]float32{}
	}

	buf := make([]byte, bitcodeHeaderLen+len(points)*bitcodePointLen)
	copy(buf, bitcodeMagic)
	buf[4] = uint8(quantBits)
	binary.LittleEndian.PutUint32(buf[5:], uint32(len(points)))
	var rng [3]float32
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[9+i*4:], math.Float32bits(minV[i]))
		rng[i] = maxV[i] - minV[i]
		binary.LittleEndian.PutUint32(buf[21+i*4:], math.Float32bits(rng[i]))
	}

	scale := float32(uint32(1)<<uint(quantBits) - 1)
	off := bitcodeHeaderLen
	for _, p := range points {
		for i, v := range [3]float32{p.X, p.Y, p.Z} {
			var q uint16
			if rng[i] > 0 {
				q = uint16((v - minV[i]) / rng[i] * scale)
			}
			binary.LittleEndian.PutUint16(buf[off+i*2:], q)
		}
		buf[off+6] = p.R
		buf[off+7] = p.G
		buf[off+8] = p.B
		off += bitcodePointLen
	}
	return buf, nil
}

func (bitcodeCodec) Decode(data []byte) ([]pointcloud.Point, error) {
	if len(data) < bitcodeHeaderLen || string(data[:4]) != string(bitcodeMagic) {
		return nil, fault.New(fault.KindCodec, "not a bitcode payload")
	}
	quantBits := int(data[4])
	if quantBits < 8 || quantBits > 16 {
		return nil, fault.New(fault.KindCodec, "bitcode: bad quantization %d", quantBits)
	}
	count := int(binary.LittleEndian.Uint32(data[5:]))
	if len(data) != bitcodeHeaderLen+count*bitcodePointLen {
		return nil, fault.New(fault.KindCodec, "bitcode: truncated payload")
	}
	var minV, rng [3]float32
	for i := 0; i < 3; i++ {
		minV[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[9+i*4:]))
		rng[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[21+i*4:]))
	}

	scale := float32(uint32(1)<<uint(quantBits) - 1)
	points := make([]pointcloud.Point, count)
	off := bitcodeHeaderLen
	for n := 0; n < count; n++ {
		var pos [3]float32
		for i := 0; i < 3; i++ {
			q := binary.LittleEndian.Uint16(data[off+i*2:])
			pos[i] = minV[i] + float32(q)/scale*rng[i]
		}
		points[n] = pointcloud.Point{
			X: pos[0], Y: pos[1], Z: pos[2],
			R: data[off+6], G: data[off+7], B: data[off+8],
		}
		off += bitcodePointLen
	}
	return points, nil
}
