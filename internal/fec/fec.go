package fec

import (
	"encoding/binary"
	"math"

	"github.com/klauspost/reedsolomon"

	"github.com/idlab-discover/pointcast/internal/fault"
)

// KMax bounds the number of source symbols per block. Together with the
// repair symbols the shard count must stay within the GF(2^8) limit of 256.
const KMax = 256

// defaultSymbolSize keeps symbols under a typical UDP payload MTU.
const defaultSymbolSize = 1200

// HeaderLen is the marshalled size of a symbol header.
const HeaderLen = 8 + 1 + 2 + 2 + 2 + 4 + 4

// Header describes one symbol's place in its block.
type Header struct {
	FrameID    uint64
	Layer      uint8
	Index      uint16 // 0..k-1 are systematic, k..k+r-1 are repair
	K          uint16
	R          uint16
	SymbolSize uint32
	PayloadLen uint32
}

// Marshal appends the wire form of the header to dst.
func (h Header) Marshal(dst []byte) []byte {
	var b [HeaderLen]byte
	binary.BigEndian.PutUint64(b[0:], h.FrameID)
	b[8] = h.Layer
	binary.BigEndian.PutUint16(b[9:], h.Index)
	binary.BigEndian.PutUint16(b[11:], h.K)
	binary.BigEndian.PutUint16(b[13:], h.R)
	binary.BigEndian.PutUint32(b[15:], h.SymbolSize)
	binary.BigEndian.PutUint32(b[19:], h.PayloadLen)
	return append(dst, b[:]...)
}

// ParseHeader reads a header from the front of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fault.New(fault.KindCodec, "fec: short symbol header")
	}
	return Header{
		FrameID:    binary.BigEndian.Uint64(b[0:]),
		Layer:      b[8],
		Index:      binary.BigEndian.Uint16(b[9:]),
		K:          binary.BigEndian.Uint16(b[11:]),
		R:          binary.BigEndian.Uint16(b[13:]),
		SymbolSize: binary.BigEndian.Uint32(b[15:]),
		PayloadLen: binary.BigEndian.Uint32(b[19:]),
	}, nil
}

// Symbol is one source or repair symbol of a block.
type Symbol struct {
	Header
	Data []byte
}

// Marshal returns header followed by symbol data.
func (s Symbol) Marshal() []byte {
	out := s.Header.Marshal(make([]byte, 0, HeaderLen+len(s.Data)))
	return append(out, s.Data...)
}

// ParseSymbol reads a symbol from a datagram payload.
func ParseSymbol(b []byte) (Symbol, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return Symbol{}, err
	}
	if uint32(len(b)-HeaderLen) != h.SymbolSize {
		return Symbol{}, fault.New(fault.KindCodec, "fec: symbol size mismatch: header %d, got %d", h.SymbolSize, len(b)-HeaderLen)
	}
	return Symbol{Header: h, Data: b[HeaderLen:]}, nil
}

// plan picks a symbol size so that k <= KMax and k + r <= 256.
func plan(payloadLen int, pct float64) (symbolSize, k, r int) {
	symbolSize = defaultSymbolSize
	for {
		k = (payloadLen + symbolSize - 1) / symbolSize
		if k < 1 {
			k = 1
		}
		r = int(math.Ceil(float64(k) * pct))
		if k <= KMax && k+r <= 256 {
			return symbolSize, k, r
		}
		symbolSize *= 2
	}
}

// Encode splits payload into k systematic symbols plus r repair symbols for
// the given fec percentage in [0,1]. With pct == 0 no repair symbols are
// produced and recovery requires every source symbol.
func Encode(frameID uint64, layer uint8, payload []byte, pct float64) ([]Symbol, error) {
	if len(payload) == 0 {
		return nil, fault.New(fault.KindInvalidArgument, "fec: empty payload")
	}
	if pct < 0 || pct > 1 {
		return nil, fault.New(fault.KindInvalidArgument, "fec: percentage %f out of [0,1]", pct)
	}
	symbolSize, k, r := plan(len(payload), pct)

	shards := make([][]byte, k+r)
	for i := 0; i < k; i++ {
		shard := make([]byte, symbolSize)
		lo := i * symbolSize
		hi := lo + symbolSize
		if hi > len(payload) {
			hi = len(payload)
		}
		copy(shard, payload[lo:hi])
		shards[i] = shard
	}
	if r > 0 {
		enc, err := reedsolomon.New(k, r)
		if err != nil {
			return nil, fault.Wrap(err, fault.KindInternal, "fec: building encoder k=%d r=%d", k, r)
		}
		for i := k; i < k+r; i++ {
			shards[i] = make([]byte, symbolSize)
		}
		if err := enc.Encode(shards); err != nil {
			return nil, fault.Wrap(err, fault.KindInternal, "fec: encoding block")
		}
	}

	symbols := make([]Symbol, k+r)
	for i := range shards {
		symbols[i] = Symbol{
			Header: Header{
				FrameID:    frameID,
				Layer:      layer,
				Index:      uint16(i),
				K:          uint16(k),
				R:          uint16(r),
				SymbolSize: uint32(symbolSize),
				PayloadLen: uint32(len(payload)),
			},
			Data: shards[i],
		}
	}
	return symbols, nil
}

// Decode reconstructs the payload from any >= k symbols of one block.
// Fewer than k yields an UnrecoverableLoss error.
func Decode(symbols []Symbol) ([]byte, error) {
	if len(symbols) == 0 {
		return nil, fault.New(fault.KindUnrecoverableLoss, "fec: no symbols")
	}
	h := symbols[0].Header
	k, r := int(h.K), int(h.R)

	shards := make([][]byte, k+r)
	received := 0
	for _, s := range symbols {
		if s.FrameID != h.FrameID || s.Layer != h.Layer || s.K != h.K || s.R != h.R {
			return nil, fault.New(fault.KindCodec, "fec: mixed blocks in decode")
		}
		idx := int(s.Index)
		if idx >= k+r || shards[idx] != nil {
			continue
		}
		shards[idx] = s.Data
		received++
	}
	if received < k {
		return nil, fault.New(fault.KindUnrecoverableLoss, "fec: frame %d layer %d: %d of %d symbols", h.FrameID, h.Layer, received, k)
	}

	missingSource := false
	for i := 0; i < k; i++ {
		if shards[i] == nil {
			missingSource = true
			break
		}
	}
	if missingSource {
		if r == 0 {
			return nil, fault.New(fault.KindUnrecoverableLoss, "fec: frame %d: source symbol lost with no repair", h.FrameID)
		}
		dec, err := reedsolomon.New(k, r)
		if err != nil {
			return nil, fault.Wrap(err, fault.KindInternal, "fec: building decoder k=%d r=%d", k, r)
		}
		if err := dec.Reconstruct(shards); err != nil {
			return nil, fault.Wrap(err, fault.KindUnrecoverableLoss, "fec: frame %d reconstruct", h.FrameID)
		}
	}

	out := make([]byte, 0, int(h.PayloadLen))
	for i := 0; i < k; i++ {
		out = append(out, shards[i]...)
	}
	return out[:h.PayloadLen], nil
}
