package egress

import (
	"bytes"
	"compress/zlib"
	"crypto/md5"
	"encoding/binary"
	"io"

	"github.com/idlab-discover/pointcast/internal/fault"
)

// Envelope is the unicast frame header carried ahead of codec bytes:
// stream id, frame id, layer, codec id, payload length.
type Envelope struct {
	StreamID string
	FrameID  uint64
	Layer    uint8
	CodecID  uint8
	Payload  []byte
}

// Marshal renders the envelope: u8 stream-id length, stream id bytes,
// u64 frame id, u8 layer, u8 codec id, u32 payload length, payload.
func (e Envelope) Marshal() ([]byte, error) {
	if len(e.StreamID) > 255 {
		return nil, fault.New(fault.KindInvalidArgument, "stream id longer than 255 bytes")
	}
	out := make([]byte, 0, 1+len(e.StreamID)+14+len(e.Payload))
	out = append(out, uint8(len(e.StreamID)))
	out = append(out, e.StreamID...)
	out = binary.BigEndian.AppendUint64(out, e.FrameID)
	out = append(out, e.Layer, e.CodecID)
	out = binary.BigEndian.AppendUint32(out, uint32(len(e.Payload)))
	return append(out, e.Payload...), nil
}

// ParseEnvelope reads an envelope from a unicast message.
func ParseEnvelope(b []byte) (Envelope, error) {
	if len(b) < 1 {
		return Envelope{}, fault.New(fault.KindCodec, "empty envelope")
	}
	idLen := int(b[0])
	rest := b[1:]
	if len(rest) < idLen+14 {
		return Envelope{}, fault.New(fault.KindCodec, "short envelope header")
	}
	e := Envelope{StreamID: string(rest[:idLen])}
	rest = rest[idLen:]
	e.FrameID = binary.BigEndian.Uint64(rest)
	e.Layer = rest[8]
	e.CodecID = rest[9]
	payloadLen := binary.BigEndian.Uint32(rest[10:])
	rest = rest[14:]
	if uint32(len(rest)) != payloadLen {
		return Envelope{}, fault.New(fault.KindCodec, "envelope payload length %d, header says %d", len(rest), payloadLen)
	}
	e.Payload = rest
	return e, nil
}

// ApplyContentEncoding compresses the payload with the named scheme.
// Supported: "" (identity) and "zlib". Runs after codec encoding and before
// FEC.
func ApplyContentEncoding(payload []byte, scheme string) ([]byte, error) {
	switch scheme {
	case "", "null", "identity":
		return payload, nil
	case "zlib":
		var b bytes.Buffer
		w := zlib.NewWriter(&b)
		if _, err := w.Write(payload); err != nil {
			return nil, fault.Wrap(err, fault.KindIo, "zlib compress")
		}
		if err := w.Close(); err != nil {
			return nil, fault.Wrap(err, fault.KindIo, "zlib flush")
		}
		return b.Bytes(), nil
	}
	return nil, fault.New(fault.KindInvalidArgument, "unknown content encoding %q", scheme)
}

// RemoveContentEncoding is the inverse of ApplyContentEncoding.
func RemoveContentEncoding(payload []byte, scheme string) ([]byte, error) {
	switch scheme {
	case "", "null", "identity":
		return payload, nil
	case "zlib":
		r, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fault.Wrap(err, fault.KindCodec, "zlib open")
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fault.Wrap(err, fault.KindCodec, "zlib inflate")
		}
		return out, nil
	}
	return nil, fault.New(fault.KindInvalidArgument, "unknown content encoding %q", scheme)
}

// AppendDigest appends the 16-byte MD5 of payload for receivers that verify
// integrity.
func AppendDigest(payload []byte) []byte {
	sum := md5.Sum(payload)
	return append(payload, sum[:]...)
}

// VerifyDigest splits and checks a digest-suffixed payload.
func VerifyDigest(b []byte) ([]byte, error) {
	if len(b) < md5.Size {
		return nil, fault.New(fault.KindCodec, "payload shorter than md5 digest")
	}
	payload, digest := b[:len(b)-md5.Size], b[len(b)-md5.Size:]
	sum := md5.Sum(payload)
	if !bytes.Equal(sum[:], digest) {
		return nil, fault.New(fault.KindCodec, "md5 digest mismatch")
	}
	return payload, nil
}
