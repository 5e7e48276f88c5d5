package egress

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/idlab-discover/pointcast/internal/fault"
	"github.com/idlab-discover/pointcast/internal/metrics"
	logpkg "github.com/idlab-discover/pointcast/pkg/log"
)

// FileRecord is the msgpack record written per dispatched layer, for
// offline analysis of a session.
type FileRecord struct {
	StreamID   string     `msgpack:"stream_id"`
	FrameID    uint64     `msgpack:"frame_id"`
	Layer      int        `msgpack:"layer"`
	CodecID    uint8      `msgpack:"codec_id"`
	WrittenUs  int64      `msgpack:"written_us"`
	DeadlineUs int64      `msgpack:"deadline_us"`
	Position   [3]float32 `msgpack:"position"`
	Rotation   [3]float32 `msgpack:"rotation"`
	Scale      [3]float32 `msgpack:"scale"`
	Payload    []byte     `msgpack:"payload"`
}

// FileSender appends dispatched layers to one msgpack stream file per
// stream id. Writes block only on disk latency.
type FileSender struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File

	logger  logpkg.Logger
	metrics *metrics.Metrics
}

// NewFileSender creates the output directory if needed.
func NewFileSender(dir string, m *metrics.Metrics, logger logpkg.Logger) (*FileSender, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fault.Wrap(err, fault.KindIo, "creating dump dir %s", dir)
	}
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &FileSender{
		dir:     dir,
		files:   make(map[string]*os.File),
		logger:  logger.With(logpkg.Component("egress.file")),
		metrics: m,
	}, nil
}

func (s *FileSender) Protocol() Protocol { return ProtocolFile }

func (s *FileSender) fileFor(streamID string) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[streamID]; ok {
		return f, nil
	}
	path := filepath.Join(s.dir, streamID+".mpk")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindIo, "opening dump file %s", path)
	}
	s.files[streamID] = f
	return f, nil
}

// Send appends one record. Drops are impossible short of I/O failure.
func (s *FileSender) Send(_ context.Context, p Packet) (Result, error) {
	f, err := s.fileFor(p.StreamID)
	if err != nil {
		return Result{}, err
	}
	rec := FileRecord{
		StreamID:   p.StreamID,
		FrameID:    p.FrameID,
		Layer:      p.Layer,
		CodecID:    p.CodecID,
		WrittenUs:  time.Now().UnixMicro(),
		DeadlineUs: p.Deadline.UnixMicro(),
		Position:   p.Pose.Position,
		Rotation:   p.Pose.Rotation,
		Scale:      p.Pose.Scale,
		Payload:    p.Payload,
	}
	b, err := msgpack.Marshal(&rec)
	if err != nil {
		return Result{}, fault.Wrap(err, fault.KindInternal, "marshalling file record")
	}
	s.mu.Lock()
	_, err = f.Write(b)
	s.mu.Unlock()
	if err != nil {
		return Result{}, fault.Wrap(err, fault.KindIo, "writing dump record")
	}
	if s.metrics != nil {
		s.metrics.BytesSent.WithLabelValues(string(ProtocolFile)).Add(float64(len(b)))
	}
	return Result{Status: StatusDispatched}, nil
}

// Backpressure is always zero for the file sink.
func (s *FileSender) Backpressure() int64 { return 0 }

// Close flushes and closes every open dump file.
func (s *FileSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for id, f := range s.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.files, id)
	}
	return first
}

// ReadDump decodes all records from a dump file, oldest first. Intended for
// offline tooling and tests.
func ReadDump(path string) ([]FileRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindIo, "opening dump %s", path)
	}
	defer f.Close()
	dec := msgpack.NewDecoder(f)
	var out []FileRecord
	for {
		var rec FileRecord
		if err := dec.Decode(&rec); err != nil {
			break
		}
		out = append(out, rec)
	}
	return out, nil
}
