package reader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/VinayK8866/project-phoenix/img"
)

// DefaultChunkSizeB is used when no chunk size is configured.
const DefaultChunkSizeB = 512 * 1024

// ErrIO marks a device read failure, fatal for the extent being read but
// not for the scan as a whole.
var ErrIO = errors.New("device read failure")

// Extent is an immutable read-only byte range over the source device.
type Extent struct {
	Offset int64
	Length int64
}

func (extent Extent) End() int64 {
	return extent.Offset + extent.Length
}

// Contains reports whether other lies fully inside this extent.
func (extent Extent) Contains(other Extent) bool {
	return other.Offset >= extent.Offset && other.End() <= extent.End()
}

// Chunk is one window of a sequential pass. Data carries OverlapLen bytes
// repeated from the tail of the previous chunk so patterns spanning the
// boundary are still seen whole.
type Chunk struct {
	Offset     int64 //device offset of Data[0]
	Data       []byte
	OverlapLen int
}

// BlockReader serializes read-only access to one device handle. It holds
// no state beyond the current chunk plus the overlap window.
type BlockReader struct {
	hD             img.DiskReader
	mu             sync.Mutex
	chunkSizeB     int
	overlapB       int
	bytesProcessed atomic.Int64
}

func New(hD img.DiskReader, chunkSizeB int, overlapB int) *BlockReader {
	if chunkSizeB <= 0 {
		chunkSizeB = DefaultChunkSizeB
	}
	if overlapB < 0 || overlapB >= chunkSizeB {
		overlapB = 0
	}
	return &BlockReader{hD: hD, chunkSizeB: chunkSizeB, overlapB: overlapB}
}

func (br *BlockReader) TotalSize() int64 {
	return br.hD.GetDiskSize()
}

// BytesProcessed exposes scan progress for external checkpointing.
func (br *BlockReader) BytesProcessed() int64 {
	return br.bytesProcessed.Load()
}

// Read returns the bytes of one extent. Short reads and device faults
// surface as ErrIO.
func (br *BlockReader) Read(extent Extent) ([]byte, error) {
	br.mu.Lock()
	data, err := br.hD.ReadFile(extent.Offset, int(extent.Length))
	br.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	br.bytesProcessed.Add(extent.Length)
	return data, nil
}

// Chunks walks extent sequentially in fixed windows, carrying the overlap
// between them. Cancellation is checked at chunk boundaries only, already
// delivered chunks stay valid.
func (br *BlockReader) Chunks(ctx context.Context, extent Extent, fn func(Chunk) error) error {
	pos := extent.Offset
	end := extent.End()
	var carry []byte

	for pos < end {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		readLen := int64(br.chunkSizeB)
		if end-pos < readLen {
			readLen = end - pos
		}
		data, err := br.Read(Extent{Offset: pos, Length: readLen})
		if err != nil {
			return err
		}

		chunk := Chunk{Offset: pos - int64(len(carry)), OverlapLen: len(carry)}
		chunk.Data = append(carry, data...)
		if err := fn(chunk); err != nil {
			return err
		}

		if br.overlapB > 0 && len(chunk.Data) > br.overlapB {
			carry = append([]byte{}, chunk.Data[len(chunk.Data)-br.overlapB:]...)
		} else {
			carry = nil
		}
		pos += readLen
	}
	return nil
}
