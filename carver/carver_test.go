package carver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VinayK8866/project-phoenix/reader"
)

type imageReader struct {
	data []byte
}

func (r *imageReader) CreateHandler() error { return nil }
func (r *imageReader) CloseHandler()        {}
func (r *imageReader) GetDiskSize() int64   { return int64(len(r.data)) }

func (r *imageReader) ReadFile(offset int64, length int) ([]byte, error) {
	if offset < 0 || offset+int64(length) > int64(len(r.data)) {
		return nil, errors.New("read beyond device")
	}
	return append([]byte{}, r.data[offset:offset+int64(length)]...), nil
}

func newScanReader(data []byte, chunkSizeB int) (*reader.BlockReader, *Database) {
	db, err := NewDatabase(nil)
	if err != nil {
		panic(err)
	}
	return reader.New(&imageReader{data: data}, chunkSizeB, db.MaxHeaderLen()), db
}

func TestCarveJpegWithFooter(t *testing.T) {
	data := make([]byte, 64*1024)
	copy(data[1000:], []byte{0xFF, 0xD8, 0xFF, 0xE0})
	copy(data[1000+4096-2:], []byte{0xFF, 0xD9})

	br, db := newScanReader(data, 8*1024)
	c := New(db, 0)
	items, err := c.Scan(context.Background(), br, reader.Extent{Offset: 0, Length: int64(len(data))})
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "JPEG", items[0].Type)
	assert.Equal(t, int64(1000), items[0].Extent.Offset)
	assert.Equal(t, int64(4096), items[0].Extent.Length)
	assert.Equal(t, ConfidenceHeaderFooter, items[0].Confidence)
	assert.Equal(t, "carved_000000001000_jpeg.jpg", items[0].Filename())
}

func TestCarveHeaderSpanningChunkBoundary(t *testing.T) {
	data := make([]byte, 16*1024)
	copy(data[4094:], []byte{0xFF, 0xD8, 0xFF, 0xE1}) //straddles the 4 KiB chunk edge
	copy(data[8000:], []byte{0xFF, 0xD9})

	br, db := newScanReader(data, 4*1024)
	c := New(db, 0)
	items, err := c.Scan(context.Background(), br, reader.Extent{Offset: 0, Length: int64(len(data))})
	require.NoError(t, err)
	require.Len(t, items, 1, "the boundary spanning header must be carved exactly once")

	assert.Equal(t, int64(4094), items[0].Extent.Offset)
	assert.Equal(t, ConfidenceHeaderFooter, items[0].Confidence)
}

func TestCarveFooterSpanningChunkBoundary(t *testing.T) {
	db, err := NewDatabase([]Signature{
		{Name: "LONGTAIL", Extension: ".lt", Header: "AABB", Footer: "010203040506"},
	})
	require.NoError(t, err)
	require.Equal(t, 6, db.MaxFooterLen())

	data := make([]byte, 2048)
	copy(data[0:], []byte{0xAA, 0xBB})
	copy(data[1021:], []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}) //straddles the 1 KiB chunk edge

	overlap := db.MaxHeaderLen()
	if db.MaxFooterLen() > overlap {
		overlap = db.MaxFooterLen()
	}
	br := reader.New(&imageReader{data: data}, 1024, overlap)
	c := New(db, 0)
	items, err := c.Scan(context.Background(), br, reader.Extent{Offset: 0, Length: int64(len(data))})
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, ConfidenceHeaderFooter, items[0].Confidence)
	assert.Equal(t, int64(1027), items[0].Extent.Length)
}

func TestCarveWithoutFooterTruncatesAtExtentEnd(t *testing.T) {
	data := make([]byte, 2048)
	copy(data[512:], []byte{0xFF, 0xD8, 0xFF, 0xDB})

	br, db := newScanReader(data, 1024)
	c := New(db, 0)
	items, err := c.Scan(context.Background(), br, reader.Extent{Offset: 0, Length: int64(len(data))})
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, ConfidenceTruncated, items[0].Confidence)
	assert.Equal(t, int64(2048-512), items[0].Extent.Length)
}

func TestCarveTruncatesAtMaxSize(t *testing.T) {
	db, err := NewDatabase([]Signature{
		{Name: "TINY", Extension: ".tny", Header: "AABBCC", Footer: "DDEE", MaxSizeB: 128},
	})
	require.NoError(t, err)

	data := make([]byte, 1024)
	copy(data[0:], []byte{0xAA, 0xBB, 0xCC})
	copy(data[600:], []byte{0xDD, 0xEE}) //footer beyond the size bound

	br := reader.New(&imageReader{data: data}, 512, db.MaxHeaderLen())
	c := New(db, 0)
	items, err := c.Scan(context.Background(), br, reader.Extent{Offset: 0, Length: int64(len(data))})
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, ConfidenceTruncated, items[0].Confidence)
	assert.Equal(t, int64(128), items[0].Extent.Length)
}

func TestPendingBoundForcesOldestClosed(t *testing.T) {
	data := make([]byte, 4096)
	copy(data[100:], []byte{0xFF, 0xD8, 0xFF, 0xE0})                               //JPEG, no footer follows
	copy(data[200:], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})       //PNG header
	db, err := NewDatabase(nil)
	require.NoError(t, err)

	br := reader.New(&imageReader{data: data}, 1024, db.MaxHeaderLen())
	c := New(db, 1)
	items, err := c.Scan(context.Background(), br, reader.Extent{Offset: 0, Length: int64(len(data))})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "JPEG", items[0].Type)
	assert.Equal(t, ConfidenceForcedClose, items[0].Confidence)
	assert.Equal(t, int64(100), items[0].Extent.Length) //cut where the PNG header appeared
	assert.Equal(t, "PNG", items[1].Type)
	assert.Equal(t, 1, c.GetStats().ResourceExhausted)
}

func TestWildcardHeaderDisambiguatesRiffContainers(t *testing.T) {
	data := make([]byte, 1024)
	copy(data[0:], []byte("RIFF"))
	copy(data[4:], []byte{0x24, 0x08, 0x00, 0x00})
	copy(data[8:], []byte("WAVE"))

	br, db := newScanReader(data, 512)
	c := New(db, 0)
	items, err := c.Scan(context.Background(), br, reader.Extent{Offset: 0, Length: int64(len(data))})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "WAV", items[0].Type)
}

func TestLoadDatabaseRejectsBadPatterns(t *testing.T) {
	_, err := NewDatabase([]Signature{{Name: "BAD", Header: "XYZ"}})
	assert.Error(t, err)

	_, err = NewDatabase([]Signature{{Name: "EMPTY", Header: ""}})
	assert.Error(t, err)
}
