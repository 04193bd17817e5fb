package orchestrator

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	metadata "github.com/VinayK8866/project-phoenix/FS"
	"github.com/VinayK8866/project-phoenix/disk"
	"github.com/VinayK8866/project-phoenix/manifest"
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

func newOrchestrator(t *testing.T, data []byte, cfg Config, sink func(manifest.Entry)) (*Orchestrator, *disk.Disk) {
	t.Helper()
	dsk := &disk.Disk{Handler: &imageReader{data: data}}
	o, err := New(dsk, cfg, sink)
	require.NoError(t, err)
	return o, dsk
}

// fat32Volume lays out a one-FAT 64 sector volume with one live and one
// deleted file in the root directory.
func fat32Volume() []byte {
	image := make([]byte, 64*512)

	bs := image[:512]
	binary.LittleEndian.PutUint16(bs[11:], 512)
	bs[13] = 1
	binary.LittleEndian.PutUint16(bs[14:], 1)
	bs[16] = 1
	binary.LittleEndian.PutUint32(bs[32:], 64)
	binary.LittleEndian.PutUint32(bs[36:], 1)
	binary.LittleEndian.PutUint32(bs[44:], 2)
	copy(bs[82:], "FAT32   ")
	binary.LittleEndian.PutUint16(bs[510:], 0xAA55)

	fatTable := image[512:1024]
	binary.LittleEndian.PutUint32(fatTable[2*4:], 0x0FFFFFFF) //root
	binary.LittleEndian.PutUint32(fatTable[3*4:], 0x0FFFFFFF) //live file

	entry := func(name83 string, first byte, cluster uint32, size uint32) []byte {
		e := make([]byte, 32)
		copy(e[0:11], name83)
		if first != 0 {
			e[0] = first
		}
		e[11] = 0x20
		binary.LittleEndian.PutUint16(e[26:], uint16(cluster))
		binary.LittleEndian.PutUint32(e[28:], size)
		return e
	}
	root := image[1024:1536]
	copy(root[0:], entry("HELLO   TXT", 0, 3, 100))
	copy(root[32:], entry("XONE    JPG", 0xE5, 4, 300))

	return image
}

func TestRunFallsBackToCarvingOnUnknownVolume(t *testing.T) {
	data := make([]byte, 64*1024)
	for idx := range data[:512] {
		data[idx] = 0x5A //sector zero is neither a table nor a boot record
	}
	copy(data[2000:], []byte{0xFF, 0xD8, 0xFF, 0xE0})
	copy(data[2998:], []byte{0xFF, 0xD9})

	o, _ := newOrchestrator(t, data, Config{ChunkSizeB: 8 * 1024}, nil)
	require.NoError(t, o.Run(context.Background()))

	entries := o.Manifest().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, manifest.SourceCarver, entries[0].Source)
	assert.Equal(t, manifest.StatusRecoverable, entries[0].Status)
	assert.Equal(t, int64(2000), entries[0].Extents[0].Offset)
	assert.Equal(t, 1, o.Manifest().GetCounters().Carved)
	assert.Greater(t, o.BytesProcessed(), int64(0))
}

func TestRunMetadataPassOnFATVolume(t *testing.T) {
	var streamed []manifest.Entry
	o, _ := newOrchestrator(t, fat32Volume(),
		Config{Mode: ModeIntelligent, IncludeDeleted: true},
		func(entry manifest.Entry) { streamed = append(streamed, entry) })

	require.NoError(t, o.Run(context.Background()))

	entries := o.Manifest().Entries()
	require.Len(t, entries, 2)

	byName := map[string]manifest.Entry{}
	for _, entry := range entries {
		byName[entry.Name] = entry
	}

	hello, ok := byName["HELLO.TXT"]
	require.True(t, ok)
	assert.Equal(t, manifest.SourceFAT32, hello.Source)
	assert.Equal(t, manifest.StatusRecoverable, hello.Status)
	assert.Equal(t, "/HELLO.TXT", hello.Path)

	gone, ok := byName["_ONE.JPG"]
	require.True(t, ok)
	assert.True(t, gone.Deleted)
	assert.Equal(t, manifest.StatusPartial, gone.Status, "a freed chain is assumed, never verified")

	assert.Len(t, streamed, 2, "the sink sees every entry as it is added")
}

func TestRunSkipsDeletedWhenConfigured(t *testing.T) {
	o, _ := newOrchestrator(t, fat32Volume(), Config{Mode: ModeIntelligent}, nil)
	require.NoError(t, o.Run(context.Background()))

	entries := o.Manifest().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "HELLO.TXT", entries[0].Name)
}

func TestRunDeepModeSuppressesMetadataBackedCarves(t *testing.T) {
	image := fat32Volume()
	//a complete JPEG sits inside HELLO.TXT's cluster, the metadata pass
	//already names that content
	copy(image[1536:], []byte{0xFF, 0xD8, 0xFF, 0xE0})
	copy(image[1536+510:], []byte{0xFF, 0xD9})

	o, _ := newOrchestrator(t, image, Config{Mode: ModeDeep, IncludeDeleted: true}, nil)
	require.NoError(t, o.Run(context.Background()))

	entries := o.Manifest().Entries()
	require.Len(t, entries, 2, "deep mode still emits the metadata entries")
	names := map[string]bool{}
	for _, entry := range entries {
		names[entry.Name] = true
		assert.NotEqual(t, manifest.SourceCarver, entry.Source)
	}
	assert.True(t, names["HELLO.TXT"])
	assert.True(t, names["_ONE.JPG"])

	counters := o.Manifest().GetCounters()
	assert.Equal(t, 1, counters.Suppressed)
	assert.Equal(t, 0, counters.Carved)
}

func TestCarveExtentSuppressesKnownContent(t *testing.T) {
	data := make([]byte, 16*1024)
	copy(data[4096:], []byte{0xFF, 0xD8, 0xFF, 0xE0})
	copy(data[4096+1022:], []byte{0xFF, 0xD9})

	o, _ := newOrchestrator(t, data, Config{}, nil)

	//a metadata record already covers the carved range
	records := metadata.Records{{
		Id: 7, Name: "covered.jpg",
		Runs: []reader.Extent{{Offset: 4096, Length: 2048}},
	}}
	require.NoError(t, o.carveExtent(context.Background(), 0,
		reader.Extent{Offset: 0, Length: int64(len(data))}, records))

	assert.Empty(t, o.Manifest().Entries())
	assert.Equal(t, 1, o.Manifest().GetCounters().Suppressed)
}

func TestParseMode(t *testing.T) {
	for _, raw := range []string{"intelligent", "deep", "intelligent-then-fallback"} {
		mode, err := ParseMode(raw)
		require.NoError(t, err)
		assert.Equal(t, Mode(raw), mode)
	}
	_, err := ParseMode("aggressive")
	assert.Error(t, err)
}
