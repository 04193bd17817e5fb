package fat

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	metadata "github.com/VinayK8866/project-phoenix/FS"
	"github.com/VinayK8866/project-phoenix/reader"
	"github.com/VinayK8866/project-phoenix/utils"
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

// test volume geometry: 512 byte sectors, one sector per cluster, one
// reserved sector, a single one-sector FAT, data region from sector two
const (
	testSectors     = 64
	testSectorSize  = 512
	testDataSectorB = 2 * testSectorSize
)

func buildFAT32BootSector() []byte {
	bs := make([]byte, testSectorSize)
	binary.LittleEndian.PutUint16(bs[11:], testSectorSize)
	bs[13] = 1                                //sectors per cluster
	binary.LittleEndian.PutUint16(bs[14:], 1) //reserved sectors
	bs[16] = 1                                //number of FATs
	binary.LittleEndian.PutUint32(bs[32:], testSectors)
	binary.LittleEndian.PutUint32(bs[36:], 1) //FAT size in sectors
	binary.LittleEndian.PutUint32(bs[44:], 2) //root cluster
	copy(bs[82:], "FAT32   ")
	binary.LittleEndian.PutUint16(bs[510:], 0xAA55)
	return bs
}

func shortEntry(name83 string, attr uint8, cluster uint32, size uint32) []byte {
	entry := make([]byte, 32)
	copy(entry[0:11], name83)
	entry[11] = attr
	binary.LittleEndian.PutUint16(entry[20:], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(entry[26:], uint16(cluster))
	binary.LittleEndian.PutUint32(entry[28:], size)
	return entry
}

func lfnEntryBytes(ord uint8, chksum uint8, chars []uint16) []byte {
	entry := make([]byte, 32)
	entry[0] = ord
	entry[11] = attrLongName
	entry[13] = chksum

	slots := make([]uint16, 13)
	for i := range slots {
		switch {
		case i < len(chars):
			slots[i] = chars[i]
		case i == len(chars):
			slots[i] = 0x0000
		default:
			slots[i] = 0xFFFF
		}
	}
	for i, slot := range slots[:5] {
		binary.LittleEndian.PutUint16(entry[1+2*i:], slot)
	}
	for i, slot := range slots[5:11] {
		binary.LittleEndian.PutUint16(entry[14+2*i:], slot)
	}
	for i, slot := range slots[11:13] {
		binary.LittleEndian.PutUint16(entry[28+2*i:], slot)
	}
	return entry
}

func utf16Chars(s string) []uint16 {
	var chars []uint16
	for _, r := range s {
		chars = append(chars, uint16(r))
	}
	return chars
}

func buildFAT32Image() []byte {
	image := make([]byte, testSectors*testSectorSize)
	copy(image[0:], buildFAT32BootSector())

	fatTable := image[testSectorSize : 2*testSectorSize]
	setFat := func(cluster uint32, next uint32) {
		binary.LittleEndian.PutUint32(fatTable[cluster*4:], next)
	}
	setFat(2, 0x0FFFFFFF)  //root directory
	setFat(3, 0x0FFFFFFF)  //HELLO.TXT
	setFat(4, 5)           //longfilename.dat spans two clusters
	setFat(5, 0x0FFFFFFF)
	setFat(8, 9)           //LOOP.BIN chain loops
	setFat(9, 8)
	setFat(10, 0x0FFFFFFF) //SUB directory
	setFat(11, 0x0FFFFFFF) //INNER.BIN

	longShort := [11]byte{}
	copy(longShort[:], "LONGFI~1DAT")
	chksum := lfnChecksum(longShort)
	longName := "longfilename.dat"

	root := image[testDataSectorB : testDataSectorB+testSectorSize]
	pos := 0
	put := func(entry []byte) {
		copy(root[pos:], entry)
		pos += 32
	}
	put(shortEntry("HELLO   TXT", attrArchive, 3, 100))
	put(lfnEntryBytes(0x42, chksum, utf16Chars(longName)[13:]))
	put(lfnEntryBytes(0x01, chksum, utf16Chars(longName)[:13]))
	put(shortEntry("LONGFI~1DAT", attrArchive, 4, 800))
	deleted := shortEntry("XELETED JPG", attrArchive, 6, 600)
	deleted[0] = deletedMark
	put(deleted)
	put(shortEntry("LOOP    BIN", attrArchive, 8, 1500))
	put(shortEntry("SUB        ", attrDirectory, 10, 0))

	sub := image[testDataSectorB+8*testSectorSize : testDataSectorB+9*testSectorSize]
	copy(sub[0:], shortEntry(".          ", attrDirectory, 10, 0))
	copy(sub[32:], shortEntry("..         ", attrDirectory, 2, 0))
	copy(sub[64:], shortEntry("INNER   BIN", attrArchive, 11, 50))

	return image
}

func findRecord(t *testing.T, records metadata.Records, name string) *metadata.Record {
	t.Helper()
	for idx := range records {
		if records[idx].Name == name {
			return &records[idx]
		}
	}
	t.Fatalf("record %q not found", name)
	return nil
}

func TestFAT32BootSectorValidation(t *testing.T) {
	var fs FAT
	require.NoError(t, fs.Parse(buildFAT32BootSector()))
	assert.Equal(t, "FAT32", fs.Variant)
	assert.Equal(t, uint16(512), fs.GetBytesPerSector())
	assert.Equal(t, uint8(1), fs.GetSectorsPerCluster())
	assert.Equal(t, BootSectorValidated, fs.State)

	garbage := make([]byte, 512)
	var bad FAT
	assert.True(t, errors.Is(bad.Parse(garbage), metadata.ErrNotThisFileSystem))

	noSig := buildFAT32BootSector()
	binary.LittleEndian.PutUint16(noSig[510:], 0x0000)
	assert.True(t, errors.Is(bad.Parse(noSig), metadata.ErrNotThisFileSystem))
}

func TestFAT32Process(t *testing.T) {
	image := buildFAT32Image()
	br := reader.New(&imageReader{data: image}, 0, 0)

	var fs FAT
	require.NoError(t, fs.Process(context.Background(), br, 0))
	records := fs.GetMetadata()

	hello := findRecord(t, records, "HELLO.TXT")
	assert.False(t, hello.Deleted)
	assert.Equal(t, int64(100), hello.Size)
	require.Len(t, hello.Runs, 1)
	assert.Equal(t, int64(testDataSectorB+testSectorSize), hello.Runs[0].Offset)
	assert.Equal(t, int64(testSectorSize), hello.Runs[0].Length)

	//adjacent chain clusters collapse into one extent
	long := findRecord(t, records, "longfilename.dat")
	require.Len(t, long.Runs, 1)
	assert.Equal(t, int64(2*testSectorSize), long.Runs[0].Length)
	assert.Equal(t, uint64(4), long.Id)

	inner := findRecord(t, records, "INNER.BIN")
	assert.Equal(t, uint64(10), inner.ParentId, "nested file hangs off its directory's cluster")

	sub := findRecord(t, records, "SUB")
	assert.True(t, sub.Dir)
}

func TestFAT32DeletedEntryAssumesContiguity(t *testing.T) {
	image := buildFAT32Image()
	br := reader.New(&imageReader{data: image}, 0, 0)

	var fs FAT
	require.NoError(t, fs.Process(context.Background(), br, 0))

	deleted := findRecord(t, fs.GetMetadata(), "_ELETED.JPG")
	assert.True(t, deleted.Deleted)
	assert.True(t, deleted.Unverified, "a freed chain can never be certain")
	require.Len(t, deleted.Runs, 1)
	//600 bytes round up to two clusters from the start cluster
	assert.Equal(t, int64(testDataSectorB+4*testSectorSize), deleted.Runs[0].Offset)
	assert.Equal(t, int64(2*testSectorSize), deleted.Runs[0].Length)
}

func TestFAT32ChainLoopTruncates(t *testing.T) {
	image := buildFAT32Image()
	br := reader.New(&imageReader{data: image}, 0, 0)

	var fs FAT
	require.NoError(t, fs.Process(context.Background(), br, 0))

	looped := findRecord(t, fs.GetMetadata(), "LOOP.BIN")
	assert.True(t, looped.Unverified)
	assert.NotEmpty(t, looped.Runs, "truncated recovery keeps the clusters walked so far")
	assert.Greater(t, fs.GetStats().Corrupt, 0)
}

func TestFAT32ChainEscapingTableTruncates(t *testing.T) {
	fs := FAT{
		Variant:           "FAT32",
		bytesPerSector:    testSectorSize,
		sectorsPerCluster: 1,
		totalClusters:     16,
		table:             make([]uint32, 16),
	}
	fs.table[2] = 3
	fs.table[3] = 200 //next pointer beyond the table

	extents, err := fs.chainExtents(2, 0)
	assert.True(t, errors.Is(err, metadata.ErrCorruptChain))
	require.Len(t, extents, 1, "clusters walked before the bad pointer survive")
	assert.Equal(t, int64(2*testSectorSize), extents[0].Length)
}

func TestFATRootRecordIsSelfParented(t *testing.T) {
	image := buildFAT32Image()
	br := reader.New(&imageReader{data: image}, 0, 0)

	var fs FAT
	require.NoError(t, fs.Process(context.Background(), br, 0))

	records := fs.GetMetadata()
	assert.Equal(t, uint64(2), records[0].Id)
	assert.Equal(t, records[0].Id, records[0].ParentId)
	assert.True(t, records[0].Dir)
}

func buildExfatImage() []byte {
	image := make([]byte, testSectors*testSectorSize)

	bs := image[:testSectorSize]
	copy(bs[3:], "EXFAT   ")
	binary.LittleEndian.PutUint32(bs[80:], 1)  //FAT offset in sectors
	binary.LittleEndian.PutUint32(bs[84:], 1)  //FAT length
	binary.LittleEndian.PutUint32(bs[88:], 2)  //cluster heap offset
	binary.LittleEndian.PutUint32(bs[92:], 60) //cluster count
	binary.LittleEndian.PutUint32(bs[96:], 2)  //root directory cluster
	bs[108] = 9                                //bytes per sector shift
	bs[109] = 0                                //sectors per cluster shift
	bs[110] = 1
	binary.LittleEndian.PutUint16(bs[510:], 0xAA55)

	fatTable := image[testSectorSize : 2*testSectorSize]
	binary.LittleEndian.PutUint32(fatTable[2*4:], 0xFFFFFFFF) //root EOC

	root := image[testDataSectorB : testDataSectorB+testSectorSize]
	pos := 0
	put := func(entry []byte) {
		copy(root[pos:], entry)
		pos += 32
	}

	put(exfatFileEntry(0x85, 2, 0x0000))
	put(exfatStreamEntry(0xC0, 9, 3, 700))
	put(exfatNameEntry(0xC1, "photo.jpg"))

	put(exfatFileEntry(0x05, 2, 0x0000)) //in-use bit cleared, deleted
	put(exfatStreamEntry(0x40, 8, 5, 300))
	put(exfatNameEntry(0x41, "gone.png"))

	return image
}

func exfatFileEntry(entryType uint8, secondaries uint8, attributes uint16) []byte {
	entry := make([]byte, 32)
	entry[0] = entryType
	entry[1] = secondaries
	binary.LittleEndian.PutUint16(entry[4:], attributes)
	return entry
}

func exfatStreamEntry(entryType uint8, nameLen uint8, firstCluster uint32, dataLength uint64) []byte {
	entry := make([]byte, 32)
	entry[0] = entryType
	entry[1] = 0x02 //NoFatChain, clusters are contiguous
	entry[3] = nameLen
	binary.LittleEndian.PutUint64(entry[8:], dataLength)
	binary.LittleEndian.PutUint32(entry[20:], firstCluster)
	binary.LittleEndian.PutUint64(entry[24:], dataLength)
	return entry
}

func exfatNameEntry(entryType uint8, name string) []byte {
	entry := make([]byte, 32)
	entry[0] = entryType
	copy(entry[2:], utils.EncodeUTF16(name))
	return entry
}

func TestExfatProcess(t *testing.T) {
	image := buildExfatImage()
	br := reader.New(&imageReader{data: image}, 0, 0)

	var fs FAT
	require.NoError(t, fs.Process(context.Background(), br, 0))
	assert.Equal(t, "exFAT", fs.Variant)

	records := fs.GetMetadata()
	photo := findRecord(t, records, "photo.jpg")
	assert.False(t, photo.Deleted)
	assert.Equal(t, int64(700), photo.Size)
	require.Len(t, photo.Runs, 1)
	assert.Equal(t, int64(testDataSectorB+testSectorSize), photo.Runs[0].Offset)
	assert.Equal(t, int64(2*testSectorSize), photo.Runs[0].Length)

	gone := findRecord(t, records, "gone.png")
	assert.True(t, gone.Deleted)
	require.Len(t, gone.Runs, 1)
	assert.Equal(t, int64(testDataSectorB+3*testSectorSize), gone.Runs[0].Offset)
}
