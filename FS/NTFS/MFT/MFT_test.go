package MFT

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	metadata "github.com/VinayK8866/project-phoenix/FS"
	"github.com/VinayK8866/project-phoenix/utils"
)

func buildResidentAttribute(attrType uint32, content []byte) []byte {
	attrLen := 24 + len(content)
	if attrLen%8 != 0 {
		attrLen += 8 - attrLen%8
	}
	buf := make([]byte, attrLen)
	binary.LittleEndian.PutUint32(buf[0:], attrType)
	binary.LittleEndian.PutUint32(buf[4:], uint32(attrLen))
	binary.LittleEndian.PutUint32(buf[16:], uint32(len(content))) //content size
	binary.LittleEndian.PutUint16(buf[20:], 24)                   //content offset
	copy(buf[24:], content)
	return buf
}

func buildNonResidentDataAttribute(packedRuns []byte, actualLength uint64) []byte {
	attrLen := 64 + len(packedRuns)
	if attrLen%8 != 0 {
		attrLen += 8 - attrLen%8
	}
	buf := make([]byte, attrLen)
	binary.LittleEndian.PutUint32(buf[0:], 0x80)
	binary.LittleEndian.PutUint32(buf[4:], uint32(attrLen))
	buf[8] = 1                                  //non resident
	binary.LittleEndian.PutUint16(buf[32:], 64) //runlist offset
	binary.LittleEndian.PutUint64(buf[48:], actualLength)
	copy(buf[64:], packedRuns)
	return buf
}

func buildFNContent(name string, parentRef uint64, realSize uint64, flags uint32) []byte {
	encoded := utils.EncodeUTF16(name)
	buf := make([]byte, 66+len(encoded))
	binary.LittleEndian.PutUint32(buf[0:], uint32(parentRef))
	binary.LittleEndian.PutUint16(buf[6:], 1)
	binary.LittleEndian.PutUint64(buf[48:], realSize)
	binary.LittleEndian.PutUint32(buf[56:], flags)
	buf[64] = uint8(len([]rune(name)))
	buf[65] = 1 //Win32
	copy(buf[66:], encoded)
	return buf
}

func buildRecord(entry uint32, flags uint16, attributes ...[]byte) []byte {
	bs := make([]byte, RecordSize)
	copy(bs[0:], "FILE")
	binary.LittleEndian.PutUint16(bs[4:], 48) //update sequence array offset
	binary.LittleEndian.PutUint16(bs[6:], 0)  //no fixups
	binary.LittleEndian.PutUint16(bs[20:], 56)
	binary.LittleEndian.PutUint16(bs[22:], flags)
	binary.LittleEndian.PutUint32(bs[44:], entry)

	pos := 56
	for _, attribute := range attributes {
		copy(bs[pos:], attribute)
		pos += len(attribute)
	}
	binary.LittleEndian.PutUint32(bs[pos:], 0xFFFFFFFF)
	return bs
}

func TestProcessRecordWithResidentData(t *testing.T) {
	content := []byte("hello resident world")
	bs := buildRecord(64, 0x1, //allocated file
		buildResidentAttribute(0x30, buildFNContent("notes.txt", 5, uint64(len(content)), 0)),
		buildResidentAttribute(0x80, content),
	)

	var record Record
	require.NoError(t, record.Process(bs))

	assert.Equal(t, uint32(64), record.Entry)
	assert.False(t, record.IsDeleted())
	assert.False(t, record.IsFolder())
	assert.Equal(t, "notes.txt", record.GetFname())
	assert.True(t, record.HasResidentDataAttr())
	assert.Equal(t, content, record.GetResidentData())
	assert.Equal(t, int64(len(content)), record.GetLogicalFileSize())
}

func TestProcessDeletedRecord(t *testing.T) {
	bs := buildRecord(65, 0x0, //unallocated
		buildResidentAttribute(0x30, buildFNContent("erased.jpg", 5, 2048, 0)),
	)

	var record Record
	require.NoError(t, record.Process(bs))

	assert.True(t, record.IsDeleted())
	assert.Equal(t, "erased.jpg", record.GetFname())
}

func TestProcessRejectsBadSignatures(t *testing.T) {
	bs := buildRecord(1, 0x1)
	copy(bs[0:], "BAAD")

	var record Record
	err := record.Process(bs)
	assert.True(t, errors.Is(err, metadata.ErrCorruptStructure))

	copy(bs[0:], "GARB")
	err = record.Process(bs)
	assert.True(t, errors.Is(err, metadata.ErrCorruptStructure))
}

func TestApplyFixupsRestoresSectorTails(t *testing.T) {
	bs := buildRecord(7, 0x1,
		buildResidentAttribute(0x30, buildFNContent("fixed.bin", 5, 0, 0)),
	)
	binary.LittleEndian.PutUint16(bs[6:], 3) //usn plus two entries

	//the on-disk form holds the usn at each sector tail, the real bytes
	//live in the update sequence array
	binary.LittleEndian.PutUint16(bs[48:], 0xABCD)
	binary.LittleEndian.PutUint16(bs[50:], 0x1122)
	binary.LittleEndian.PutUint16(bs[52:], 0x3344)
	binary.LittleEndian.PutUint16(bs[510:], 0xABCD)
	binary.LittleEndian.PutUint16(bs[1022:], 0xABCD)

	var record Record
	require.NoError(t, record.Process(bs))
	assert.Equal(t, uint16(0x1122), binary.LittleEndian.Uint16(bs[510:]))
	assert.Equal(t, uint16(0x3344), binary.LittleEndian.Uint16(bs[1022:]))
}

func TestApplyFixupsDetectsTornWrite(t *testing.T) {
	bs := buildRecord(7, 0x1)
	binary.LittleEndian.PutUint16(bs[6:], 3)
	binary.LittleEndian.PutUint16(bs[48:], 0xABCD)
	binary.LittleEndian.PutUint16(bs[510:], 0xABCD)
	binary.LittleEndian.PutUint16(bs[1022:], 0xDEAD) //mismatching tail

	var record Record
	err := record.Process(bs)
	assert.True(t, errors.Is(err, metadata.ErrCorruptStructure))
}

func TestGetDataExtentsAccumulatesRelativeOffsets(t *testing.T) {
	//16 clusters at 0x1000, then 8 clusters 0x1000 clusters back
	packedRuns := []byte{
		0x21, 0x10, 0x00, 0x10,
		0x21, 0x08, 0x00, 0xF0,
		0x00,
	}
	bs := buildRecord(3, 0x1,
		buildResidentAttribute(0x30, buildFNContent("frag.dat", 5, 0, 0)),
		buildNonResidentDataAttribute(packedRuns, 98304),
	)

	var record Record
	require.NoError(t, record.Process(bs))

	clusterSizeB := int64(4096)
	extents := record.GetDataExtents(0, clusterSizeB)
	require.Len(t, extents, 2)

	assert.Equal(t, int64(0x1000)*clusterSizeB, extents[0].Offset)
	assert.Equal(t, int64(16)*clusterSizeB, extents[0].Length)
	//second run lands back at cluster zero after the negative offset
	assert.Equal(t, int64(0), extents[1].Offset)
	assert.Equal(t, int64(8)*clusterSizeB, extents[1].Length)

	assert.Equal(t, int64(98304), record.GetLogicalFileSize())
}

func TestTableSkipsZeroedAndCorruptEntries(t *testing.T) {
	good := buildRecord(0, 0x1,
		buildResidentAttribute(0x30, buildFNContent("$MFT", 5, 0, 0)),
		buildNonResidentDataAttribute([]byte{0x11, 0x04, 0x02, 0x00}, 0),
	)
	zeroed := make([]byte, RecordSize)
	torn := buildRecord(2, 0x1)
	copy(torn[0:], "BAAD")

	data := append(append(append([]byte{}, good...), zeroed...), torn...)

	var table MFTTable
	table.ProcessRecords(data)

	assert.Len(t, table.Records, 1)
	assert.Equal(t, 1, table.Skipped)
	assert.Equal(t, 1, table.Corrupt)

	table.DetermineClusterOffsetLength()
	assert.Equal(t, 4, table.Size)
}
