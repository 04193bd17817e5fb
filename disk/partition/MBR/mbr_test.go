package MBR

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	metadata "github.com/VinayK8866/project-phoenix/FS"
)

func tableEntry(partType uint8, startLBA uint32, size uint32) []byte {
	entry := make([]byte, 16)
	entry[4] = partType
	binary.LittleEndian.PutUint32(entry[8:], startLBA)
	binary.LittleEndian.PutUint32(entry[12:], size)
	return entry
}

func buildSector(entries ...[]byte) []byte {
	sector := make([]byte, 512)
	for idx, entry := range entries {
		copy(sector[446+16*idx:], entry)
	}
	sector[510] = 0x55
	sector[511] = 0xAA
	return sector
}

func TestParseValidatesBounds(t *testing.T) {
	sector := buildSector(
		tableEntry(0x07, 2048, 4096),
		tableEntry(0x0b, 10240, 0xFFFFFF00), //overruns the device
	)

	var mbr MBR
	require.NoError(t, mbr.Parse(sector, 16384))
	require.Len(t, mbr.Partitions, 4)

	assert.False(t, mbr.Partitions[0].Invalid)
	assert.Equal(t, uint64(2048), mbr.Partitions[0].GetOffset())
	assert.Equal(t, uint64(4096), mbr.Partitions[0].GetSectorCount())
	assert.Equal(t, "HPFS/NTFS/exFAT", mbr.Partitions[0].GetPartitionType())

	assert.True(t, mbr.Partitions[1].Invalid, "a garbage entry must not survive validation")
	assert.True(t, mbr.Partitions[2].IsEmpty())
	assert.True(t, mbr.Partitions[3].IsEmpty())
}

func TestParseRejectsMissingBootSignature(t *testing.T) {
	sector := make([]byte, 512)

	var mbr MBR
	err := mbr.Parse(sector, 16384)
	assert.True(t, errors.Is(err, metadata.ErrNotThisFileSystem))
}

func TestIsProtective(t *testing.T) {
	sector := buildSector(tableEntry(0xEE, 1, 16383))

	var mbr MBR
	require.NoError(t, mbr.Parse(sector, 16384))
	assert.True(t, mbr.IsProtective())
}

func TestGetExtendedPartitionOffset(t *testing.T) {
	sector := buildSector(
		tableEntry(0x07, 2048, 4096),
		tableEntry(0x0f, 8192, 2048),
	)

	var mbr MBR
	require.NoError(t, mbr.Parse(sector, 16384))

	offset, ok := mbr.GetExtendedPartitionOffset()
	require.True(t, ok)
	assert.Equal(t, uint64(8192), offset)
}

func TestDiscoverExtendedPartitions(t *testing.T) {
	ebr := buildSector(tableEntry(0x07, 63, 1024))

	var mbr MBR
	mbr.DiscoverExtendedPartitions(ebr, 8192, 16384)
	require.Len(t, mbr.ExtendedPartitions, 1)
	//entries inside the extended record are relative to its table
	assert.Equal(t, uint64(8192+63), mbr.ExtendedPartitions[0].GetOffset())
}

func TestPopulatePseudoMBR(t *testing.T) {
	var mbr MBR
	mbr.PopulatePseudoMBR(0x07, 16384)

	require.Len(t, mbr.Partitions, 1)
	partition := mbr.Partitions[0]
	assert.False(t, partition.IsEmpty(), "the whole-device entry starts at sector zero yet is real")
	assert.Equal(t, uint64(0), partition.GetOffset())
	assert.Equal(t, uint64(16384), partition.GetSectorCount())
	assert.True(t, mbr.HasValidSignature())
}
