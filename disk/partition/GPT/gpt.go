package gpt

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	metadata "github.com/VinayK8866/project-phoenix/FS"
	"github.com/VinayK8866/project-phoenix/logger"
	"github.com/VinayK8866/project-phoenix/utils"
)

var PartitionTypeGuids = map[string]string{
	"ebd0a0a2-b9e5-4433-87c0-68b6b72699c7": "Windows basic data",
	"c12a7328-f81f-11d2-ba4b-00a0c93ec93b": "EFI system",
	"de94bba4-06d1-4d40-a16a-bfd50179d6ac": "Windows recovery",
	"0fc63daf-8483-4772-8e79-3d69d8477de4": "Linux data",
	"a19d880f-05fc-4d3b-a006-743f0f84911e": "Linux RAID",
}

const unusedTypeGUID = "00000000-0000-0000-0000-000000000000"

type GPT struct {
	Header     *GPTHeader
	Partitions []Partition
}

type GPTHeader struct {
	StartSignature     [8]byte //0-7 "EFI PART"
	Revision           [4]byte //8-11
	HeaderSize         uint32  //12-15
	HeaderCRC          uint32  //16-19 over HeaderSize bytes, field zeroed
	Reserved           [4]byte //20-23
	CurrentLBA         uint64  //24-31 location of this header
	BackupLBA          uint64  //32-39
	FirstUsableLBA     uint64  //40-47
	LastUsableLBA      uint64  //48-55
	DiskGUID           [16]byte
	PartitionsStartLBA uint64 //72-79 usually LBA 2
	NofPartitions      uint32 //80-83
	PartitionSize      uint32 //84-87
	PartitionArrayCRC  uint32 //88-91
}

type Partition struct {
	PartitionTypeGUID [16]byte
	PartitionGUID     [16]byte
	StartLBA          uint64
	EndLBA            uint64
	Attributes        [8]byte
	NameRaw           [72]byte //UTF-16

	Invalid bool
	FS      metadata.FileSystem
}

func (header GPTHeader) HasValidSignature() bool {
	return string(header.StartSignature[:]) == "EFI PART"
}

// VerifyCRC recomputes the header checksum over the declared header size
// with the checksum field zeroed.
func (header GPTHeader) VerifyCRC(buffer []byte) bool {
	size := header.HeaderSize
	if size < 92 || int(size) > len(buffer) {
		return false
	}
	scratch := append([]byte{}, buffer[:size]...)
	binary.LittleEndian.PutUint32(scratch[16:20], 0)
	return crc32.ChecksumIEEE(scratch) == header.HeaderCRC
}

func (gpt *GPT) ParseHeader(buffer []byte) error {
	var header GPTHeader
	utils.Unmarshal(buffer[:92], &header)
	if !header.HasValidSignature() {
		return fmt.Errorf("%w: no EFI PART signature", metadata.ErrNotThisFileSystem)
	}
	if header.PartitionSize < 128 || header.NofPartitions == 0 || header.NofPartitions > 1024 {
		return fmt.Errorf("%w: implausible partition array geometry", metadata.ErrCorruptStructure)
	}
	if !header.VerifyCRC(buffer) {
		//the entries are still validated one by one, a stale checksum
		//alone should not block recovery
		logger.Phoenixlogger.Warning("GPT header checksum mismatch, continuing with per-entry validation")
	}
	gpt.Header = &header
	return nil
}

func (gpt GPT) GetPartitionArraySize() uint32 {
	return gpt.Header.PartitionSize * gpt.Header.NofPartitions
}

func (gpt *GPT) ParsePartitions(data []byte, totalSectors uint64) error {
	if gpt.Header == nil {
		return fmt.Errorf("%w: partition array without header", metadata.ErrCorruptStructure)
	}
	if crc32.ChecksumIEEE(data) != gpt.Header.PartitionArrayCRC {
		logger.Phoenixlogger.Warning("GPT partition array checksum mismatch, continuing with per-entry validation")
	}

	entrySize := int(gpt.Header.PartitionSize)
	for idx := 0; idx < int(gpt.Header.NofPartitions) && (idx+1)*entrySize <= len(data); idx++ {
		var partition Partition
		utils.Unmarshal(data[idx*entrySize:(idx+1)*entrySize], &partition)
		if partition.IsEmpty() {
			continue
		}
		partition.Validate(totalSectors)
		gpt.Partitions = append(gpt.Partitions, partition)
	}
	return nil
}

func (gpt GPT) GetPartition(partitionNum int) Partition {
	return gpt.Partitions[partitionNum]
}

func (partition Partition) IsEmpty() bool {
	return utils.StringifyGUID(partition.PartitionTypeGUID[:]) == unusedTypeGUID
}

// Validate excludes entries with out-of-bounds or inverted geometry.
func (partition *Partition) Validate(totalSectors uint64) {
	if partition.EndLBA < partition.StartLBA ||
		(totalSectors > 0 && partition.EndLBA >= totalSectors) {
		partition.Invalid = true
		logger.Phoenixlogger.Warning(fmt.Sprintf("GPT partition %s has invalid geometry [%d, %d], excluded",
			partition.GetUniqueGUID(), partition.StartLBA, partition.EndLBA))
	}
}

func (partition Partition) GetOffset() uint64 {
	return partition.StartLBA
}

func (partition Partition) GetSectorCount() uint64 {
	if partition.EndLBA < partition.StartLBA {
		return 0
	}
	return partition.EndLBA - partition.StartLBA + 1
}

func (partition Partition) GetPartitionType() string {
	guid := utils.StringifyGUID(partition.PartitionTypeGUID[:])
	if name, ok := PartitionTypeGuids[guid]; ok {
		return name
	}
	return guid
}

func (partition Partition) GetUniqueGUID() string {
	return utils.StringifyGUID(partition.PartitionGUID[:])
}

func (partition Partition) GetName() string {
	name := utils.DecodeUTF16(partition.NameRaw[:])
	for idx, r := range name {
		if r == 0x00 {
			return name[:idx]
		}
	}
	return name
}

func (partition Partition) GetFileSystem() metadata.FileSystem {
	return partition.FS
}

func (partition *Partition) SetFileSystem(fs metadata.FileSystem) {
	partition.FS = fs
}

func (partition Partition) GetInfo() string {
	return fmt.Sprintf("%s %s at sector %d, %d sectors", partition.GetUniqueGUID(),
		partition.GetPartitionType(), partition.GetOffset(), partition.GetSectorCount())
}
