package MBR

import (
	"fmt"

	metadata "github.com/VinayK8866/project-phoenix/FS"
	"github.com/VinayK8866/project-phoenix/logger"
	"github.com/VinayK8866/project-phoenix/utils"
)

var PartitionTypes = map[uint8]string{
	0x07: "HPFS/NTFS/exFAT",
	0x0b: "W95 FAT32",
	0x0c: "W95 FAT32 (LBA)",
	0x0f: "Extended",
	0x17: "Hidden HPFS/NTFS",
	0x27: "Hidden NTFS Win",
	0xEE: "GPT protective",
}

type MBR struct {
	BootCode           [446]byte //0-445
	Partitions         []Partition
	ExtendedPartitions []ExtendedPartition
	Signature          [2]byte //510-511 0x55AA
}

type ExtendedPartition struct {
	Partition   *Partition
	TableOffset uint64 //sectors
}

type Partition struct {
	Flag     uint8
	StartCHS [3]byte
	Type     uint8
	EndCHS   [3]byte
	StartLBA uint32
	Size     uint32 //sectors

	Invalid bool
	FS      metadata.FileSystem
}

func (partition Partition) GetOffset() uint64 {
	return uint64(partition.StartLBA)
}

func (partition Partition) GetSectorCount() uint64 {
	return uint64(partition.Size)
}

func (partition Partition) GetPartitionType() string {
	name, ok := PartitionTypes[partition.Type]
	if !ok {
		return fmt.Sprintf("unknown (%#02x)", partition.Type)
	}
	return name
}

func (partition Partition) IsEmpty() bool {
	return partition.Type == 0x00
}

func (partition Partition) GetInfo() string {
	return fmt.Sprintf("%s at sector %d, %d sectors", partition.GetPartitionType(),
		partition.StartLBA, partition.Size)
}

func (partition Partition) GetFileSystem() metadata.FileSystem {
	return partition.FS
}

func (partition *Partition) SetFileSystem(fs metadata.FileSystem) {
	partition.FS = fs
}

// Validate excludes entries whose geometry falls outside the device, a
// garbage table entry must not block recovery of the valid ones.
func (partition *Partition) Validate(totalSectors uint64) {
	if partition.IsEmpty() {
		return
	}
	if totalSectors > 0 &&
		uint64(partition.StartLBA)+uint64(partition.Size) > totalSectors {
		partition.Invalid = true
		logger.Phoenixlogger.Warning(fmt.Sprintf("partition at sector %d overruns device (%d sectors), excluded",
			partition.StartLBA, totalSectors))
	}
}

func (extPartition ExtendedPartition) GetOffset() uint64 {
	return uint64(extPartition.Partition.StartLBA) + extPartition.TableOffset
}

func (extPartition ExtendedPartition) GetSectorCount() uint64 {
	return extPartition.Partition.GetSectorCount()
}

func (extPartition ExtendedPartition) GetInfo() string {
	return "extended " + extPartition.Partition.GetInfo()
}

func (extPartition ExtendedPartition) GetFileSystem() metadata.FileSystem {
	return extPartition.Partition.FS
}

func (extPartition *ExtendedPartition) SetFileSystem(fs metadata.FileSystem) {
	extPartition.Partition.FS = fs
}

func (mbr MBR) HasValidSignature() bool {
	return mbr.Signature[0] == 0x55 && mbr.Signature[1] == 0xAA
}

func (mbr MBR) IsProtective() bool {
	return len(mbr.Partitions) > 0 && mbr.Partitions[0].Type == 0xEE
}

func (mbr MBR) GetPartition(partitionNum int) Partition {
	return mbr.Partitions[partitionNum]
}

func LocatePartitions(data []byte) []Partition {
	var partitions []Partition
	for pos := 0; pos+16 <= len(data); pos += 16 {
		var partition Partition
		utils.Unmarshal(data[pos:pos+16], &partition)
		partitions = append(partitions, partition)
	}
	return partitions
}

func (mbr *MBR) Parse(buffer []byte, totalSectors uint64) error {
	if len(buffer) < 512 {
		return fmt.Errorf("%w: sector too short", metadata.ErrNotThisFileSystem)
	}
	copy(mbr.BootCode[:], buffer[:446])
	copy(mbr.Signature[:], buffer[510:512])
	if !mbr.HasValidSignature() {
		return fmt.Errorf("%w: no 0x55AA boot signature", metadata.ErrNotThisFileSystem)
	}
	mbr.Partitions = LocatePartitions(buffer[446:510])
	for idx := range mbr.Partitions {
		mbr.Partitions[idx].Validate(totalSectors)
	}
	return nil
}

func (mbr MBR) GetExtendedPartitionOffset() (uint64, bool) {
	for _, partition := range mbr.Partitions {
		if partition.Type == 0x0f && !partition.Invalid && !partition.IsEmpty() {
			return partition.GetOffset(), true
		}
	}
	return 0, false
}

// DiscoverExtendedPartitions parses the extended boot record located at
// offset sectors, entries there are relative to that table.
func (mbr *MBR) DiscoverExtendedPartitions(buffer []byte, offset uint64, totalSectors uint64) {
	partitions := LocatePartitions(buffer[446:510])
	for idx := range partitions {
		if partitions[idx].IsEmpty() {
			continue
		}
		partitions[idx].Validate(totalSectors)
		mbr.ExtendedPartitions = append(mbr.ExtendedPartitions,
			ExtendedPartition{Partition: &partitions[idx], TableOffset: offset})
	}
}

// PopulatePseudoMBR fabricates a single whole-device partition when the
// first sector carries a volume boot record instead of a partition
// table, common on superfloppy formatted media.
func (mbr *MBR) PopulatePseudoMBR(volType uint8, totalSectors uint64) {
	mbr.Signature = [2]byte{0x55, 0xAA}
	mbr.Partitions = []Partition{{
		Type:     volType,
		StartLBA: 0,
		Size:     uint32(totalSectors),
	}}
}
