package disk

import (
	"errors"
	"fmt"

	metadata "github.com/VinayK8866/project-phoenix/FS"
	"github.com/VinayK8866/project-phoenix/FS/FAT"
	ntfsLib "github.com/VinayK8866/project-phoenix/FS/NTFS"
	gptLib "github.com/VinayK8866/project-phoenix/disk/partition/GPT"
	mbrLib "github.com/VinayK8866/project-phoenix/disk/partition/MBR"
	"github.com/VinayK8866/project-phoenix/img"
	"github.com/VinayK8866/project-phoenix/logger"
	"github.com/VinayK8866/project-phoenix/reader"
)

const sectorSize = 512

// Partition abstracts MBR, GPT and pseudo entries for the orchestrator.
type Partition interface {
	GetOffset() uint64 //sectors
	GetSectorCount() uint64
	GetInfo() string
	GetFileSystem() metadata.FileSystem
	SetFileSystem(metadata.FileSystem)
}

// Disk owns the device handle and the discovered partition layout.
type Disk struct {
	MBR        *mbrLib.MBR
	GPT        *gptLib.GPT
	Handler    img.DiskReader
	Partitions []Partition
}

// Initialize opens the source read-only, the mode selects raw image,
// expert witness container, virtual disk or physical drive access.
func (disk *Disk) Initialize(pathToSource string, mode string) error {
	hD, err := img.GetHandler(pathToSource, mode)
	if err != nil {
		return err
	}
	disk.Handler = hD
	return nil
}

func (disk Disk) Close() {
	if disk.Handler != nil {
		disk.Handler.CloseHandler()
	}
}

func (disk Disk) TotalSectors() uint64 {
	size := disk.Handler.GetDiskSize()
	if size <= 0 {
		return 0
	}
	return uint64(size) / sectorSize
}

// DiscoverPartitions reads the partition scheme off sector zero. A
// volume boot record there (no partition table) yields a pseudo MBR
// covering the whole device, a protective MBR redirects to GPT.
func (disk *Disk) DiscoverPartitions(br *reader.BlockReader) error {
	data, err := br.Read(reader.Extent{Offset: 0, Length: sectorSize})
	if err != nil {
		return err
	}

	if volType, ok := sniffVolumeBootRecord(data); ok {
		msg := "no partition table, volume boot record found at sector zero"
		logger.Phoenixlogger.Warning(msg)
		disk.createPseudoMBR(volType)
		return nil
	}

	var mbr mbrLib.MBR
	if err := mbr.Parse(data, disk.TotalSectors()); err != nil {
		//neither a table nor a known volume, treat the whole device as
		//one opaque extent so carving still runs
		logger.Phoenixlogger.Warning(fmt.Sprintf("sector zero unrecognized: %v", err))
		disk.createPseudoMBR(0x00)
		return nil
	}
	disk.MBR = &mbr

	if mbr.IsProtective() {
		return disk.populateGPT(br)
	}

	if offset, ok := mbr.GetExtendedPartitionOffset(); ok {
		ebrData, err := br.Read(reader.Extent{Offset: int64(offset) * sectorSize, Length: sectorSize})
		if err == nil {
			mbr.DiscoverExtendedPartitions(ebrData, offset, disk.TotalSectors())
		} else {
			logger.Phoenixlogger.Warning(fmt.Sprintf("extended boot record unreadable: %v", err))
		}
	}

	for idx := range mbr.Partitions {
		if mbr.Partitions[idx].IsEmpty() || mbr.Partitions[idx].Invalid {
			continue
		}
		disk.Partitions = append(disk.Partitions, &mbr.Partitions[idx])
	}
	for idx := range mbr.ExtendedPartitions {
		if mbr.ExtendedPartitions[idx].Partition.Invalid {
			continue
		}
		disk.Partitions = append(disk.Partitions, &mbr.ExtendedPartitions[idx])
	}
	return nil
}

func (disk *Disk) populateGPT(br *reader.BlockReader) error {
	data, err := br.Read(reader.Extent{Offset: sectorSize, Length: sectorSize})
	if err != nil {
		return err
	}

	var gpt gptLib.GPT
	if err := gpt.ParseHeader(data); err != nil {
		logger.Phoenixlogger.Warning(fmt.Sprintf("protective MBR without usable GPT: %v", err))
		disk.createPseudoMBR(0x00)
		return nil
	}

	arrayData, err := br.Read(reader.Extent{
		Offset: int64(gpt.Header.PartitionsStartLBA) * sectorSize,
		Length: int64(gpt.GetPartitionArraySize()),
	})
	if err != nil {
		return err
	}
	if err := gpt.ParsePartitions(arrayData, disk.TotalSectors()); err != nil {
		return err
	}
	disk.GPT = &gpt

	for idx := range gpt.Partitions {
		if gpt.Partitions[idx].Invalid {
			continue
		}
		disk.Partitions = append(disk.Partitions, &gpt.Partitions[idx])
	}
	return nil
}

func (disk *Disk) createPseudoMBR(volType uint8) {
	var mbr mbrLib.MBR
	mbr.PopulatePseudoMBR(volType, disk.TotalSectors())
	disk.MBR = &mbr
	for idx := range mbr.Partitions {
		disk.Partitions = append(disk.Partitions, &mbr.Partitions[idx])
	}
}

// sniffVolumeBootRecord recognizes a file system boot sector sitting
// directly at sector zero.
func sniffVolumeBootRecord(data []byte) (uint8, bool) {
	if len(data) < 90 {
		return 0, false
	}
	switch {
	case string(data[3:7]) == "NTFS":
		return 0x07, true
	case string(data[3:11]) == "EXFAT   ":
		return 0x07, true
	case string(data[82:87]) == "FAT32":
		return 0x0b, true
	}
	return 0, false
}

// bootParser is a metadata engine that can be probed with a raw boot
// sector before committing to it.
type bootParser interface {
	metadata.FileSystem
	Parse([]byte) error
}

// ProbeFileSystem tries each metadata engine against the partition's
// boot sector. ErrNotThisFileSystem means no engine claimed it and the
// partition falls through to carving.
func ProbeFileSystem(br *reader.BlockReader, partition Partition, hints []string) (metadata.FileSystem, error) {
	partitionOffsetB := int64(partition.GetOffset()) * sectorSize
	data, err := br.Read(reader.Extent{Offset: partitionOffsetB, Length: sectorSize})
	if err != nil {
		return nil, err
	}

	for _, engine := range enginesForHints(hints) {
		if parseErr := engine.Parse(data); parseErr == nil {
			partition.SetFileSystem(engine)
			return engine, nil
		} else if !errors.Is(parseErr, metadata.ErrNotThisFileSystem) {
			logger.Phoenixlogger.Warning(fmt.Sprintf("engine probe at sector %d: %v", partition.GetOffset(), parseErr))
		}
	}
	return nil, metadata.ErrNotThisFileSystem
}

// enginesForHints orders fresh engine instances, an explicit hint list
// overrides the default NTFS-first order.
func enginesForHints(hints []string) []bootParser {
	if len(hints) == 0 {
		return []bootParser{new(ntfsLib.NTFS), new(fat.FAT)}
	}
	var engines []bootParser
	for _, hint := range hints {
		switch hint {
		case "ntfs", "NTFS":
			engines = append(engines, new(ntfsLib.NTFS))
		case "fat", "fat32", "FAT32", "exfat", "exFAT":
			engines = append(engines, new(fat.FAT))
		default:
			logger.Phoenixlogger.Warning(fmt.Sprintf("unknown file system hint %q ignored", hint))
		}
	}
	return engines
}

// PartitionExtent is the byte range a partition covers on the device.
func PartitionExtent(partition Partition) reader.Extent {
	return reader.Extent{
		Offset: int64(partition.GetOffset()) * sectorSize,
		Length: int64(partition.GetSectorCount()) * sectorSize,
	}
}

func (disk Disk) ListPartitions() {
	if disk.GPT != nil {
		fmt.Printf("GPT:\n")
	} else {
		fmt.Printf("MBR:\n")
	}
	for idx, partition := range disk.Partitions {
		fmt.Printf("%d %s\n", idx+1, partition.GetInfo())
	}
}
