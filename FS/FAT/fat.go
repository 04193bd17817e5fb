package fat

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	metadata "github.com/VinayK8866/project-phoenix/FS"
	"github.com/VinayK8866/project-phoenix/logger"
	"github.com/VinayK8866/project-phoenix/reader"
)

// Engine phases, each depends on the previous one.
type State int

const (
	Unidentified State = iota
	BootSectorValidated
	FATLoaded
	EntriesParsed
	TreeBuilt
)

const (
	fat32EOC = 0x0FFFFFF8
	fat32Bad = 0x0FFFFFF7
	exfatEOC = 0xFFFFFFF8
	exfatBad = 0xFFFFFFF7
)

// BootSector is the FAT32 BIOS parameter block.
type BootSector struct {
	JumpBoot          [3]byte  //0-2
	OEMName           [8]byte  //3-10
	BytesPerSector    uint16   //11-12
	SectorsPerCluster uint8    //13
	ReservedSectors   uint16   //14-15
	NumFATs           uint8    //16
	RootEntryCount    uint16   //17-18 zero for FAT32
	TotalSectors16    uint16   //19-20
	Media             uint8    //21
	FATSize16         uint16   //22-23 zero for FAT32
	SectorsPerTrack   uint16   //24-25
	NumHeads          uint16   //26-27
	HiddenSectors     uint32   //28-31
	TotalSectors32    uint32   //32-35
	FATSize32         uint32   //36-39
	ExtFlags          uint16   //40-41
	FSVersion         uint16   //42-43
	RootCluster       uint32   //44-47
	FSInfo            uint16   //48-49
	BackupBootSector  uint16   //50-51
	Reserved          [12]byte //52-63
	DriveNumber       uint8    //64
	Reserved1         uint8    //65
	BootSig           uint8    //66
	VolumeID          uint32   //67-70
	VolumeLabel       [11]byte //71-81
	FSType            [8]byte  //82-89
}

// FAT implements the metadata engine for both FAT32 and exFAT volumes.
type FAT struct {
	Variant string //"FAT32" or "exFAT"
	State   State

	bytesPerSector    uint16
	sectorsPerCluster uint8
	fatOffsetB        int64 //relative to partition start
	fatLengthB        int64
	dataOffsetB       int64 //cluster heap, relative to partition start
	rootCluster       uint32
	totalClusters     uint32

	table           []uint32
	records         metadata.Records
	stats           metadata.Stats
	nextSyntheticId uint64
}

// identifiers for entries without a start cluster live above any
// possible cluster number
const syntheticIdBase = uint64(1) << 32

// Parse validates the boot sector of either variant and derives the FAT
// location, cluster size and root directory location.
func (fs *FAT) Parse(buffer []byte) error {
	if len(buffer) < 512 {
		return fmt.Errorf("%w: boot sector too short", metadata.ErrNotThisFileSystem)
	}
	if binary.LittleEndian.Uint16(buffer[510:512]) != 0xAA55 {
		return metadata.ErrNotThisFileSystem
	}

	if string(buffer[3:11]) == "EXFAT   " {
		return fs.parseExfat(buffer)
	}

	var bs BootSector
	if err := binary.Read(bytes.NewReader(buffer[:90]), binary.LittleEndian, &bs); err != nil {
		return fmt.Errorf("%w: %v", metadata.ErrNotThisFileSystem, err)
	}
	if string(bs.FSType[:5]) != "FAT32" {
		return metadata.ErrNotThisFileSystem
	}
	if bs.BytesPerSector == 0 || bs.SectorsPerCluster == 0 || bs.FATSize32 == 0 {
		return fmt.Errorf("%w: zero geometry in boot sector", metadata.ErrNotThisFileSystem)
	}

	fs.Variant = "FAT32"
	fs.bytesPerSector = bs.BytesPerSector
	fs.sectorsPerCluster = bs.SectorsPerCluster
	fs.fatOffsetB = int64(bs.ReservedSectors) * int64(bs.BytesPerSector)
	fs.fatLengthB = int64(bs.FATSize32) * int64(bs.BytesPerSector)
	dataStartSectors := int64(bs.ReservedSectors) + int64(bs.NumFATs)*int64(bs.FATSize32)
	fs.dataOffsetB = dataStartSectors * int64(bs.BytesPerSector)

	totalSectors := int64(bs.TotalSectors32)
	if totalSectors == 0 {
		totalSectors = int64(bs.TotalSectors16)
	}
	if totalSectors > dataStartSectors {
		fs.totalClusters = uint32((totalSectors - dataStartSectors) / int64(bs.SectorsPerCluster))
	}
	fs.rootCluster = bs.RootCluster
	fs.State = BootSectorValidated
	return nil
}

func (fs FAT) GetSignature() string {
	return fs.Variant
}

func (fs FAT) GetBytesPerSector() uint16 {
	return fs.bytesPerSector
}

func (fs FAT) GetSectorsPerCluster() uint8 {
	return fs.sectorsPerCluster
}

func (fs FAT) GetMetadata() metadata.Records {
	return fs.records
}

func (fs FAT) GetStats() metadata.Stats {
	return fs.stats
}

func (fs FAT) clusterSizeB() int64 {
	return int64(fs.bytesPerSector) * int64(fs.sectorsPerCluster)
}

// clusterOffsetB maps a cluster number to its byte offset relative to
// the partition start. Clusters are numbered from two.
func (fs FAT) clusterOffsetB(cluster uint32) int64 {
	return fs.dataOffsetB + int64(cluster-2)*fs.clusterSizeB()
}

func (fs FAT) isEOC(entry uint32) bool {
	if fs.Variant == "exFAT" {
		return entry >= exfatEOC
	}
	return entry&0x0FFFFFFF >= fat32EOC
}

func (fs FAT) isBadOrFree(entry uint32) bool {
	if fs.Variant == "exFAT" {
		return entry == exfatBad || entry == 0
	}
	masked := entry & 0x0FFFFFFF
	return masked == fat32Bad || masked == 0
}

func (fs *FAT) Process(ctx context.Context, br *reader.BlockReader, partitionOffsetB int64) error {
	if fs.State < BootSectorValidated {
		data, err := br.Read(reader.Extent{Offset: partitionOffsetB, Length: 512})
		if err != nil {
			return err
		}
		if err := fs.Parse(data); err != nil {
			return err
		}
	}

	if err := fs.loadTable(br, partitionOffsetB); err != nil {
		return err
	}
	fs.State = FATLoaded

	if fs.Variant == "exFAT" {
		if err := fs.walkExfatDirectories(ctx, br, partitionOffsetB); err != nil {
			return err
		}
	} else {
		if err := fs.walkDirectories(ctx, br, partitionOffsetB); err != nil {
			return err
		}
	}
	fs.State = EntriesParsed

	//the engine's records are parent-linked by cluster id, the tree
	//builder resolves them against this synthetic root
	fs.records = append(metadata.Records{{
		Id:       uint64(fs.rootCluster),
		ParentId: uint64(fs.rootCluster),
		Name:     "",
		Dir:      true,
	}}, fs.records...)
	fs.State = TreeBuilt
	return nil
}

// loadTable reads the File Allocation Table as cluster to next-cluster
// mapping.
func (fs *FAT) loadTable(br *reader.BlockReader, partitionOffsetB int64) error {
	data, err := br.Read(reader.Extent{Offset: partitionOffsetB + fs.fatOffsetB, Length: fs.fatLengthB})
	if err != nil {
		return err
	}
	fs.table = make([]uint32, len(data)/4)
	for i := range fs.table {
		fs.table[i] = binary.LittleEndian.Uint32(data[i*4 : i*4+4])
	}
	if fs.totalClusters == 0 || int(fs.totalClusters) > len(fs.table) {
		fs.totalClusters = uint32(len(fs.table))
	}
	return nil
}

// chainExtents traverses a cluster chain and collapses consecutive
// clusters into extents. Traversal is bounded by the total cluster
// count, a longer walk is a loop and truncates with ErrCorruptChain.
func (fs *FAT) chainExtents(start uint32, partitionOffsetB int64) ([]reader.Extent, error) {
	var extents []reader.Extent
	clusterSize := fs.clusterSizeB()

	cluster := start
	steps := uint32(0)
	runStart := start
	runLen := int64(0)

	flush := func() {
		if runLen > 0 {
			extents = append(extents, reader.Extent{
				Offset: partitionOffsetB + fs.clusterOffsetB(runStart),
				Length: runLen * clusterSize,
			})
		}
	}

	for cluster >= 2 && int(cluster) < len(fs.table) {
		if steps > fs.totalClusters {
			flush()
			return extents, fmt.Errorf("%w: chain from cluster %d exceeds cluster count",
				metadata.ErrCorruptChain, start)
		}
		steps++

		if runLen > 0 && cluster == runStart+uint32(runLen) {
			runLen++
		} else {
			flush()
			runStart = cluster
			runLen = 1
		}

		next := fs.table[cluster]
		if fs.isEOC(next) {
			flush()
			return extents, nil
		}
		if fs.isBadOrFree(next) {
			flush()
			return extents, fmt.Errorf("%w: chain from cluster %d hits %#x at cluster %d",
				metadata.ErrCorruptChain, start, next, cluster)
		}
		cluster = next
	}
	flush()
	if steps == 0 {
		return nil, fmt.Errorf("%w: chain start %d out of range", metadata.ErrCorruptChain, start)
	}
	//the loop only falls through when a next pointer left the table
	return extents, fmt.Errorf("%w: chain from cluster %d points outside the table at cluster %d",
		metadata.ErrCorruptChain, start, cluster)
}

// contiguousExtent covers a deleted file whose chain was freed in the
// FAT, the best guess is sequential clusters from its start.
func (fs *FAT) contiguousExtent(start uint32, sizeB int64, partitionOffsetB int64) []reader.Extent {
	if start < 2 || sizeB <= 0 {
		return nil
	}
	clusterSize := fs.clusterSizeB()
	clusters := (sizeB + clusterSize - 1) / clusterSize
	return []reader.Extent{{
		Offset: partitionOffsetB + fs.clusterOffsetB(start),
		Length: clusters * clusterSize,
	}}
}

// readChain pulls the full content of a live cluster chain, used to read
// directories.
func (fs *FAT) readChain(br *reader.BlockReader, start uint32, partitionOffsetB int64) ([]byte, error) {
	extents, err := fs.chainExtents(start, partitionOffsetB)
	if err != nil && len(extents) == 0 {
		return nil, err
	}
	if err != nil {
		logger.Phoenixlogger.Warning(fmt.Sprintf("directory chain truncated: %v", err))
		fs.stats.Corrupt++
	}
	var buf bytes.Buffer
	for _, extent := range extents {
		data, readErr := br.Read(extent)
		if readErr != nil {
			return nil, readErr
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}
