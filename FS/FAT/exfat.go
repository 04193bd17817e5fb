package fat

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	metadata "github.com/VinayK8866/project-phoenix/FS"
	"github.com/VinayK8866/project-phoenix/logger"
	"github.com/VinayK8866/project-phoenix/reader"
	"github.com/VinayK8866/project-phoenix/utils"
)

// Directory entry types. Clearing the in-use bit (0x80) marks deletion,
// a 0x85 file entry becomes 0x05 and so on.
const (
	entryTypeEOD        = 0x00
	entryTypeFile       = 0x85
	entryTypeStreamExt  = 0xC0
	entryTypeFileName   = 0xC1
	entryTypeAllocBmp   = 0x81
	entryTypeUpcase     = 0x82
	entryTypeVolumeName = 0x83
	entryInUseBit       = 0x80
)

const exfatAttrDirectory = 0x0010

// ExfatBootSector is the exFAT main boot region, geometry is expressed
// as powers of two.
type ExfatBootSector struct {
	JumpBoot                 [3]byte   //0-2
	FileSystemName           [8]byte   //3-10 "EXFAT   "
	MustBeZero               [53]byte  //11-63
	PartitionOffset          uint64    //64-71 in sectors
	VolumeLength             uint64    //72-79 in sectors
	FatOffset                uint32    //80-83 in sectors
	FatLength                uint32    //84-87 in sectors
	ClusterHeapOffset        uint32    //88-91 in sectors
	ClusterCount             uint32    //92-95
	FirstClusterOfRootDir    uint32    //96-99
	VolumeSerialNumber       uint32    //100-103
	FileSystemRevision       uint16    //104-105
	VolumeFlags              uint16    //106-107
	BytesPerSectorShift      uint8     //108
	SectorsPerClusterShift   uint8     //109
	NumberOfFats             uint8     //110
	DriveSelect              uint8     //111
	PercentInUse             uint8     //112
	Reserved                 [7]byte   //113-119
	BootCode                 [390]byte //120-509
	BootSignature            uint16    //510-511
}

// FileEntry is the 0x85 primary entry of a directory entry set.
type FileEntry struct {
	EntryType       uint8   //0
	SecondaryCount  uint8   //1 how many 0xC0/0xC1 entries follow
	SetChecksum     uint16  //2-3
	FileAttributes  uint16  //4-5
	Reserved1       uint16  //6-7
	CreateTimestamp uint32  //8-11
	ModifyTimestamp uint32  //12-15
	AccessTimestamp uint32  //16-19
	Create10ms      uint8   //20
	Modify10ms      uint8   //21
	CreateUTCOffset uint8   //22
	ModifyUTCOffset uint8   //23
	AccessUTCOffset uint8   //24
	Reserved2       [7]byte //25-31
}

// StreamExtensionEntry is the 0xC0 secondary entry holding location and
// size of the file content.
type StreamExtensionEntry struct {
	EntryType       uint8   //0
	GeneralFlags    uint8   //1 bit 1 NoFatChain
	Reserved1       uint8   //2
	NameLength      uint8   //3 in UTF-16 characters
	NameHash        uint16  //4-5
	Reserved2       uint16  //6-7
	ValidDataLength uint64  //8-15
	Reserved3       uint32  //16-19
	FirstCluster    uint32  //20-23
	DataLength      uint64  //24-31
}

func (stream StreamExtensionEntry) noFatChain() bool {
	return stream.GeneralFlags&0x02 != 0
}

// FileNameEntry is the 0xC1 secondary entry, fifteen UTF-16 characters
// per entry.
type FileNameEntry struct {
	EntryType    uint8    //0
	GeneralFlags uint8    //1
	FileName     [30]byte //2-31
}

func (fs *FAT) parseExfat(buffer []byte) error {
	var bs ExfatBootSector
	if err := binary.Read(bytes.NewReader(buffer[:512]), binary.LittleEndian, &bs); err != nil {
		return fmt.Errorf("%w: %v", metadata.ErrNotThisFileSystem, err)
	}
	if bs.BytesPerSectorShift < 9 || bs.BytesPerSectorShift > 12 ||
		bs.SectorsPerClusterShift > 25 {
		return fmt.Errorf("%w: implausible sector or cluster shift", metadata.ErrNotThisFileSystem)
	}
	if bs.FatOffset == 0 || bs.ClusterHeapOffset == 0 {
		return fmt.Errorf("%w: zero geometry in boot sector", metadata.ErrNotThisFileSystem)
	}

	fs.Variant = "exFAT"
	fs.bytesPerSector = uint16(1) << bs.BytesPerSectorShift
	fs.sectorsPerCluster = uint8(1) << bs.SectorsPerClusterShift
	fs.fatOffsetB = int64(bs.FatOffset) << bs.BytesPerSectorShift
	fs.fatLengthB = int64(bs.FatLength) << bs.BytesPerSectorShift
	fs.dataOffsetB = int64(bs.ClusterHeapOffset) << bs.BytesPerSectorShift
	fs.rootCluster = bs.FirstClusterOfRootDir
	fs.totalClusters = bs.ClusterCount
	fs.State = BootSectorValidated
	return nil
}

// exfatExtents resolves file content location. With the NoFatChain flag
// set the clusters are contiguous and the FAT holds no chain for them.
func (fs *FAT) exfatExtents(stream StreamExtensionEntry, partitionOffsetB int64) ([]reader.Extent, error) {
	if stream.FirstCluster < 2 || stream.DataLength == 0 {
		return nil, nil
	}
	if stream.noFatChain() {
		return fs.contiguousExtent(stream.FirstCluster, int64(stream.DataLength), partitionOffsetB), nil
	}
	return fs.chainExtents(stream.FirstCluster, partitionOffsetB)
}

// walkExfatDirectories traverses the directory tree breadth first,
// joining each 0x85 entry with its 0xC0 and 0xC1 secondaries.
func (fs *FAT) walkExfatDirectories(ctx context.Context, br *reader.BlockReader, partitionOffsetB int64) error {
	queue := []pendingDir{{cluster: fs.rootCluster, parentId: uint64(fs.rootCluster)}}
	visited := map[uint32]bool{fs.rootCluster: true}

	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		dir := queue[0]
		queue = queue[1:]

		data, err := fs.readChain(br, dir.cluster, partitionOffsetB)
		if err != nil {
			if errors.Is(err, reader.ErrIO) {
				return err
			}
			logger.Phoenixlogger.Warning(fmt.Sprintf("directory at cluster %d unreadable: %v", dir.cluster, err))
			fs.stats.Corrupt++
			continue
		}
		queue = append(queue, fs.parseExfatDirectory(data, dir, partitionOffsetB, visited)...)
	}

	fs.crossCheckDeleted()
	return nil
}

func (fs *FAT) parseExfatDirectory(data []byte, dir pendingDir,
	partitionOffsetB int64, visited map[uint32]bool) []pendingDir {

	var subdirs []pendingDir

	for off := 0; off+32 <= len(data); off += 32 {
		entryType := data[off]
		if entryType == entryTypeEOD {
			break
		}
		//only file entry sets matter for recovery, in use or not
		if entryType != entryTypeFile && entryType != entryTypeFile&^entryInUseBit {
			continue
		}

		var file FileEntry
		binary.Read(bytes.NewReader(data[off:off+32]), binary.LittleEndian, &file)
		deleted := entryType&entryInUseBit == 0

		stream, name, consumed, err := fs.parseEntrySet(data[off+32:], int(file.SecondaryCount), deleted)
		if err != nil {
			logger.Phoenixlogger.Warning(fmt.Sprintf("entry set at offset %d: %v", off, err))
			fs.stats.Corrupt++
			off += consumed
			continue
		}
		off += consumed

		mrecord := metadata.Record{
			Id:       fs.recordId(stream.FirstCluster),
			ParentId: dir.parentId,
			Name:     name,
			Size:     int64(stream.DataLength),
			Created:  utils.DOSTime(uint16(file.CreateTimestamp>>16), uint16(file.CreateTimestamp)),
			Modified: utils.DOSTime(uint16(file.ModifyTimestamp>>16), uint16(file.ModifyTimestamp)),
			Accessed: utils.DOSTime(uint16(file.AccessTimestamp>>16), uint16(file.AccessTimestamp)),
			Deleted:  deleted,
			Dir:      file.FileAttributes&exfatAttrDirectory != 0,
		}

		if !mrecord.Dir {
			if deleted {
				//the chain state after deletion is unreliable, assume
				//contiguity like the NoFatChain case
				mrecord.Runs = fs.contiguousExtent(stream.FirstCluster, mrecord.Size, partitionOffsetB)
			} else {
				extents, extErr := fs.exfatExtents(stream, partitionOffsetB)
				if extErr != nil {
					logger.Phoenixlogger.Warning(fmt.Sprintf("%q: %v, content truncated", name, extErr))
					fs.stats.Corrupt++
					mrecord.Unverified = true
				}
				mrecord.Runs = extents
			}
		}

		if mrecord.Dir && !deleted && stream.FirstCluster >= 2 && !visited[stream.FirstCluster] {
			visited[stream.FirstCluster] = true
			subdirs = append(subdirs, pendingDir{cluster: stream.FirstCluster, parentId: mrecord.Id})
		}

		fs.records = append(fs.records, mrecord)
		fs.stats.Processed++
	}
	return subdirs
}

// parseEntrySet reads the secondaries of one file entry, returning the
// stream extension, the joined name and the bytes consumed.
func (fs *FAT) parseEntrySet(data []byte, secondaryCount int, deleted bool) (StreamExtensionEntry, string, int, error) {
	var stream StreamExtensionEntry
	var nameRaw []byte
	haveStream := false
	consumed := 0

	for i := 0; i < secondaryCount && consumed+32 <= len(data); i++ {
		raw := data[consumed : consumed+32]
		consumed += 32

		entryType := raw[0]
		if deleted {
			entryType |= entryInUseBit //compare against the in-use form
		}
		switch entryType {
		case entryTypeStreamExt:
			binary.Read(bytes.NewReader(raw), binary.LittleEndian, &stream)
			stream.EntryType = raw[0]
			haveStream = true
		case entryTypeFileName:
			nameRaw = append(nameRaw, raw[2:32]...)
		}
	}

	if !haveStream {
		return stream, "", consumed, fmt.Errorf("%w: entry set lacks stream extension", metadata.ErrCorruptStructure)
	}

	name := utils.DecodeUTF16(nameRaw)
	if int(stream.NameLength) <= len([]rune(name)) {
		name = string([]rune(name)[:stream.NameLength])
	}
	name = strings.TrimRight(name, "\x00")
	if name == "" {
		return stream, "", consumed, fmt.Errorf("%w: entry set lacks file name", metadata.ErrCorruptStructure)
	}
	return stream, name, consumed, nil
}
