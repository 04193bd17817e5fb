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

const (
	attrReadOnly  = 0x01
	attrHidden    = 0x02
	attrSystem    = 0x04
	attrVolumeID  = 0x08
	attrDirectory = 0x10
	attrArchive   = 0x20
	attrLongName  = 0x0F

	lfnLastEntry = 0x40
	deletedMark  = 0xE5
	kanjiEscape  = 0x05
)

// DirEntry is the 32 byte FAT short directory entry.
type DirEntry struct {
	Name         [11]byte //0-10 8.3 name, space padded
	Attr         uint8    //11
	NTRes        uint8    //12
	CrtTimeTenth uint8    //13
	CrtTime      uint16   //14-15
	CrtDate      uint16   //16-17
	LstAccDate   uint16   //18-19
	FstClusHI    uint16   //20-21
	WrtTime      uint16   //22-23
	WrtDate      uint16   //24-25
	FstClusLO    uint16   //26-27
	FileSize     uint32   //28-31
}

// LFNEntry carries thirteen UTF-16 characters of a long name, entries
// precede their short entry in descending sequence order.
type LFNEntry struct {
	Ord       uint8    //0 sequence, bit 0x40 marks the last (first on disk)
	Name1     [10]byte //1-10 characters 1-5
	Attr      uint8    //11 always 0x0F
	Type      uint8    //12
	Chksum    uint8    //13 checksum of the short name
	Name2     [12]byte //14-25 characters 6-11
	FstClusLO uint16   //26-27 always zero
	Name3     [4]byte  //28-31 characters 12-13
}

func (entry DirEntry) firstCluster() uint32 {
	return uint32(entry.FstClusHI)<<16 | uint32(entry.FstClusLO)
}

func (entry DirEntry) isLongName() bool {
	return entry.Attr&attrLongName == attrLongName
}

func (entry DirEntry) isVolumeLabel() bool {
	return entry.Attr&attrVolumeID != 0 && !entry.isLongName()
}

func (entry DirEntry) isDirectory() bool {
	return entry.Attr&attrDirectory != 0
}

// shortName formats the 8.3 name, the kanji escape byte restores 0xE5.
func (entry DirEntry) shortName() string {
	raw := entry.Name
	if raw[0] == kanjiEscape {
		raw[0] = deletedMark
	}
	base := strings.TrimRight(string(raw[:8]), " ")
	ext := strings.TrimRight(string(raw[8:11]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// lfnChecksum is computed over the 8.3 name and stored in every long
// name entry of the set.
func lfnChecksum(name [11]byte) uint8 {
	var sum uint8
	for _, b := range name {
		sum = ((sum & 1) << 7) + (sum >> 1) + b
	}
	return sum
}

// lfnAssembler joins long name fragments arriving in descending
// sequence order ahead of their short entry.
type lfnAssembler struct {
	fragments map[uint8][]byte //sequence -> raw UTF-16 bytes
	checksum  uint8
	valid     bool
}

func (asm *lfnAssembler) reset() {
	asm.fragments = nil
	asm.valid = false
}

func (asm *lfnAssembler) add(lfn LFNEntry) {
	seq := lfn.Ord & 0x3F
	if seq == 0 {
		asm.reset()
		return
	}
	if lfn.Ord&lfnLastEntry != 0 || asm.fragments == nil {
		asm.fragments = make(map[uint8][]byte)
		asm.checksum = lfn.Chksum
		asm.valid = true
	} else if lfn.Chksum != asm.checksum {
		asm.reset()
		return
	}
	raw := make([]byte, 0, 26)
	raw = append(raw, lfn.Name1[:]...)
	raw = append(raw, lfn.Name2[:]...)
	raw = append(raw, lfn.Name3[:]...)
	asm.fragments[seq] = raw
}

// take returns the assembled long name when the accumulated set is
// complete and its checksum matches the short entry, empty otherwise.
func (asm *lfnAssembler) take(short [11]byte) string {
	defer asm.reset()
	if !asm.valid || len(asm.fragments) == 0 || asm.checksum != lfnChecksum(short) {
		return ""
	}
	var raw []byte
	for seq := uint8(1); ; seq++ {
		fragment, ok := asm.fragments[seq]
		if !ok {
			if int(seq)-1 != len(asm.fragments) { //gap in the sequence
				return ""
			}
			break
		}
		raw = append(raw, fragment...)
	}
	name := utils.DecodeUTF16(raw)
	if idx := strings.IndexByte(name, 0x00); idx >= 0 {
		name = name[:idx]
	}
	return strings.TrimRight(name, "￿")
}

type pendingDir struct {
	cluster  uint32
	parentId uint64
}

// walkDirectories traverses the directory tree breadth first starting
// at the root cluster, emitting one Record per entry, deleted included.
func (fs *FAT) walkDirectories(ctx context.Context, br *reader.BlockReader, partitionOffsetB int64) error {
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
		queue = append(queue, fs.parseDirectory(data, dir, partitionOffsetB, visited)...)
	}

	fs.crossCheckDeleted()
	return nil
}

func (fs *FAT) parseDirectory(data []byte, dir pendingDir,
	partitionOffsetB int64, visited map[uint32]bool) []pendingDir {

	var subdirs []pendingDir
	var asm lfnAssembler

	for off := 0; off+32 <= len(data); off += 32 {
		raw := data[off : off+32]
		switch raw[0] {
		case 0x00: //end of directory marker
			return subdirs
		case deletedMark:
			if raw[11]&attrLongName == attrLongName {
				continue //sequence byte is gone, the name fragment is unusable
			}
			fs.emitDeleted(raw, dir, partitionOffsetB, asm.take(toShortName(raw)))
			continue
		}

		if raw[11]&attrLongName == attrLongName {
			var lfn LFNEntry
			binary.Read(bytes.NewReader(raw), binary.LittleEndian, &lfn)
			asm.add(lfn)
			continue
		}

		var entry DirEntry
		binary.Read(bytes.NewReader(raw), binary.LittleEndian, &entry)
		longName := asm.take(entry.Name)

		if entry.isVolumeLabel() {
			continue
		}
		shortName := entry.shortName()
		if shortName == "." || shortName == ".." {
			continue
		}

		name := longName
		if name == "" {
			name = shortName
		}
		cluster := entry.firstCluster()

		mrecord := metadata.Record{
			Id:       fs.recordId(cluster),
			ParentId: dir.parentId,
			Name:     name,
			Size:     int64(entry.FileSize),
			Created:  utils.DOSTime(entry.CrtDate, entry.CrtTime),
			Modified: utils.DOSTime(entry.WrtDate, entry.WrtTime),
			Accessed: utils.DOSTime(entry.LstAccDate, 0),
			Dir:      entry.isDirectory(),
		}

		if cluster >= 2 {
			extents, err := fs.chainExtents(cluster, partitionOffsetB)
			if err != nil {
				logger.Phoenixlogger.Warning(fmt.Sprintf("%q: %v, content truncated", name, err))
				fs.stats.Corrupt++
				mrecord.Unverified = true
			}
			if !mrecord.Dir {
				mrecord.Runs = extents
			}
		}

		if entry.isDirectory() && cluster >= 2 && !visited[cluster] {
			visited[cluster] = true
			subdirs = append(subdirs, pendingDir{cluster: cluster, parentId: mrecord.Id})
		}

		fs.records = append(fs.records, mrecord)
		fs.stats.Processed++
	}
	return subdirs
}

// emitDeleted records an erased entry. The allocation chain was freed so
// the content location is assumed contiguous from the start cluster.
func (fs *FAT) emitDeleted(raw []byte, dir pendingDir, partitionOffsetB int64, longName string) {
	var entry DirEntry
	binary.Read(bytes.NewReader(raw), binary.LittleEndian, &entry)

	if entry.isVolumeLabel() {
		return
	}

	name := longName
	if name == "" {
		//the deletion marker destroyed the first character
		name = entry.shortName()
		if len(name) > 0 {
			name = "_" + name[1:]
		}
	}
	cluster := entry.firstCluster()

	mrecord := metadata.Record{
		Id:       fs.recordId(cluster),
		ParentId: dir.parentId,
		Name:     name,
		Size:     int64(entry.FileSize),
		Created:  utils.DOSTime(entry.CrtDate, entry.CrtTime),
		Modified: utils.DOSTime(entry.WrtDate, entry.WrtTime),
		Accessed: utils.DOSTime(entry.LstAccDate, 0),
		Deleted:  true,
		Dir:      entry.isDirectory(),
	}
	if !mrecord.Dir {
		mrecord.Runs = fs.contiguousExtent(cluster, mrecord.Size, partitionOffsetB)
	}

	fs.records = append(fs.records, mrecord)
	fs.stats.Processed++
}

// recordId keys records by first cluster, entries without one (empty
// files) get a synthetic identifier above the cluster range.
func (fs *FAT) recordId(cluster uint32) uint64 {
	if cluster >= 2 {
		return uint64(cluster)
	}
	fs.nextSyntheticId++
	return syntheticIdBase + fs.nextSyntheticId
}

// crossCheckDeleted flags deleted entries whose assumed clusters are in
// use by a live file, their content is gone or partially overwritten.
func (fs *FAT) crossCheckDeleted() {
	var allocated []reader.Extent
	for idx := range fs.records {
		if !fs.records[idx].Deleted {
			allocated = append(allocated, fs.records[idx].Runs...)
		}
	}

	for idx := range fs.records {
		record := &fs.records[idx]
		if !record.Deleted || len(record.Runs) == 0 {
			continue
		}
		if len(allocated) == 0 {
			record.Unverified = true
			continue
		}
		for _, run := range record.Runs {
			for _, used := range allocated {
				if run.Offset < used.End() && used.Offset < run.End() {
					record.Reallocated = true
				}
			}
		}
		if !record.Reallocated {
			record.Unverified = true //assumed contiguous, never certain
		}
	}
}

func toShortName(raw []byte) [11]byte {
	var name [11]byte
	copy(name[:], raw[:11])
	return name
}
