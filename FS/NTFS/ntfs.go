package ntfs

import (
	"bytes"
	"context"
	"fmt"

	metadata "github.com/VinayK8866/project-phoenix/FS"
	"github.com/VinayK8866/project-phoenix/FS/NTFS/MFT"
	MFTAttributes "github.com/VinayK8866/project-phoenix/FS/NTFS/MFT/attributes"
	"github.com/VinayK8866/project-phoenix/logger"
	"github.com/VinayK8866/project-phoenix/reader"
	"github.com/VinayK8866/project-phoenix/utils"
)

// Engine phases, each depends on the previous one.
type State int

const (
	Unidentified State = iota
	BootSectorValidated
	MFTLocated
	RecordsParsed
	TreeBuilt
)

type NTFS struct {
	JumpInstruction   [3]byte  //0-2
	Signature         string   //3-6 "NTFS"
	NotUsed1          [4]byte  //7-10
	BytesPerSector    uint16   //11-12
	SectorsPerCluster uint8    //13
	NotUsed2          [26]byte //14-39
	TotalSectors      uint64   //40-47
	MFTOffset         uint64   //48-55 in clusters
	MFTMirrOffset     uint64   //56-63

	MFTTable *MFT.MFTTable
	State    State

	records metadata.Records
	stats   metadata.Stats
}

// Parse validates the boot record. A failed signature yields
// ErrNotThisFileSystem so the orchestrator can try the next engine.
func (ntfs *NTFS) Parse(buffer []byte) error {
	if len(buffer) < 64 {
		return fmt.Errorf("%w: boot sector too short", metadata.ErrNotThisFileSystem)
	}
	utils.Unmarshal(buffer, ntfs)
	if !ntfs.HasValidSignature() {
		return metadata.ErrNotThisFileSystem
	}
	if ntfs.BytesPerSector == 0 || ntfs.SectorsPerCluster == 0 {
		return fmt.Errorf("%w: zero geometry in boot sector", metadata.ErrNotThisFileSystem)
	}
	ntfs.State = BootSectorValidated
	return nil
}

func (ntfs NTFS) HasValidSignature() bool {
	return ntfs.Signature == "NTFS"
}

func (ntfs NTFS) GetSignature() string {
	return "NTFS"
}

func (ntfs NTFS) GetBytesPerSector() uint16 {
	return ntfs.BytesPerSector
}

func (ntfs NTFS) GetSectorsPerCluster() uint8 {
	return ntfs.SectorsPerCluster
}

func (ntfs NTFS) GetMetadata() metadata.Records {
	return ntfs.records
}

func (ntfs NTFS) GetStats() metadata.Stats {
	return ntfs.stats
}

func (ntfs NTFS) clusterSizeB() int64 {
	return int64(ntfs.BytesPerSector) * int64(ntfs.SectorsPerCluster)
}

// Process walks the partition's MFT and reconstructs one Record per
// entry, deleted ones included.
func (ntfs *NTFS) Process(ctx context.Context, br *reader.BlockReader, partitionOffsetB int64) error {
	if ntfs.State < BootSectorValidated {
		if err := ntfs.locateBootSector(br, partitionOffsetB); err != nil {
			return err
		}
	}

	mftOffsetB := partitionOffsetB + int64(ntfs.MFTOffset)*ntfs.clusterSizeB()
	bs, err := br.Read(reader.Extent{Offset: mftOffsetB, Length: int64(MFT.RecordSize)})
	if err != nil {
		return err
	}

	mfttable := new(MFT.MFTTable)
	mfttable.ProcessRecords(bs)
	if len(mfttable.Records) == 0 {
		return fmt.Errorf("%w: $MFT record zero unreadable", metadata.ErrCorruptStructure)
	}
	mfttable.DetermineClusterOffsetLength()
	if mfttable.Size == 0 {
		return fmt.Errorf("%w: $MFT has no data runs", metadata.ErrCorruptStructure)
	}
	ntfs.MFTTable = mfttable
	ntfs.State = MFTLocated

	mftArea, err := ntfs.collectMFTArea(ctx, br, partitionOffsetB)
	if err != nil {
		return err
	}

	mfttable.Records = nil
	mfttable.Skipped = 0
	mfttable.Corrupt = 0
	mfttable.ProcessRecords(mftArea)
	mfttable.CreateLinkedRecords()
	ntfs.State = RecordsParsed

	ntfs.buildMetadata(ctx, br, partitionOffsetB)
	ntfs.State = TreeBuilt
	return nil
}

func (ntfs *NTFS) locateBootSector(br *reader.BlockReader, partitionOffsetB int64) error {
	data, err := br.Read(reader.Extent{Offset: partitionOffsetB, Length: 512})
	if err != nil {
		return err
	}
	return ntfs.Parse(data)
}

// collectMFTArea assembles the $MFT content by following record zero's
// own runlist, the table is commonly fragmented itself.
func (ntfs *NTFS) collectMFTArea(ctx context.Context, br *reader.BlockReader, partitionOffsetB int64) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(ntfs.MFTTable.Size * int(ntfs.clusterSizeB()))

	diskSize := br.TotalSize()
	for _, extent := range ntfs.MFTTable.Records[0].GetDataExtents(partitionOffsetB, ntfs.clusterSizeB()) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if diskSize > 0 && extent.End() > diskSize {
			logger.Phoenixlogger.Warning(fmt.Sprintf("$MFT run at %d exceeds device size, truncated", extent.Offset))
			break
		}
		data, err := br.Read(extent)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

// buildMetadata converts MFT records to file system agnostic ones and
// cross-checks deleted entries against currently allocated clusters.
func (ntfs *NTFS) buildMetadata(ctx context.Context, br *reader.BlockReader, partitionOffsetB int64) {
	clusterSizeB := ntfs.clusterSizeB()

	var allocated []reader.Extent
	for idx := range ntfs.MFTTable.Records {
		record := &ntfs.MFTTable.Records[idx]
		if record.IsDeleted() {
			continue
		}
		allocated = append(allocated, record.GetDataExtents(partitionOffsetB, clusterSizeB)...)
	}

	ntfs.records = make(metadata.Records, 0, len(ntfs.MFTTable.Records))
	for idx := range ntfs.MFTTable.Records {
		select {
		case <-ctx.Done():
			return
		default:
		}
		record := &ntfs.MFTTable.Records[idx]
		if record.BaseRef != 0 { //extension record, data reached via its base record
			continue
		}

		fnattr, _ := record.FindAttribute("FileName").(*MFTAttributes.FNAttribute)
		if fnattr == nil {
			ntfs.stats.Skipped++
			logger.Phoenixlogger.Warning(fmt.Sprintf("record %d has no usable FileName attribute, skipped", record.Entry))
			continue
		}

		mrecord := metadata.Record{
			Id:       uint64(record.Entry),
			ParentId: fnattr.ParRef,
			Name:     record.GetFname(),
			Size:     record.GetLogicalFileSize(),
			Deleted:  record.IsDeleted(),
			Dir:      record.IsFolder(),
		}

		siattr, _ := record.FindAttribute("Standard Information").(*MFTAttributes.SIAttribute)
		if siattr != nil { //authoritative timestamps
			mrecord.Created = siattr.Crtime.ToTime()
			mrecord.Modified = siattr.Mtime.ToTime()
			mrecord.Accessed = siattr.Atime.ToTime()
		} else {
			mrecord.Created = fnattr.Crtime.ToTime()
			mrecord.Modified = fnattr.Mtime.ToTime()
			mrecord.Accessed = fnattr.Atime.ToTime()
		}

		if record.HasResidentDataAttr() {
			mrecord.Resident = append([]byte{}, record.GetResidentData()...)
		} else {
			mrecord.Runs = record.GetDataExtents(partitionOffsetB, clusterSizeB)
			for _, linkedRecord := range record.LinkedRecords {
				mrecord.Runs = append(mrecord.Runs, linkedRecord.GetDataExtents(partitionOffsetB, clusterSizeB)...)
			}
		}

		if mrecord.Deleted {
			ntfs.crossCheckDeleted(&mrecord, allocated)
		}

		ntfs.records = append(ntfs.records, mrecord)
		ntfs.stats.Processed++
	}
	ntfs.stats.Corrupt += ntfs.MFTTable.Corrupt
	ntfs.stats.Skipped += ntfs.MFTTable.Skipped
}

// crossCheckDeleted detects reallocation of a deleted entry's clusters.
// An overlap with an allocated run means the content is gone or partial.
func (ntfs *NTFS) crossCheckDeleted(mrecord *metadata.Record, allocated []reader.Extent) {
	if len(mrecord.Runs) == 0 {
		return //resident content lives in the MFT entry itself
	}
	if len(allocated) == 0 {
		mrecord.Unverified = true //nothing to cross-check against
		return
	}
	for _, run := range mrecord.Runs {
		for _, used := range allocated {
			if run.Offset < used.End() && used.Offset < run.End() {
				mrecord.Reallocated = true
				return
			}
		}
	}
}
