package metadata

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/VinayK8866/project-phoenix/reader"
	"github.com/VinayK8866/project-phoenix/utils"
)

// Control-flow and corruption signals shared by the engines. Only
// reader.ErrIO escalates, everything here recovers at the smallest
// granularity (one record, one chain, one entry).
var (
	ErrNotThisFileSystem = errors.New("signature validation failed, not this file system")
	ErrCorruptStructure  = errors.New("malformed on-disk structure")
	ErrCorruptChain      = errors.New("cluster chain loop or overrun")
)

// Stats aggregates what an engine skipped, never silently swallowed.
type Stats struct {
	Processed int
	Skipped   int
	Corrupt   int
}

// Record is the file system agnostic result of metadata parsing, one per
// entry including unallocated ones. Parents are referenced by identifier,
// resolved later through the tree's lookup table.
type Record struct {
	Id          uint64
	ParentId    uint64
	Name        string
	Size        int64
	Created     time.Time
	Modified    time.Time
	Accessed    time.Time
	Deleted     bool
	Dir         bool
	Orphaned    bool
	Unverified  bool //deleted entry whose clusters could not be cross-checked
	Reallocated bool //deleted entry whose clusters are in use by a live one
	Runs        []reader.Extent
	Resident    []byte
}

type Records []Record

// FileSystem is the closed set of metadata engines, selected per
// partition by the orchestrator.
type FileSystem interface {
	GetSignature() string
	GetBytesPerSector() uint16
	GetSectorsPerCluster() uint8
	Process(ctx context.Context, br *reader.BlockReader, partitionOffsetB int64) error
	GetMetadata() Records
	GetStats() Stats
}

func (record Record) IsDeleted() bool {
	return record.Deleted
}

func (record Record) IsFolder() bool {
	return record.Dir
}

func (record Record) GetFname() string {
	if record.Name == "" {
		return "-"
	}
	return record.Name
}

func (record Record) HasFilenameExtension(extension string) bool {
	return strings.HasSuffix(strings.ToLower(record.Name), strings.ToLower(extension))
}

func (record Record) HasResidentData() bool {
	return record.Resident != nil
}

func (record Record) GetLogicalFileSize() int64 {
	return record.Size
}

// TotalRunLength is the allocated (physical) size of the record's extents.
func (record Record) TotalRunLength() int64 {
	var total int64
	for _, run := range record.Runs {
		total += run.Length
	}
	return total
}

// OverlapsExtent reports whether any data run intersects the given extent.
func (record Record) OverlapsExtent(extent reader.Extent) bool {
	for _, run := range record.Runs {
		if run.Offset < extent.End() && extent.Offset < run.End() {
			return true
		}
	}
	return false
}

// ContainsExtent reports whether the extent lies fully inside one of the
// record's data runs.
func (record Record) ContainsExtent(extent reader.Extent) bool {
	for _, run := range record.Runs {
		if run.Contains(extent) {
			return true
		}
	}
	return false
}

// CollectData reassembles the record content by reading its extents in
// order, truncated to the logical size.
func (record Record) CollectData(br *reader.BlockReader) ([]byte, error) {
	if record.HasResidentData() {
		return record.Resident, nil
	}
	data := make([]byte, 0, record.TotalRunLength())
	for _, run := range record.Runs {
		part, err := br.Read(run)
		if err != nil {
			return nil, err
		}
		data = append(data, part...)
	}
	if record.Size > 0 && int64(len(data)) > record.Size {
		data = data[:record.Size]
	}
	return data, nil
}

func FilterByExtension(records Records, extension string) Records {
	return utils.Filter(records, func(record Record) bool {
		return record.HasFilenameExtension(extension)
	})
}

func FilterByName(records Records, filename string) Records {
	return utils.Filter(records, func(record Record) bool {
		return record.Name == filename
	})
}

func FilterDeleted(records Records, includeDeleted bool) Records {
	return utils.Filter(records, func(record Record) bool {
		return record.Deleted == includeDeleted
	})
}

func FilterOrphans(records Records) Records {
	return utils.Filter(records, func(record Record) bool {
		return record.Orphaned
	})
}

func FilterOutFolders(records Records) Records {
	return utils.Filter(records, func(record Record) bool {
		return !record.Dir
	})
}
