package manifest

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	metadata "github.com/VinayK8866/project-phoenix/FS"
	"github.com/VinayK8866/project-phoenix/carver"
	"github.com/VinayK8866/project-phoenix/reader"
)

// Source tags which engine produced an entry.
type Source string

const (
	SourceNTFS   Source = "NTFS"
	SourceFAT32  Source = "FAT32"
	SourceExFAT  Source = "exFAT"
	SourceCarver Source = "carver"
)

// Status grades how trustworthy the recovered content is.
type Status string

const (
	StatusRecoverable Status = "recoverable"
	StatusPartial     Status = "partially-recoverable"
	StatusCorrupt     Status = "corrupt"
)

// Entry is one recoverable item. It carries everything an export layer
// needs to write the file, nothing more crosses the boundary.
type Entry struct {
	Id         string
	Source     Source
	Status     Status
	Partition  int
	Path       string
	Name       string
	Size       int64
	Deleted    bool
	Dir        bool
	Confidence string
	Created    time.Time
	Modified   time.Time
	Extents    []reader.Extent
	Resident   []byte
}

// OutputName is the file name an exporter should write this entry as,
// carved entries follow the carved_<offset>_<type> convention.
func (entry Entry) OutputName() string {
	if entry.Name != "" {
		return entry.Name
	}
	return fmt.Sprintf("item_%s", entry.Id[:8])
}

// ContainsExtent reports whether the extent lies fully inside one of the
// entry's extents, the containment rule behind carve deduplication.
func (entry Entry) ContainsExtent(extent reader.Extent) bool {
	for _, run := range entry.Extents {
		if run.Contains(extent) {
			return true
		}
	}
	return false
}

// Counters aggregates the scan outcome, skipped and corrupt counts are
// surfaced rather than swallowed.
type Counters struct {
	Recoverable int
	Partial     int
	Corrupt     int
	Carved      int
	Suppressed  int //carves contained in metadata extents
	Skipped     int
	Anomalies   int
}

// Manifest streams entries to an optional sink as they arrive and keeps
// the aggregate counters. Safe for concurrent producers.
type Manifest struct {
	mu       sync.Mutex
	entries  []Entry
	counters Counters
	sink     func(Entry)
}

func New(sink func(Entry)) *Manifest {
	return &Manifest{sink: sink}
}

func (m *Manifest) Add(entry Entry) {
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	switch entry.Status {
	case StatusRecoverable:
		m.counters.Recoverable++
	case StatusPartial:
		m.counters.Partial++
	case StatusCorrupt:
		m.counters.Corrupt++
	}
	if entry.Source == SourceCarver {
		m.counters.Carved++
	}
	sink := m.sink
	m.mu.Unlock()

	if sink != nil {
		sink(entry)
	}
}

func (m *Manifest) AddStats(stats metadata.Stats) {
	m.mu.Lock()
	m.counters.Skipped += stats.Skipped
	m.counters.Anomalies += stats.Corrupt
	m.mu.Unlock()
}

func (m *Manifest) CountSuppressed(n int) {
	m.mu.Lock()
	m.counters.Suppressed += n
	m.mu.Unlock()
}

func (m *Manifest) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry{}, m.entries...)
}

func (m *Manifest) GetCounters() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters
}

// FromRecord grades a metadata record. Live entries and cleanly deleted
// ones are recoverable, reallocated clusters mean the content is gone.
func FromRecord(record *metadata.Record, source Source, path string, partition int) Entry {
	status := StatusRecoverable
	switch {
	case record.Reallocated:
		status = StatusCorrupt
	case record.Unverified:
		status = StatusPartial
	}

	return Entry{
		Id:        uuid.NewString(),
		Source:    source,
		Status:    status,
		Partition: partition,
		Path:      path,
		Name:      record.Name,
		Size:      record.Size,
		Deleted:   record.Deleted,
		Dir:       record.Dir,
		Created:   record.Created,
		Modified:  record.Modified,
		Extents:   record.Runs,
		Resident:  record.Resident,
	}
}

// FromCarvedItem grades a carve by how it was closed, only a matched
// footer earns full confidence.
func FromCarvedItem(item carver.CarvedItem, partition int) Entry {
	status := StatusPartial
	if item.Confidence == carver.ConfidenceHeaderFooter {
		status = StatusRecoverable
	}
	return Entry{
		Id:         uuid.NewString(),
		Source:     SourceCarver,
		Status:     status,
		Partition:  partition,
		Name:       item.Filename(),
		Size:       item.Extent.Length,
		Confidence: string(item.Confidence),
		Extents:    []reader.Extent{item.Extent},
	}
}

// SourceForSignature maps an engine signature string to its source tag.
func SourceForSignature(signature string) Source {
	switch strings.ToUpper(signature) {
	case "NTFS":
		return SourceNTFS
	case "EXFAT":
		return SourceExFAT
	default:
		return SourceFAT32
	}
}
