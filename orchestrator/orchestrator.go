package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	metadata "github.com/VinayK8866/project-phoenix/FS"
	"github.com/VinayK8866/project-phoenix/carver"
	"github.com/VinayK8866/project-phoenix/disk"
	"github.com/VinayK8866/project-phoenix/logger"
	"github.com/VinayK8866/project-phoenix/manifest"
	"github.com/VinayK8866/project-phoenix/reader"
	"github.com/VinayK8866/project-phoenix/tree"
)

// Mode selects the recovery strategy per partition.
type Mode string

const (
	ModeIntelligent Mode = "intelligent"
	ModeDeep        Mode = "deep"
	ModeFallback    Mode = "intelligent-then-fallback"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeIntelligent, ModeDeep, ModeFallback:
		return Mode(raw), nil
	}
	return "", fmt.Errorf("unknown mode %q", raw)
}

type Config struct {
	Mode             Mode
	ChunkSizeB       int
	MaxPendingCarves int
	SignatureDBPath  string
	FileSystemHints  []string
	IncludeDeleted   bool //emit deleted metadata entries, on by default
}

// Orchestrator drives the engines over one source device. Partitions
// are independent units of work, each gets its own worker while device
// reads stay serialized inside the block reader.
type Orchestrator struct {
	cfg      Config
	db       *carver.Database
	br       *reader.BlockReader
	disk     *disk.Disk
	manifest *manifest.Manifest
}

func New(dsk *disk.Disk, cfg Config, sink func(manifest.Entry)) (*Orchestrator, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeFallback
	}
	db, err := carver.LoadDatabase(cfg.SignatureDBPath)
	if err != nil {
		return nil, err
	}

	//the overlap must cover the longest header or footer so boundary
	//spanning matches are not lost
	overlap := db.MaxHeaderLen()
	if footerLen := db.MaxFooterLen(); footerLen > overlap {
		overlap = footerLen
	}
	if overlap < 16 {
		overlap = 16
	}

	return &Orchestrator{
		cfg:      cfg,
		db:       db,
		br:       reader.New(dsk.Handler, cfg.ChunkSizeB, overlap),
		disk:     dsk,
		manifest: manifest.New(sink),
	}, nil
}

func (o *Orchestrator) Manifest() *manifest.Manifest {
	return o.manifest
}

// BytesProcessed exposes scan progress for an external checkpoint or
// progress display.
func (o *Orchestrator) BytesProcessed() int64 {
	return o.br.BytesProcessed()
}

// Run discovers partitions and processes each on its own worker. A
// failed partition never aborts the others, their errors are joined in
// the result while collected manifest entries stay valid.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.disk.DiscoverPartitions(o.br); err != nil {
		return err
	}
	partitions := o.disk.Partitions
	if len(partitions) == 0 {
		logger.Phoenixlogger.Warning("no partitions discovered, scanning the whole device")
		return o.carveExtent(ctx, -1, reader.Extent{Offset: 0, Length: o.br.TotalSize()}, nil)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(partitions))
	for idx := range partitions {
		wg.Add(1)
		go func(idx int, partition disk.Partition) {
			defer wg.Done()
			errs[idx] = o.processPartition(ctx, idx, partition)
		}(idx, partitions[idx])
	}
	wg.Wait()

	for idx, err := range errs {
		if err != nil {
			logger.Phoenixlogger.Error(fmt.Sprintf("partition %d: %v", idx+1, err))
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) processPartition(ctx context.Context, idx int, partition disk.Partition) error {
	extent := disk.PartitionExtent(partition)

	switch o.cfg.Mode {
	case ModeDeep:
		//metadata still runs first so carves of intact named content are
		//suppressed instead of duplicated
		records, err := o.metadataPass(ctx, idx, partition)
		if err != nil && !errors.Is(err, metadata.ErrNotThisFileSystem) {
			return err
		}
		return o.carveExtent(ctx, idx, extent, records)
	case ModeIntelligent:
		_, err := o.metadataPass(ctx, idx, partition)
		return err
	default: //intelligent with deep scan fallback
		records, err := o.metadataPass(ctx, idx, partition)
		if err != nil && !errors.Is(err, metadata.ErrNotThisFileSystem) {
			return err
		}
		if len(records) > 0 {
			return nil
		}
		logger.Phoenixlogger.Info(fmt.Sprintf("partition %d yielded no metadata, falling back to deep scan", idx+1))
		return o.carveExtent(ctx, idx, extent, records)
	}
}

// metadataPass probes the partition for a known file system and walks
// its metadata into manifest entries.
func (o *Orchestrator) metadataPass(ctx context.Context, idx int, partition disk.Partition) (metadata.Records, error) {
	fs, err := disk.ProbeFileSystem(o.br, partition, o.cfg.FileSystemHints)
	if err != nil {
		return nil, err
	}

	partitionOffsetB := int64(partition.GetOffset()) * int64(fs.GetBytesPerSector())
	if err := fs.Process(ctx, o.br, partitionOffsetB); err != nil {
		return nil, err
	}

	records := fs.GetMetadata()
	o.manifest.AddStats(fs.GetStats())
	o.emitRecords(records, manifest.SourceForSignature(fs.GetSignature()), idx)
	return records, nil
}

// emitRecords resolves paths through the directory tree and streams one
// manifest entry per file record.
func (o *Orchestrator) emitRecords(records metadata.Records, source manifest.Source, idx int) {
	t := tree.Build(records)
	t.Walk(func(node *tree.Node, path string) {
		record := node.Record
		if record.Dir {
			return
		}
		if record.Deleted && !o.cfg.IncludeDeleted {
			return
		}
		o.manifest.Add(manifest.FromRecord(record, source, path, idx))
	})
}

// carveExtent runs the signature scan over one extent. Carves fully
// contained in a metadata record's extents are suppressed, that content
// is already recoverable with its name and timestamps attached.
func (o *Orchestrator) carveExtent(ctx context.Context, idx int, extent reader.Extent, records metadata.Records) error {
	if extent.Length <= 0 {
		return nil
	}

	c := carver.New(o.db, o.cfg.MaxPendingCarves)
	items, err := c.Scan(ctx, o.br, extent)

	suppressed := 0
	for _, item := range items {
		if containedInRecords(item.Extent, records) {
			suppressed++
			continue
		}
		o.manifest.Add(manifest.FromCarvedItem(item, idx))
	}
	o.manifest.CountSuppressed(suppressed)

	stats := c.GetStats()
	if stats.ResourceExhausted > 0 {
		logger.Phoenixlogger.Warning(fmt.Sprintf("partition %d: %d carves closed early by the pending bound",
			idx+1, stats.ResourceExhausted))
	}
	return err
}

func containedInRecords(extent reader.Extent, records metadata.Records) bool {
	for idx := range records {
		if records[idx].ContainsExtent(extent) {
			return true
		}
	}
	return false
}
