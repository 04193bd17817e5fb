package carver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/VinayK8866/project-phoenix/logger"
	"github.com/VinayK8866/project-phoenix/reader"
)

// Confidence grades how a carve was closed.
type Confidence string

const (
	ConfidenceHeaderFooter Confidence = "header+footer"
	ConfidenceTruncated    Confidence = "header-only, truncated"
	ConfidenceForcedClose  Confidence = "header-only, forced close"
)

// DefaultMaxPendingCarves bounds concurrently open carves per scan.
const DefaultMaxPendingCarves = 32

// CarvedItem is one recovered byte range with no metadata beyond its
// signature type.
type CarvedItem struct {
	Extent     reader.Extent
	Type       string
	Extension  string
	Confidence Confidence
	Sequence   int
}

// Filename builds the conventional output name, the offset keeps items
// unique and sortable.
func (item CarvedItem) Filename() string {
	return fmt.Sprintf("carved_%012d_%s%s", item.Extent.Offset, strings.ToLower(item.Type), item.Extension)
}

// Stats aggregates carve outcomes, ResourceExhausted counts forced
// closes caused by the pending bound.
type Stats struct {
	HeadersMatched    int
	Completed         int
	Truncated         int
	ResourceExhausted int
}

type pendingCarve struct {
	sig   *Signature
	start int64
}

// Carver runs a stateless signature scan over one extent. It owns no
// device access, all reads go through the block reader's chunk walk.
type Carver struct {
	db         *Database
	maxPending int

	pending []pendingCarve
	items   []CarvedItem
	stats   Stats
}

func New(db *Database, maxPending int) *Carver {
	if maxPending <= 0 {
		maxPending = DefaultMaxPendingCarves
	}
	return &Carver{db: db, maxPending: maxPending}
}

func (c *Carver) GetStats() Stats {
	return c.stats
}

// Scan walks the extent chunk by chunk and returns the carved items
// ordered by offset. Items collected before a cancellation or device
// fault are returned alongside the error.
func (c *Carver) Scan(ctx context.Context, br *reader.BlockReader, extent reader.Extent) ([]CarvedItem, error) {
	c.pending = nil
	c.items = nil

	scannedTo := extent.Offset
	err := br.Chunks(ctx, extent, func(chunk reader.Chunk) error {
		c.processChunk(chunk, &scannedTo)
		return nil
	})

	//whatever is still open at the extent end is cut there
	for _, p := range c.pending {
		end := p.start + p.sig.MaxSizeB
		if end > extent.End() {
			end = extent.End()
		}
		c.closeCarve(p, end, ConfidenceTruncated)
	}
	c.pending = nil

	sort.Slice(c.items, func(i, j int) bool {
		return c.items[i].Extent.Offset < c.items[j].Extent.Offset
	})
	for idx := range c.items {
		c.items[idx].Sequence = idx
	}
	return c.items, err
}

// processChunk advances all pending carves and opens new ones. Positions
// already fully covered by the previous chunk are skipped, the overlap
// only serves patterns spanning the boundary.
func (c *Carver) processChunk(chunk reader.Chunk, scannedTo *int64) {
	data := chunk.Data

	for i := 0; i < len(data); i++ {
		abs := chunk.Offset + int64(i)

		c.advancePending(data, i, abs, *scannedTo)

		for _, sig := range c.db.candidates(data[i]) {
			if abs+int64(sig.header.len()) <= *scannedTo {
				continue //fully matched against the previous chunk already
			}
			if !sig.header.matchAt(data, i) {
				continue
			}
			if c.hasPendingOfType(sig.Name) {
				continue //nested same-type headers belong to the open carve
			}
			c.openCarve(sig, abs)
		}
	}
	*scannedTo = chunk.Offset + int64(len(data))
}

// advancePending closes carves that hit their size bound or whose footer
// matches at the current position.
func (c *Carver) advancePending(data []byte, i int, abs int64, scannedTo int64) {
	remaining := c.pending[:0]
	for _, p := range c.pending {
		if abs-p.start >= p.sig.MaxSizeB {
			c.closeCarve(p, p.start+p.sig.MaxSizeB, ConfidenceTruncated)
			continue
		}
		if p.sig.footer != nil &&
			abs >= p.start+int64(p.sig.header.len()) &&
			abs+int64(len(p.sig.footer)) > scannedTo &&
			matchBytes(data, i, p.sig.footer) {
			c.closeCarve(p, abs+int64(len(p.sig.footer)), ConfidenceHeaderFooter)
			continue
		}
		remaining = append(remaining, p)
	}
	c.pending = remaining
}

// openCarve starts tracking a header match. At the pending bound the
// oldest carve is force-closed at the current position instead of
// dropping data.
func (c *Carver) openCarve(sig *Signature, start int64) {
	if len(c.pending) >= c.maxPending {
		oldest := c.pending[0]
		c.pending = c.pending[1:]
		c.closeCarve(oldest, start, ConfidenceForcedClose)
		c.stats.ResourceExhausted++
		logger.Phoenixlogger.Warning(fmt.Sprintf("pending carve bound reached, %s at %d closed early",
			oldest.sig.Name, oldest.start))
	}
	c.pending = append(c.pending, pendingCarve{sig: sig, start: start})
	c.stats.HeadersMatched++
}

func (c *Carver) closeCarve(p pendingCarve, end int64, confidence Confidence) {
	if end <= p.start {
		return
	}
	c.items = append(c.items, CarvedItem{
		Extent:     reader.Extent{Offset: p.start, Length: end - p.start},
		Type:       p.sig.Name,
		Extension:  p.sig.Extension,
		Confidence: confidence,
	})
	if confidence == ConfidenceHeaderFooter {
		c.stats.Completed++
	} else {
		c.stats.Truncated++
	}
}

func (c *Carver) hasPendingOfType(name string) bool {
	for _, p := range c.pending {
		if p.sig.Name == name {
			return true
		}
	}
	return false
}

func matchBytes(data []byte, i int, pat []byte) bool {
	if i+len(pat) > len(data) {
		return false
	}
	for j, b := range pat {
		if data[i+j] != b {
			return false
		}
	}
	return true
}
