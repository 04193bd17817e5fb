package reporter

import (
	"fmt"

	"github.com/VinayK8866/project-phoenix/manifest"
)

// Reporter prints manifest entries to stdout, field selection follows
// the command line flags.
type Reporter struct {
	ShowPath       bool
	ShowTimestamps bool
	ShowExtents    bool
	ShowConfidence bool
	ShowFull       bool
}

func (rp Reporter) Show(entries []manifest.Entry) {
	for _, entry := range entries {
		fmt.Printf("[%s] %-22s %s", entry.Source, entry.Status, entry.OutputName())
		if entry.Deleted {
			fmt.Printf(" (deleted)")
		}
		fmt.Printf(" %d bytes", entry.Size)

		if rp.ShowPath || rp.ShowFull {
			fmt.Printf("  path=%s", entry.Path)
		}
		if (rp.ShowTimestamps || rp.ShowFull) && !entry.Modified.IsZero() {
			fmt.Printf("  created=%s modified=%s",
				entry.Created.Format("2006-01-02 15:04:05"),
				entry.Modified.Format("2006-01-02 15:04:05"))
		}
		if (rp.ShowConfidence || rp.ShowFull) && entry.Confidence != "" {
			fmt.Printf("  confidence=%q", entry.Confidence)
		}
		if rp.ShowExtents || rp.ShowFull {
			for _, extent := range entry.Extents {
				fmt.Printf("  [%d +%d]", extent.Offset, extent.Length)
			}
		}
		fmt.Printf("\n")
	}
}

// ShowSummary prints the aggregate counters, skipped and corrupt counts
// included so nothing is silently swallowed.
func (rp Reporter) ShowSummary(counters manifest.Counters) {
	fmt.Printf("\nrecoverable %d  partially-recoverable %d  corrupt %d\n",
		counters.Recoverable, counters.Partial, counters.Corrupt)
	fmt.Printf("carved %d  suppressed duplicates %d  skipped entries %d  structural anomalies %d\n",
		counters.Carved, counters.Suppressed, counters.Skipped, counters.Anomalies)
}
