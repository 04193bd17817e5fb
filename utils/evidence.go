package utils

import (
	"path/filepath"
	"sort"
	"strings"
)

// FindEvidenceFiles collects the segment files of a split evidence image
// (.E01, .E02 ...) that belong to the first segment given.
func FindEvidenceFiles(pathToEvidence string) []string {
	extension := filepath.Ext(pathToEvidence)
	pattern := strings.TrimSuffix(pathToEvidence, extension) + ".?[0-9][0-9]"
	filenames, err := filepath.Glob(pattern)
	if err != nil || len(filenames) == 0 {
		return []string{pathToEvidence}
	}
	sort.Strings(filenames)
	return filenames
}
