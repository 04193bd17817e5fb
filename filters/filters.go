package filters

import (
	"strings"

	"github.com/VinayK8866/project-phoenix/manifest"
	"github.com/VinayK8866/project-phoenix/utils"
)

// Filter narrows the manifest before export or reporting.
type Filter interface {
	Execute(entries []manifest.Entry) []manifest.Entry
}

type NameFilter struct {
	Filenames []string
}

func (nameFilter NameFilter) Execute(entries []manifest.Entry) []manifest.Entry {
	return utils.Filter(entries, func(entry manifest.Entry) bool {
		for _, fname := range nameFilter.Filenames {
			if entry.Name == fname {
				return true
			}
		}
		return false
	})
}

type ExtensionsFilter struct {
	Extensions []string
}

func (extensionsFilter ExtensionsFilter) Execute(entries []manifest.Entry) []manifest.Entry {
	return utils.Filter(entries, func(entry manifest.Entry) bool {
		for _, extension := range extensionsFilter.Extensions {
			if strings.HasSuffix(strings.ToLower(entry.OutputName()),
				strings.ToLower(strings.TrimPrefix(extension, "."))) {
				return true
			}
		}
		return false
	})
}

type DeletedFilter struct {
	Include bool
}

func (deletedFilter DeletedFilter) Execute(entries []manifest.Entry) []manifest.Entry {
	if deletedFilter.Include {
		return entries
	}
	return utils.Filter(entries, func(entry manifest.Entry) bool {
		return !entry.Deleted
	})
}

type SourceFilter struct {
	Sources []manifest.Source
}

func (sourceFilter SourceFilter) Execute(entries []manifest.Entry) []manifest.Entry {
	return utils.Filter(entries, func(entry manifest.Entry) bool {
		for _, source := range sourceFilter.Sources {
			if entry.Source == source {
				return true
			}
		}
		return false
	})
}

type StatusFilter struct {
	Statuses []manifest.Status
}

func (statusFilter StatusFilter) Execute(entries []manifest.Entry) []manifest.Entry {
	return utils.Filter(entries, func(entry manifest.Entry) bool {
		for _, status := range statusFilter.Statuses {
			if entry.Status == status {
				return true
			}
		}
		return false
	})
}

type SizeFilter struct {
	MinB int64
	MaxB int64 //zero means unbounded
}

func (sizeFilter SizeFilter) Execute(entries []manifest.Entry) []manifest.Entry {
	return utils.Filter(entries, func(entry manifest.Entry) bool {
		if entry.Size < sizeFilter.MinB {
			return false
		}
		return sizeFilter.MaxB == 0 || entry.Size <= sizeFilter.MaxB
	})
}

type PartitionFilter struct {
	Partition int //zero based, negative means all
}

func (partitionFilter PartitionFilter) Execute(entries []manifest.Entry) []manifest.Entry {
	if partitionFilter.Partition < 0 {
		return entries
	}
	return utils.Filter(entries, func(entry manifest.Entry) bool {
		return entry.Partition == partitionFilter.Partition
	})
}
