package filtermanager

import (
	"github.com/VinayK8866/project-phoenix/filters"
	"github.com/VinayK8866/project-phoenix/manifest"
)

type FilterManager struct {
	filters []filters.Filter
}

func (filterManager *FilterManager) Register(filter filters.Filter) {
	filterManager.filters = append(filterManager.filters, filter)
}

func (filterManager FilterManager) ApplyFilters(entries []manifest.Entry) []manifest.Entry {
	for _, filter := range filterManager.filters {
		entries = filter.Execute(entries)
	}
	return entries
}
