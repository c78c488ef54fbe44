package maestrano

import "sort"

// Names returns the sorted marketplace names, for logging.
func Names(marketplaces map[string]*Marketplace) []string {
	names := make([]string, 0, len(marketplaces))
	for name := range marketplaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
