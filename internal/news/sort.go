package news

import "sort"

// SortByRank orders observations by best rank, then by title.
func SortByRank(items []TitleObservation) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].BestRank(), items[j].BestRank()
		if ri != rj {
			return ri < rj
		}
		return items[i].Title < items[j].Title
	})
}
