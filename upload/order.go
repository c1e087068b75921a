package upload

import (
	"sort"

	"ingest-service/models"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortAssets orders items by name with numeric-aware collation so img_2
// sorts before img_10. The order is stable and deterministic.
func SortAssets(items []models.AssetItem) {
	c := collate.New(language.Und, collate.Numeric)
	sort.SliceStable(items, func(i, j int) bool {
		if r := c.CompareString(items[i].Name, items[j].Name); r != 0 {
			return r < 0
		}
		return items[i].Name < items[j].Name
	})
}
