package upload

import "ingest-service/models"

// Strategy partitions ordered items into upload batches.
type Strategy interface {
	Partition(items []models.AssetItem) [][]models.AssetItem
	Name() string
}

// CountStrategy bounds every batch to a fixed number of items.
type CountStrategy struct {
	Size int
}

func (s CountStrategy) Name() string { return "count" }

func (s CountStrategy) Partition(items []models.AssetItem) [][]models.AssetItem {
	size := s.Size
	if size <= 0 {
		size = 1
	}
	batches := make([][]models.AssetItem, 0, (len(items)+size-1)/size)
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[i:end])
	}
	return batches
}

// SizeStrategy bounds every batch by its cumulative payload size. An item
// larger than MaxBytes forms a batch of its own.
type SizeStrategy struct {
	MaxBytes int64
}

func (s SizeStrategy) Name() string { return "size" }

func (s SizeStrategy) Partition(items []models.AssetItem) [][]models.AssetItem {
	var (
		batches [][]models.AssetItem
		current []models.AssetItem
		total   int64
	)
	for _, item := range items {
		if len(current) > 0 && total+item.Size() > s.MaxBytes {
			batches = append(batches, current)
			current, total = nil, 0
		}
		current = append(current, item)
		total += item.Size()
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
