package models

// AssetItem is a transferable image taken from a bundle.
type AssetItem struct {
	Name        string
	Data        []byte
	ContentType string
}

// Size returns the payload size in bytes.
func (a AssetItem) Size() int64 {
	return int64(len(a.Data))
}
