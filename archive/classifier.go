package archive

import (
	"errors"
	"path"
	"strings"

	"ingest-service/models"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// ErrMissingConfiguration is returned when a bundle carries no configuration
// document.
var ErrMissingConfiguration = errors.New("no configuration document found in bundle")

// DefaultExcludedPrefixes lists auxiliary files shipped next to the frames
// that are never uploaded.
var DefaultExcludedPrefixes = []string{
	"instructions",
	"GoFixedSizeIcon",
	"GoFullScreenIcon",
	"80X80",
	"ks_logo",
}

// DefaultImageTypes maps accepted asset extensions to their content type.
var DefaultImageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// ClassifierConfig controls how entries are sorted.
type ClassifierConfig struct {
	ConfigExtension  string
	ReservedPrefix   string
	ExcludedPrefixes []string
	ImageTypes       map[string]string
}

// DefaultClassifierConfig returns the layout produced by the viewer exporter.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		ConfigExtension:  ".html",
		ReservedPrefix:   "instructions",
		ExcludedPrefixes: DefaultExcludedPrefixes,
		ImageTypes:       DefaultImageTypes,
	}
}

// Classification is the result of sorting a bundle.
type Classification struct {
	ConfigName string
	ConfigText string
	Assets     []models.AssetItem
}

// TotalBytes sums the payload sizes of all assets.
func (c *Classification) TotalBytes() int64 {
	var total int64
	for _, a := range c.Assets {
		total += a.Size()
	}
	return total
}

// Classify locates the configuration document and collects every accepted
// image. When several documents qualify the first one in enumeration order
// is used. No assets is not an error here.
func Classify(b *Bundle, cfg ClassifierConfig) (*Classification, error) {
	if cfg.ImageTypes == nil {
		cfg.ImageTypes = DefaultImageTypes
	}

	out := &Classification{}
	found := false
	seen := make(map[string]bool)

	for _, e := range b.Entries {
		if isMetadataEntry(e.Name) {
			continue
		}
		base := path.Base(e.Name)
		lower := strings.ToLower(base)

		if isConfigDocument(lower, cfg) {
			if found {
				zap.L().Warn("Multiple configuration documents in bundle, keeping first",
					zap.String("kept", out.ConfigName),
					zap.String("ignored", e.Name),
				)
				continue
			}
			out.ConfigName = e.Name
			out.ConfigText = string(e.Data)
			found = true
			continue
		}

		declared, ok := cfg.ImageTypes[path.Ext(lower)]
		if !ok || hasExcludedPrefix(lower, cfg.ExcludedPrefixes) {
			continue
		}
		if seen[base] {
			zap.L().Warn("Duplicate asset name in bundle, keeping first", zap.String("asset", base))
			continue
		}
		seen[base] = true

		out.Assets = append(out.Assets, models.AssetItem{
			Name:        base,
			Data:        e.Data,
			ContentType: inferContentType(e.Data, declared),
		})
	}

	if !found {
		return nil, ErrMissingConfiguration
	}
	return out, nil
}

func isConfigDocument(lowerBase string, cfg ClassifierConfig) bool {
	ext := strings.ToLower(cfg.ConfigExtension)
	if ext == "" || !strings.HasSuffix(lowerBase, ext) {
		return false
	}
	if cfg.ReservedPrefix != "" && strings.HasPrefix(lowerBase, strings.ToLower(cfg.ReservedPrefix)) {
		return false
	}
	return true
}

func hasExcludedPrefix(lowerBase string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(lowerBase, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// isMetadataEntry reports archiver side files such as __MACOSX/ forks.
func isMetadataEntry(name string) bool {
	return strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), "._")
}

// inferContentType trusts the payload signature when it is an image and
// falls back to the extension mapping otherwise.
func inferContentType(data []byte, declared string) string {
	detected := mimetype.Detect(data)
	if strings.HasPrefix(detected.String(), "image/") {
		return detected.String()
	}
	return declared
}
