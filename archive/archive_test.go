package archive

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func buildZip(t *testing.T, files map[string][]byte, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range order {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExtract_ReturnsEntriesInOrder(t *testing.T) {
	data := buildZip(t, map[string][]byte{
		"viewer.html": []byte("var uCount = 36;"),
		"img_0.png":   pngHeader,
	}, []string{"viewer.html", "img_0.png"})

	ex := NewExtractor(0)
	require.NoError(t, ex.Validate(data))

	bundle, err := ex.Extract(data)
	require.NoError(t, err)
	require.Len(t, bundle.Entries, 2)
	assert.Equal(t, "viewer.html", bundle.Entries[0].Name)
	assert.Equal(t, "img_0.png", bundle.Entries[1].Name)
	assert.Equal(t, pngHeader, bundle.Entries[1].Data)
}

func TestValidate_RejectsGarbage(t *testing.T) {
	ex := NewExtractor(0)

	err := ex.Validate([]byte("definitely not a zip"))
	assert.ErrorIs(t, err, ErrCorruptArchive)

	err = ex.Validate(nil)
	assert.ErrorIs(t, err, ErrCorruptArchive)

	_, err = ex.Extract([]byte("PK\x03\x04 truncated"))
	assert.ErrorIs(t, err, ErrCorruptArchive)
}

func TestValidate_RejectsCorruptPayload(t *testing.T) {
	payload := []byte("var uCount = 36; var vCount = 5;")
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.CreateHeader(&zip.FileHeader{Name: "viewer.html", Method: zip.Store})
	require.NoError(t, err)
	_, err = f.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data := buf.Bytes()
	idx := bytes.Index(data, payload)
	require.GreaterOrEqual(t, idx, 0)
	data[idx+4] ^= 0xff

	ex := NewExtractor(0)
	err = ex.Validate(data)
	assert.ErrorIs(t, err, ErrCorruptArchive)
	assert.Contains(t, err.Error(), "viewer.html")
}

func TestExtract_EnforcesSizeLimit(t *testing.T) {
	data := buildZip(t, map[string][]byte{
		"a.png": bytes.Repeat([]byte{1}, 64),
		"b.png": bytes.Repeat([]byte{2}, 64),
	}, []string{"a.png", "b.png"})

	ex := NewExtractor(100)
	assert.ErrorIs(t, ex.Validate(data), ErrArchiveTooLarge)
	_, err := ex.Extract(data)
	assert.ErrorIs(t, err, ErrArchiveTooLarge)
}

func TestClassify_SplitsConfigurationAndAssets(t *testing.T) {
	bundle := &Bundle{Entries: []Entry{
		{Name: "instructions.html", Data: []byte("help")},
		{Name: "export/viewer.html", Data: []byte("var vCount = 5;")},
		{Name: "export/img_1.png", Data: pngHeader},
		{Name: "export/img_0.jpg", Data: []byte("jpeg-ish")},
		{Name: "export/GoFixedSizeIcon.png", Data: pngHeader},
		{Name: "export/ks_logo.png", Data: pngHeader},
		{Name: "export/80X80.png", Data: pngHeader},
		{Name: "export/readme.txt", Data: []byte("x")},
		{Name: "__MACOSX/export/._img_1.png", Data: []byte("fork")},
	}}

	c, err := Classify(bundle, DefaultClassifierConfig())
	require.NoError(t, err)

	assert.Equal(t, "export/viewer.html", c.ConfigName)
	assert.Equal(t, "var vCount = 5;", c.ConfigText)
	require.Len(t, c.Assets, 2)
	assert.Equal(t, "img_1.png", c.Assets[0].Name)
	assert.Equal(t, "image/png", c.Assets[0].ContentType)
	assert.Equal(t, "img_0.jpg", c.Assets[1].Name)
	assert.Equal(t, "image/jpeg", c.Assets[1].ContentType)
	assert.Equal(t, int64(len(pngHeader)+len("jpeg-ish")), c.TotalBytes())
}

func TestClassify_MissingConfiguration(t *testing.T) {
	bundle := &Bundle{Entries: []Entry{
		{Name: "instructions.html", Data: []byte("help")},
		{Name: "img_0.png", Data: pngHeader},
	}}

	_, err := Classify(bundle, DefaultClassifierConfig())
	assert.ErrorIs(t, err, ErrMissingConfiguration)
}

func TestClassify_FirstConfigurationWins(t *testing.T) {
	bundle := &Bundle{Entries: []Entry{
		{Name: "a.html", Data: []byte("first")},
		{Name: "b.html", Data: []byte("second")},
	}}

	c, err := Classify(bundle, DefaultClassifierConfig())
	require.NoError(t, err)
	assert.Equal(t, "first", c.ConfigText)
	assert.Empty(t, c.Assets)
}
