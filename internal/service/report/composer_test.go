package report

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/pathology-report-api/internal/model"
)

func memAssets(t *testing.T) (afero.Fs, string) {
	t.Helper()
	fs := afero.NewMemMapFs()
	dir := "/assets"
	files := map[string]string{
		"report.css":      "body { color: #111; }",
		"letterhead.svg":  `<svg xmlns="http://www.w3.org/2000/svg"/>`,
		"separator-1.svg": `<svg xmlns="http://www.w3.org/2000/svg"/>`,
		"separator-2.png": "png-bytes",
		"signature.svg":   `<svg xmlns="http://www.w3.org/2000/svg"/>`,
	}
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fs, dir+"/"+name, []byte(body), 0o644))
	}
	return fs, dir
}

func newTestComposer(t *testing.T) *Composer {
	t.Helper()
	fs, dir := memAssets(t)
	assets, err := LoadAssets(fs, dir)
	require.NoError(t, err)
	clock := func() time.Time { return time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC) }
	return NewComposer(assets, WithClock(clock))
}

func strPtr(s string) *string { return &s }

func TestLoadAssets(t *testing.T) {
	fs, dir := memAssets(t)

	assets, err := LoadAssets(fs, dir)
	require.NoError(t, err)
	assert.Equal(t, "body { color: #111; }", string(assets.Stylesheet))
	assert.True(t, strings.HasPrefix(string(assets.Letterhead), "data:image/svg+xml;base64,"))
	assert.True(t, strings.HasPrefix(string(assets.SeparatorBottom), "data:image/png;base64,"))
}

func TestLoadAssets_Missing(t *testing.T) {
	fs, dir := memAssets(t)
	require.NoError(t, fs.Remove(dir+"/signature.svg"))

	_, err := LoadAssets(fs, dir)
	assert.ErrorContains(t, err, "signature")
}

func TestCompose_MinimalRecord(t *testing.T) {
	c := newTestComposer(t)
	p := &model.Patient{
		AttentionCode: "A-100",
		LastName:      "PEREZ",
		FirstName:     "JUAN",
		Diagnosis:     strPtr(""),
	}

	html, err := c.Compose(p, "", "")
	require.NoError(t, err)

	assert.Contains(t, html, "PEREZ JUAN")
	assert.Contains(t, html, `<div class="section-body" id="diagnosis"></div>`)
	assert.NotContains(t, html, `class="gallery"`)
	assert.Contains(t, html, "05/03/2024")
}

func TestCompose_NoAbsentMarkers(t *testing.T) {
	c := newTestComposer(t)

	html, err := c.Compose(&model.Patient{AttentionCode: "B-7"}, "", "")
	require.NoError(t, err)

	for _, marker := range []string{"undefined", "null", "<nil>", "<no value>", "ZgotmplZ"} {
		assert.NotContains(t, html, marker)
	}
	assert.Contains(t, html, `<div class="section-body" id="macro-description"></div>`)
	assert.Contains(t, html, `<div class="section-body" id="micro-description"></div>`)
}

func TestCompose_Gallery(t *testing.T) {
	c := newTestComposer(t)
	photo := "data:image/jpeg;base64,AAAA"

	html, err := c.Compose(&model.Patient{AttentionCode: "C-1"}, "", photo)
	require.NoError(t, err)

	assert.Contains(t, html, `class="gallery"`)
	assert.Contains(t, html, `src="`+photo+`"`)
	assert.Equal(t, 1, strings.Count(html, photo))
}

func TestCompose_SelfContained(t *testing.T) {
	c := newTestComposer(t)

	html, err := c.Compose(&model.Patient{AttentionCode: "D-2"}, "https://cdn.example.com/x.jpg", "")
	require.NoError(t, err)

	assert.NotContains(t, html, "https://cdn.example.com")
	assert.NotContains(t, html, `class="gallery"`)
	assert.NotContains(t, html, `<link`)
}

func TestCompose_EscapesFields(t *testing.T) {
	c := newTestComposer(t)
	p := &model.Patient{AttentionCode: "E-3", LastName: "<script>", Diagnosis: strPtr("a & b")}

	html, err := c.Compose(p, "", "")
	require.NoError(t, err)

	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "a &amp; b")
}
