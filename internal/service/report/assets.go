package report

import (
	"encoding/base64"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const stylesheetFile = "report.css"

// Graphic asset stems; the extension on disk decides the mime type.
const (
	letterheadStem   = "letterhead"
	separatorTopStem = "separator-1"
	separatorEndStem = "separator-2"
	signatureStem    = "signature"
)

var assetMimeTypes = map[string]string{
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Assets is the fixed visual template of a report, inlined so the composed
// markup never references anything outside itself.
type Assets struct {
	Stylesheet      template.CSS
	Letterhead      template.URL
	SeparatorTop    template.URL
	SeparatorBottom template.URL
	Signature       template.URL
}

// LoadAssets reads the stylesheet and the four graphics from dir.
func LoadAssets(fs afero.Fs, dir string) (*Assets, error) {
	css, err := afero.ReadFile(fs, filepath.Join(dir, stylesheetFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read stylesheet: %w", err)
	}

	assets := &Assets{Stylesheet: template.CSS(css)}
	for stem, dst := range map[string]*template.URL{
		letterheadStem:   &assets.Letterhead,
		separatorTopStem: &assets.SeparatorTop,
		separatorEndStem: &assets.SeparatorBottom,
		signatureStem:    &assets.Signature,
	} {
		uri, err := loadGraphic(fs, dir, stem)
		if err != nil {
			return nil, err
		}
		*dst = uri
	}
	return assets, nil
}

func loadGraphic(fs afero.Fs, dir, stem string) (template.URL, error) {
	matches, err := afero.Glob(fs, filepath.Join(dir, stem+".*"))
	if err != nil {
		return "", fmt.Errorf("failed to look up %s: %w", stem, err)
	}
	for _, path := range matches {
		mime, ok := assetMimeTypes[strings.ToLower(filepath.Ext(path))]
		if !ok {
			continue
		}
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		return template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)), nil
	}
	return "", fmt.Errorf("asset %s not found in %s", stem, dir)
}
