package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	imgx "github.com/disintegration/imaging"
)

// Tone policy applied to every report photo.
const (
	Gamma           = 1.2
	SaturationBoost = 20.0
	JPEGQuality     = 90
)

const dataImagePrefix = "data:image/"

// ErrDecode is returned when an embedded photo is not decodable raster data.
var ErrDecode = errors.New("image decode failed")

// ImageCodec isolates the pixel work from the data URI handling.
type ImageCodec interface {
	Decode(data []byte) (image.Image, error)
	ApplyToneCurve(img image.Image) image.Image
	// Encode returns the encoded bytes and their mime type.
	Encode(img image.Image) ([]byte, string, error)
}

type codec struct {
	gamma      float64
	saturation float64
	quality    int
}

// NewCodec returns the production codec backed by disintegration/imaging.
func NewCodec() ImageCodec {
	return &codec{gamma: Gamma, saturation: SaturationBoost, quality: JPEGQuality}
}

func (c *codec) Decode(data []byte) (image.Image, error) {
	return imgx.Decode(bytes.NewReader(data), imgx.AutoOrientation(true))
}

func (c *codec) ApplyToneCurve(img image.Image) image.Image {
	return imgx.AdjustSaturation(imgx.AdjustGamma(img, c.gamma), c.saturation)
}

func (c *codec) Encode(img image.Image) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := imgx.Encode(&buf, img, imgx.JPEG, imgx.JPEGQuality(c.quality)); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "image/jpeg", nil
}

// Normalizer decodes uploaded photos and re-encodes them for embedding.
type Normalizer struct {
	codec ImageCodec
}

func NewNormalizer(codec ImageCodec) *Normalizer {
	if codec == nil {
		codec = NewCodec()
	}
	return &Normalizer{codec: codec}
}

// Normalize re-encodes an inline image with the tone policy applied.
// Anything that is not a data:image URI is returned unchanged.
func (n *Normalizer) Normalize(ctx context.Context, encoded string) (string, error) {
	if !strings.HasPrefix(encoded, dataImagePrefix) {
		return encoded, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	raw, err := decodeDataURI(encoded)
	if err != nil {
		return "", err
	}

	img, err := n.codec.Decode(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	out, mime, err := n.codec.Encode(n.codec.ApplyToneCurve(img))
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(out), nil
}

func decodeDataURI(uri string) ([]byte, error) {
	header, payload, ok := strings.Cut(uri, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("%w: not a base64 data uri", ErrDecode)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}
	return raw, nil
}
