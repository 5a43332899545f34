package conversation

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/nextlevelbuilder/attache/internal/providers"
)

const (
	// maxImageDim bounds the longer side before the base64 round-trip;
	// vision models gain nothing from Telegram's full-size photos.
	maxImageDim  = 1280
	imageQuality = 80
)

// EncodeImage downscales and re-encodes a raw photo into the base64 JPEG
// form the vision call expects.
func EncodeImage(raw []byte) (providers.ImageContent, error) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return providers.ImageContent{}, fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() > maxImageDim || bounds.Dy() > maxImageDim {
		img = imaging.Fit(img, maxImageDim, maxImageDim, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(imageQuality)); err != nil {
		return providers.ImageContent{}, fmt.Errorf("encode image: %w", err)
	}
	return providers.ImageContent{
		MimeType: "image/jpeg",
		Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}
