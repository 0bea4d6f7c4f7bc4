package storage

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

const (
	// MaxImageBytes caps shared-post uploads.
	MaxImageBytes = 10 << 20
	maxImageWidth = 1080
)

var ErrUnsupportedImage = errors.New("unsupported image type")

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/gif"}

// PreparedImage is an upload-ready JPEG.
type PreparedImage struct {
	Body        []byte
	ContentType string
	Ext         string
}

// PrepareImage sniffs the payload, fixes orientation, caps the width and re-encodes as JPEG.
func PrepareImage(data []byte) (PreparedImage, error) {
	if len(data) == 0 || len(data) > MaxImageBytes {
		return PreparedImage{}, ErrUnsupportedImage
	}
	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedImageTypes...) {
		return PreparedImage{}, fmt.Errorf("%w: %s", ErrUnsupportedImage, mtype.String())
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return PreparedImage{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if img.Bounds().Dx() > maxImageWidth {
		img = imaging.Resize(img, maxImageWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return PreparedImage{}, err
	}
	return PreparedImage{Body: buf.Bytes(), ContentType: "image/jpeg", Ext: ".jpg"}, nil
}
