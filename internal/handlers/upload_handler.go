package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/01moynul/snaplist/internal/ai"
	"github.com/gabriel-vasile/mimetype"
)

var (
	errImageTooLarge   = errors.New("image too large")
	errUnsupportedType = errors.New("unsupported image type")
)

// readImages loads uploaded files in order. The content type is sniffed from
// the bytes, not trusted from the client. Empty files are passed through so
// the generation service can reject them.
func readImages(files []*multipart.FileHeader, maxBytes int64) ([]ai.Image, error) {
	images := make([]ai.Image, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxBytes {
			return nil, fmt.Errorf("%w: %q exceeds %d bytes", errImageTooLarge, fh.Filename, maxBytes)
		}

		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", fh.Filename, err)
		}
		if int64(len(data)) > maxBytes {
			return nil, fmt.Errorf("%w: %q exceeds %d bytes", errImageTooLarge, fh.Filename, maxBytes)
		}

		img := ai.Image{Data: data}
		if len(data) > 0 {
			mtype := mimetype.Detect(data)
			if !strings.HasPrefix(mtype.String(), "image/") {
				return nil, fmt.Errorf("%w: %q is %s", errUnsupportedType, fh.Filename, mtype.String())
			}
			img.MIMEType = mtype.String()
		}
		images = append(images, img)
	}
	return images, nil
}
