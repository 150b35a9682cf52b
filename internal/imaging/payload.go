package imaging

import (
	"encoding/base64"
	"os"

	"github.com/pixsort/pixsort-go/internal/errors"
)

// Payload is the binary-safe transfer encoding for images at the service
// boundary: base64 data tagged with a MIME type.
type Payload struct {
	ImageFile string `json:"image_file"`
	ImageData string `json:"image_data"`
	MimeType  string `json:"mime_type"`
}

// NewPayloadFromFile reads an image file and wraps it for transfer.
func NewPayloadFromFile(path, name string) (*Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("imaging").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	return &Payload{
		ImageFile: name,
		ImageData: base64.StdEncoding.EncodeToString(data),
		MimeType:  MIMEForFile(name),
	}, nil
}

// Bytes decodes the base64 payload back into raw image bytes.
func (p *Payload) Bytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(p.ImageData)
	if err != nil {
		return nil, errors.New(err).
			Component("imaging").
			Category(errors.CategoryValidation).
			Context("image_file", p.ImageFile).
			Build()
	}
	return data, nil
}
