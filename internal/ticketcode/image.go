package ticketcode

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultImageSize is the edge length in pixels of rendered QR images.
const DefaultImageSize = 256

// RenderPNG draws payload as a QR code PNG of size x size pixels using
// medium error correction.
func RenderPNG(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultImageSize
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}
