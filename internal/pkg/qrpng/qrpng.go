package qrpng

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultSize = 256
	MaxSize     = 1024
)

// Encode renders content as a PNG QR code of size×size pixels (medium ECC).
// Sizes outside 64..MaxSize use DefaultSize.
func Encode(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, fmt.Errorf("qr content must not be empty")
	}
	if size < 64 || size > MaxSize {
		size = DefaultSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
