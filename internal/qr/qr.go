package qr

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

const (
	DefaultSize = 256
	minSize     = 64
	maxSize     = 1024
)

// EncodeDestination renders a payment destination (bolt11 invoice,
// Liquid or Bitcoin address) as a PNG QR code. Size is clamped to a
// sane range; zero means DefaultSize.
func EncodeDestination(destination string, size int) ([]byte, error) {
	if destination == "" {
		return nil, fmt.Errorf("destination must be a non-empty string")
	}
	if size == 0 {
		size = DefaultSize
	}
	if size < minSize {
		size = minSize
	}
	if size > maxSize {
		size = maxSize
	}
	return qrcode.Encode(destination, qrcode.Medium, size)
}
