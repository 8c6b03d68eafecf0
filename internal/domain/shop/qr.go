package shop

import (
	"strings"

	"github.com/xenking/ezyeats/internal/domain/apperr"
)

// DefaultQRPrefix is the application prefix printed on shop QR codes.
const DefaultQRPrefix = "ezyeats-shop"

// ParsePayload extracts the shop id from a QR payload of the form
// "<prefix>:<shopID>".
func ParsePayload(payload, prefix string) (string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(payload), prefix+":")
	if !ok {
		return "", apperr.Invalid("payload", "not a shop QR code")
	}
	if rest == "" {
		return "", apperr.Invalid("payload", "missing shop id")
	}
	return rest, nil
}
