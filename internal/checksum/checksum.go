package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/starford/linkpage/internal/models"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Links digests an ordered link sequence: ids, orders and attributes.
// Two listings with no intervening mutation yield the same value.
func Links(links []models.Link) string {
	h := sha256.New()
	for _, l := range links {
		h.Write([]byte(l.ID))
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(l.Order)))
		h.Write([]byte{0})
		h.Write(l.Attributes)
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
