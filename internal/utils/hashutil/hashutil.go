package hashutil

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

func Blake3Hash(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ShortHash returns the first n hex characters of the blake3 digest.
func ShortHash(s string, n int) string {
	h := Blake3Hash([]byte(s))
	if n <= 0 || n > len(h) {
		return h
	}
	return h[:n]
}
