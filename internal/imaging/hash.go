package imaging

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// HashBytes returns the 16-hex-character content hash used to identify
// image variants. Distinct bytes (including re-renders of the same prompt)
// get distinct hashes.
func HashBytes(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
