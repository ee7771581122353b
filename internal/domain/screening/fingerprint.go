package screening

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint returns a stable digest of the request identity used for
// duplicate detection within the dedupe window. Field order in
// ScreeningData must not affect the digest, so keys are sorted before
// hashing.
func (r ScreeningRequest) Fingerprint() string {
	keys := make([]string, 0, len(r.ScreeningData))
	for k := range r.ScreeningData {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(r.EntityID)
	b.WriteByte('|')
	b.WriteString(string(r.EntityType))
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(r.ScreeningData[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
