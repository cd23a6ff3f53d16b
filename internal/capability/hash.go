package capability

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainKey separates key digests from any other SHA-256 use.
const DomainKey = "consent/key/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// KeyDigest returns a fixed-length identifier for a canonical key.
// The journal indexes events by digest so long keys stay cheap to compare.
func KeyDigest(key string) string {
	return hashWithDomain(DomainKey, []byte(key))
}
