package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// IdentityKey derives a stable correlation key from the client IP and
// the coarse fingerprint fields. It deliberately approximates "same
// client": the same human across requests collapses to one key, two
// machines rarely collide. It is not a guaranteed identity — clients
// behind shared NAT can merge, and a client that changes networks
// splits.
func IdentityKey(ip string, fp Fingerprint) string {
	h := sha256.New()
	h.Write([]byte(strings.Join([]string{ip, fp.OSName, fp.BrowserName, fp.ClientApp}, "|")))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
