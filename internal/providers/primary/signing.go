package primary

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// defaultSigningSalt matches the home service's published derivation
// function; operators may override it via config.Providers.PrimaryHMACSalt
// if the service ever rotates it.
const defaultSigningSalt = "skaldleita-lm-2024"

// clientVersion is the version string embedded in signed requests and the
// User-Agent header. The server accepts signatures from the last
// acceptedVersionCount versions, so bumping this is safe ahead of a server
// rollout.
const clientVersion = "1.0"

// acceptedVersionCount and timestampTolerance mirror the server's own
// acceptance window (§6.2); the client only needs clientVersion and the
// current time, but both constants are kept here as documentation of the
// contract this signer must satisfy.
const (
	acceptedVersionCount = 5
	timestampToleranceSeconds = 300
)

// deriveSecret computes the per-version signing key: the first 32 hex
// characters of SHA256("<salt>:<version>").
func deriveSecret(salt, version string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", salt, version)))
	return hex.EncodeToString(sum[:])[:32]
}

// generateSignature computes X-LM-Signature: the first 32 hex characters of
// HMAC-SHA256(key=deriveSecret(salt, version), msg="<timestamp>:<version>").
func generateSignature(salt, version string, timestamp int64) string {
	secret := deriveSecret(salt, version)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d:%s", timestamp, version)))
	return hex.EncodeToString(mac.Sum(nil))[:32]
}
