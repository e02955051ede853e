package broker

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Kind names one verification input kind; it prefixes the fingerprint and
// selects the backend endpoint.
type Kind string

const (
	KindText  Kind = "text"
	KindURL   Kind = "url"
	KindImage Kind = "image"
)

// Fingerprint derives the cache/history key for a payload. The payload is
// normalized (trimmed, lower-cased) first, so casing and surrounding
// whitespace variants share one cache entry.
func Fingerprint(kind Kind, payload string) string {
	norm := strings.ToLower(strings.TrimSpace(payload))
	sum := sha256.Sum256([]byte(norm))
	return string(kind) + ":" + hex.EncodeToString(sum[:])
}

// MakePreview trims a payload to the history preview length on a rune
// boundary.
func MakePreview(payload string) string {
	p := strings.TrimSpace(payload)
	runes := []rune(p)
	if len(runes) <= PreviewLen {
		return p
	}
	return string(runes[:PreviewLen])
}
