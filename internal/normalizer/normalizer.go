// Package normalizer canonicalizes submitted content and derives stable
// dedup fingerprints. Normalization is purely lexical: no network access,
// no content fetch.
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/GSharvesh/Hac-KP/pkg/errors"
	"github.com/GSharvesh/Hac-KP/pkg/models"
)

// Hex digest lengths accepted for HASH submissions (md5, sha1, sha256).
var hashDigestLengths = map[int]string{
	32: "md5",
	40: "sha1",
	64: "sha256",
}

// Tracking query parameters stripped from URLs before fingerprinting.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"msclkid": true,
	"mc_eid":  true,
	"igshid":  true,
	"ref":     true,
	"ref_src": true,
}

// Result holds the canonical form of a submission and its fingerprint.
type Result struct {
	NormalizedContent string
	DedupHash         string
}

// Normalize canonicalizes raw content for the declared kind and derives the
// dedup hash. It returns a ValidationError when the content does not match
// the kind's lexical pattern.
func Normalize(kind models.SubmissionKind, content string) (*Result, error) {
	var normalized string
	var err error

	switch kind {
	case models.KindURL:
		normalized, err = normalizeURL(content)
	case models.KindHash:
		normalized, err = normalizeHash(content)
	default:
		return nil, errors.NewValidationError("kind", "unknown submission kind: "+string(kind))
	}
	if err != nil {
		return nil, err
	}

	return &Result{
		NormalizedContent: normalized,
		DedupHash:         Fingerprint(kind, normalized),
	}, nil
}

// Fingerprint derives the dedup hash for already-normalized content. The
// kind is mixed into the digest so a URL and a HASH submission with equal
// text never collide.
func Fingerprint(kind models.SubmissionKind, normalized string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.NewValidationError("content", "URL is empty")
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", errors.NewValidationError("content", "URL is not parseable: "+err.Error())
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", errors.NewValidationError("content", "URL scheme must be http or https")
	}
	if u.Host == "" {
		return "", errors.NewValidationError("content", "URL has no host")
	}

	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)

	// Strip default ports.
	switch {
	case scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	// Path stays case-sensitive; only the trailing slash is dropped.
	u.Path = strings.TrimSuffix(u.Path, "/")

	if u.RawQuery != "" {
		q := u.Query()
		for param := range q {
			if trackingParams[param] || strings.HasPrefix(param, "utm_") {
				q.Del(param)
			}
		}
		// Encode sorts keys, so parameter order never affects the hash.
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

func normalizeHash(raw string) (string, error) {
	normalized := strings.ToLower(strings.Join(strings.Fields(raw), ""))
	if normalized == "" {
		return "", errors.NewValidationError("content", "hash is empty")
	}

	if _, ok := hashDigestLengths[len(normalized)]; !ok {
		return "", errors.NewValidationError("content", "hash length does not match a supported hex digest")
	}
	for _, c := range normalized {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", errors.NewValidationError("content", "hash contains non-hex characters")
		}
	}

	return normalized, nil
}
