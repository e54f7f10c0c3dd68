package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Adapter knows one provider's payload schema and signing scheme.
type Adapter interface {
	Name() string
	// Validate checks required fields. It must not look at signatures.
	Validate(payload map[string]interface{}) error
	// Verify checks the signature over the raw body.
	Verify(body []byte, headers http.Header, secret string) error
	// Timestamp returns when the provider says the event happened.
	Timestamp(payload map[string]interface{}, headers http.Header) (time.Time, bool)
	Extract(payload map[string]interface{}) ExtractedData
}

func sign(secret string, parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	for _, p := range parts {
		_, _ = mac.Write(p)
	}
	return mac.Sum(nil)
}

// verifyHex compares a hex signature in constant time.
func verifyHex(signature string, expected []byte) error {
	decoded, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("%w: decode hex: %v", ErrBadSignature, err)
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return ErrBadSignature
	}
	return nil
}

func requireFields(payload map[string]interface{}, fields ...string) error {
	var missing []string
	for _, f := range fields {
		if str(payload, f) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

func str(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func obj(m map[string]interface{}, key string) map[string]interface{} {
	v, _ := m[key].(map[string]interface{})
	return v
}

// parseTime accepts unix seconds, unix milliseconds, RFC3339 and plain dates.
func parseTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case float64:
		return fromUnix(int64(t)), t > 0
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return time.Time{}, false
		}
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return fromUnix(n), n > 0
		}
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UTC(), true
		}
		if parsed, err := time.Parse("2006-01-02", t); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

func fromUnix(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func timePtr(v interface{}) *time.Time {
	if t, ok := parseTime(v); ok {
		return &t
	}
	return nil
}
