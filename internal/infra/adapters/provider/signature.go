// File: internal/infra/adapters/provider/signature.go
package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Le-Sourcier/servcraft-sub004/internal/domain"
)

// DefaultTolerance is the webhook timestamp acceptance window applied when a
// gateway is constructed without an explicit one.
const DefaultTolerance = 5 * time.Minute

func computeHMAC(secret []byte, msg []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write(msg)
	return hex.EncodeToString(h.Sum(nil))
}

// signatureEqual compares hex signatures in constant time.
func signatureEqual(expected, got string) bool {
	return hmac.Equal([]byte(expected), []byte(got))
}

func checkTimestamp(unix int64, tolerance time.Duration, now time.Time) error {
	ts := time.Unix(unix, 0)
	if ts.Before(now.Add(-tolerance)) || ts.After(now.Add(tolerance)) {
		return domain.ErrSignatureInvalid
	}
	return nil
}

// verifyVersionedSignature handles the "t=<unix>,v1=<hex>" header scheme
// where the signed message is "<t>.<body>". Used by the card gateway.
func verifyVersionedSignature(secret []byte, payload []byte, header string, tolerance time.Duration, now time.Time) error {
	var tsPart, sigPart string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			tsPart = v
		case "v1":
			sigPart = v
		}
	}
	if tsPart == "" || sigPart == "" {
		return domain.ErrSignatureInvalid
	}
	unix, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return domain.ErrSignatureInvalid
	}
	if err := checkTimestamp(unix, tolerance, now); err != nil {
		return err
	}
	expected := computeHMAC(secret, []byte(fmt.Sprintf("%s.%s", tsPart, payload)))
	if !signatureEqual(expected, sigPart) {
		return domain.ErrSignatureInvalid
	}
	return nil
}

// verifyTimestampedSignature handles the "<unix>:<hex>" header scheme where
// the signed message is "<unix>.<body>". Used by the wallet and mobile-money
// gateways.
func verifyTimestampedSignature(secret []byte, payload []byte, header string, tolerance time.Duration, now time.Time) error {
	tsPart, sigPart, ok := strings.Cut(header, ":")
	if !ok {
		return domain.ErrSignatureInvalid
	}
	unix, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return domain.ErrSignatureInvalid
	}
	if err := checkTimestamp(unix, tolerance, now); err != nil {
		return err
	}
	expected := computeHMAC(secret, []byte(fmt.Sprintf("%s.%s", tsPart, payload)))
	if !signatureEqual(expected, sigPart) {
		return domain.ErrSignatureInvalid
	}
	return nil
}

// SignVersioned produces a header in the card gateway's scheme. Exposed for
// tests and for the sandbox event replayer.
func SignVersioned(secret []byte, payload []byte, now time.Time) string {
	ts := strconv.FormatInt(now.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", ts, computeHMAC(secret, []byte(ts+"."+string(payload))))
}

// SignTimestamped produces a header in the wallet/mobile-money scheme.
func SignTimestamped(secret []byte, payload []byte, now time.Time) string {
	ts := strconv.FormatInt(now.Unix(), 10)
	return fmt.Sprintf("%s:%s", ts, computeHMAC(secret, []byte(ts+"."+string(payload))))
}
