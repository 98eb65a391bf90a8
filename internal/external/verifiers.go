package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"nexora/internal/types"
)

// MercadoPagoVerifier validates Mercado Pago webhook signatures. The
// provider signs a manifest built from the notification id, the
// x-request-id header, and the ts value carried inside the x-signature
// header itself; there is no freshness window on ts.
type MercadoPagoVerifier struct{}

// Compile-time assertion that MercadoPagoVerifier satisfies WebhookVerifier.
var _ WebhookVerifier = (*MercadoPagoVerifier)(nil)

// NewMercadoPagoVerifier creates a new MercadoPagoVerifier.
func NewMercadoPagoVerifier() *MercadoPagoVerifier {
	return &MercadoPagoVerifier{}
}

// Verify checks a signature header of the form "ts=<ts>,v1=<hex digest>"
// against HMAC-SHA256 of "id:<id>;request-id:<rid>;ts:<ts>;" keyed with
// secret. A request without an x-request-id header is rejected outright,
// not via digest mismatch. Returns nil if valid.
func (v *MercadoPagoVerifier) Verify(notificationID, requestID, header, secret string) error {
	if requestID == "" {
		return types.NewAppError(types.ErrCodeAuthWebhookSig, "missing request id header", nil)
	}

	ts, signature, err := parseSignatureHeader(header)
	if err != nil {
		return types.NewAppError(types.ErrCodeAuthWebhookSig, "invalid signature header", err)
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", notificationID, requestID, ts)
	expected := computeHMAC(manifest, secret)

	if !safeCompareHex(signature, expected) {
		return types.NewAppError(types.ErrCodeAuthWebhookSig, "signature mismatch", nil)
	}

	return nil
}

// parseSignatureHeader extracts the ts and v1 values from a comma-separated
// list of key=value pairs.
func parseSignatureHeader(header string) (ts, v1 string, err error) {
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	if ts == "" || v1 == "" {
		return "", "", fmt.Errorf("signature header missing ts or v1 component")
	}
	return ts, v1, nil
}

// computeHMAC computes the hex-encoded HMAC-SHA256 of the manifest.
func computeHMAC(manifest, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

// safeCompareHex decodes both hex strings and compares the raw digests in
// constant time. Undecodable or length-mismatched inputs fail closed.
func safeCompareHex(a, b string) bool {
	rawA, errA := hex.DecodeString(a)
	rawB, errB := hex.DecodeString(b)
	if errA != nil || errB != nil {
		return false
	}
	if len(rawA) != len(rawB) {
		return false
	}
	return hmac.Equal(rawA, rawB)
}

// SecureTokenEqual compares two tokens in constant time. Used by the
// webhook token gate so a mismatched query token cannot be probed through
// timing differences.
func SecureTokenEqual(provided, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
