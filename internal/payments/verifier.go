package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrSecretMissing is returned when the verifier has no shared secret.
var ErrSecretMissing = errors.New("payment gateway secret is not configured")

// Confirmation is the triple the gateway's checkout widget hands back on success.
type Confirmation struct {
	OrderID   string
	PaymentID string
	Signature string
}

// Complete reports whether all three values are present.
func (c Confirmation) Complete() bool {
	return strings.TrimSpace(c.OrderID) != "" &&
		strings.TrimSpace(c.PaymentID) != "" &&
		strings.TrimSpace(c.Signature) != ""
}

// Verifier checks payment confirmations against the gateway's shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify returns true only when the signature is byte-for-byte the lowercase
// hex HMAC-SHA256 of "order_id|payment_id". A missing secret is reported as an error and never
// verifies.
func (v *Verifier) Verify(c Confirmation) (bool, error) {
	if v == nil || len(v.secret) == 0 {
		return false, ErrSecretMissing
	}
	if !c.Complete() {
		return false, nil
	}
	expected := hex.EncodeToString(sign(v.secret, c.OrderID, c.PaymentID))
	return hmac.Equal([]byte(expected), []byte(c.Signature)), nil
}

// Sign produces the signature the gateway would issue for the pair.
func Sign(secret, orderID, paymentID string) string {
	return hex.EncodeToString(sign([]byte(secret), orderID, paymentID))
}

func sign(secret []byte, orderID, paymentID string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return mac.Sum(nil)
}
