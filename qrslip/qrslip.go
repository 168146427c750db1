/*
Package qrslip renders QR payment slips for checked-in guests.

PURPOSE:
  A checked-in guest gets a scannable slip: a QR code whose payload
  carries the guest id, display names, recorded amounts and payment
  method, plus an HMAC-SHA256 signature so a scanned slip can be checked
  against tampering without a database round trip.

USAGE:
  gen := qrslip.NewGenerator(secret)
  png, err := gen.Render(g)

  payload, err := gen.Decode(scannedText)  // verifies the signature

SEE ALSO:
  - guest/service.go: PaymentSlip wires this behind the service boundary
*/
package qrslip

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"

	"github.com/angkor/guestbook/guest"
)

// ErrBadSignature is returned when a scanned slip fails verification.
var ErrBadSignature = errors.New("qrslip: signature mismatch")

// Payload is the signed content of a slip.
type Payload struct {
	GuestID       string          `json:"guest_id"`
	EnglishName   string          `json:"english_name,omitempty"`
	KhmerName     string          `json:"khmer_name,omitempty"`
	AmountKHR     decimal.Decimal `json:"amount_khr"`
	AmountUSD     decimal.Decimal `json:"amount_usd"`
	PaymentMethod string          `json:"payment_method"`
	IssuedAt      time.Time       `json:"issued_at"`
}

// Generator signs and renders slips. The zero value is unusable; build
// one with NewGenerator.
type Generator struct {
	secret []byte
}

// NewGenerator derives the signing key from the configured secret.
func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret))
	return &Generator{secret: hashed[:]}
}

// Render produces a 256x256 PNG QR slip for the guest.
func (g *Generator) Render(gst *guest.Guest) ([]byte, error) {
	p := Payload{
		GuestID:   gst.GuestID,
		AmountKHR: gst.AmountKHR,
		AmountUSD: gst.AmountUSD,
		IssuedAt:  time.Now().UTC(),
	}
	if gst.EnglishName != nil {
		p.EnglishName = *gst.EnglishName
	}
	if gst.KhmerName != nil {
		p.KhmerName = *gst.KhmerName
	}
	if gst.PaymentMethod != nil {
		p.PaymentMethod = string(*gst.PaymentMethod)
	}

	text, err := g.encode(p)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(text, qrcode.Medium, 256)
}

// Encode serializes and signs a payload into the QR text form
// "<base64 json>.<base64 hmac>".
func (g *Generator) encode(p Payload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("qrslip: marshal payload: %w", err)
	}
	mac := hmac.New(sha256.New, g.secret)
	mac.Write(body)
	return base64.URLEncoding.EncodeToString(body) + "." +
		base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Decode parses scanned slip text and verifies its signature.
func (g *Generator) Decode(text string) (*Payload, error) {
	i := strings.IndexByte(text, '.')
	if i < 0 {
		return nil, ErrBadSignature
	}
	bodyB64, sigB64 := text[:i], text[i+1:]

	body, err := base64.URLEncoding.DecodeString(bodyB64)
	if err != nil {
		return nil, ErrBadSignature
	}
	sig, err := base64.URLEncoding.DecodeString(sigB64)
	if err != nil {
		return nil, ErrBadSignature
	}

	mac := hmac.New(sha256.New, g.secret)
	mac.Write(body)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, ErrBadSignature
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("qrslip: unmarshal payload: %w", err)
	}
	return &p, nil
}
