// Package totp wraps the time-based one-time-password primitives used for
// authenticator-app enrollment and verification.
package totp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const secretSize = 20 // bytes of entropy behind the base32 secret

// Skew is the number of 30-second steps accepted on either side of the
// current one, tolerating client clock drift.
const Skew = 2

// Enrollment is everything the client needs to register an authenticator.
type Enrollment struct {
	Secret         string // base32, also the manual entry key
	URL            string // otpauth:// provisioning URI
	QRCodeDataURL  string // scannable PNG as a data: URL
	ManualEntryKey string
}

// Generate creates a fresh shared secret for the given account and renders
// its provisioning QR code.
func Generate(issuer, accountName string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		SecretSize:  secretSize,
	})
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}
	img, err := key.Image(200, 200)
	if err != nil {
		return nil, fmt.Errorf("render totp qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode totp qr code: %w", err)
	}
	return &Enrollment{
		Secret:         key.Secret(),
		URL:            key.URL(),
		QRCodeDataURL:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		ManualEntryKey: key.Secret(),
	}, nil
}

// Validate checks a 6-digit code against the secret at time t, accepting
// codes from the ±Skew window.
func Validate(passcode, secret string, t time.Time) bool {
	ok, err := totp.ValidateCustom(passcode, secret, t, totp.ValidateOpts{
		Period:    30,
		Skew:      Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// Code derives the 6-digit code for secret at time t. Test helper and the
// reference implementation for Validate.
func Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCode(secret, t)
}
