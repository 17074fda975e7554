package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingSecret    = errors.New("webhook secret not configured")
	ErrMissingSignature = errors.New("missing signature header")
	ErrInvalidSignature = errors.New("invalid signature")
)

// VerifyWebhookSignature checks the provider's signature header against the
// raw payload. Header format: "t=<unix>,v1=<hex hmac-sha256>", where the
// signed string is "<unix>.<payload>". Timestamps outside the tolerance
// window are rejected to cut replay room.
func VerifyWebhookSignature(secret string, payload []byte, header string, now time.Time, tolerance time.Duration) error {
	if secret == "" {
		return ErrMissingSecret
	}
	if header == "" {
		return ErrMissingSignature
	}

	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			ts = parsed
		case "v1":
			sig = v
		}
	}

	if ts == 0 || sig == "" {
		return fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > tolerance || age < -tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := computeSignature(secret, payload, ts)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignWebhookPayload produces a signature header for the given payload and
// timestamp, in the same format VerifyWebhookSignature expects
func SignWebhookPayload(secret string, payload []byte, t time.Time) string {
	ts := t.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, computeSignature(secret, payload, ts))
}

func computeSignature(secret string, payload []byte, ts int64) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", ts)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
