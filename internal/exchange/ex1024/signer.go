package ex1024

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Signer adds the HMAC-SHA256 headers 1024ex expects:
// X-SIGNATURE = hex(HMAC(secret, timestamp + METHOD + path + body))
type Signer struct {
	apiKey     string
	secretKey  string
	recvWindow int
	now        func() time.Time
}

// NewSigner creates a signer. recvWindow is in milliseconds.
func NewSigner(apiKey, secretKey string, recvWindow int) *Signer {
	if recvWindow <= 0 {
		recvWindow = 5000
	}
	return &Signer{
		apiKey:     apiKey,
		secretKey:  secretKey,
		recvWindow: recvWindow,
		now:        time.Now,
	}
}

// Sign returns the hex signature of one request
func (s *Signer) Sign(timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(timestamp + method + path + body))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignRequest implements pkg/http.Signer. The query string is not signed.
func (s *Signer) SignRequest(req *http.Request) error {
	var body string
	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err != nil {
			return fmt.Errorf("failed to read body for signing: %w", err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("failed to read body for signing: %w", err)
		}
		body = string(b)
	}

	timestamp := strconv.FormatInt(s.now().UnixMilli(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-EXCHANGE-API-KEY", s.apiKey)
	req.Header.Set("X-SIGNATURE", s.Sign(timestamp, req.Method, req.URL.Path, body))
	req.Header.Set("X-TIMESTAMP", timestamp)
	req.Header.Set("X-RECV-WINDOW", strconv.Itoa(s.recvWindow))
	return nil
}
