// Package webhook posts notifications as signed JSON to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"seatwatch/internal/transport"
)

// SignatureHeader carries "sha256=<hex hmac of body>" when a secret is set.
const SignatureHeader = "X-Seatwatch-Signature"

type Config struct {
	URL    string
	Secret string
	// Headers are added to every request (e.g. an Authorization token).
	Headers map[string]string
}

type Sender struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config, httpClient *http.Client) (*Sender, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("webhook url is empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Sender{cfg: cfg, http: httpClient}, nil
}

func (s *Sender) Name() string { return "webhook" }

func (s *Sender) Send(ctx context.Context, m transport.Message) error {
	body, err := json.Marshal(m.Payload())
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	if s.cfg.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign([]byte(s.cfg.Secret), body))
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
