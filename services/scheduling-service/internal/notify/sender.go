package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Sender interface {
	Send(ctx context.Context, to string, body string) error
	ProviderID() string
}

// EvolutionSender delivers WhatsApp text messages through an Evolution API instance.
type EvolutionSender struct {
	baseURL  string
	apiKey   string
	instance string
	http     *http.Client
}

func NewEvolutionSender(baseURL, apiKey, instance string) *EvolutionSender {
	return &EvolutionSender{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:   strings.TrimSpace(apiKey),
		instance: strings.TrimSpace(instance),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *EvolutionSender) ProviderID() string {
	return "evolution"
}

func (s *EvolutionSender) Send(ctx context.Context, to string, body string) error {
	if s.baseURL == "" || s.instance == "" {
		return errors.New("evolution api url or instance not configured")
	}
	number := NormalizePhone(to)
	if number == "" {
		return fmt.Errorf("invalid recipient number %q", to)
	}
	raw, err := json.Marshal(map[string]string{
		"number": number,
		"text":   body,
	})
	if err != nil {
		return err
	}
	url := s.baseURL + "/message/sendText/" + s.instance
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("evolution api returned %d", resp.StatusCode)
	}
	return nil
}

// NormalizePhone keeps digits only; Evolution expects the bare international number.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) ProviderID() string {
	return "noop"
}

func (s *NoopSender) Send(_ context.Context, _ string, _ string) error {
	return nil
}
