// Package libre implements translation.Provider against a
// LibreTranslate-compatible HTTP endpoint.
package libre

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skillsenselab/scribed/errors"
)

const (
	// ProviderName is the registered name for the LibreTranslate provider.
	ProviderName = "libretranslate"

	defaultURL     = "http://localhost:5000"
	defaultTimeout = 60 * time.Second
)

// Config holds configuration for the LibreTranslate provider.
type Config struct {
	URL     string        `yaml:"url" mapstructure:"url"`
	APIKey  string        `yaml:"api_key" mapstructure:"api_key"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ApplyDefaults sets sensible default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.URL == "" {
		c.URL = defaultURL
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}

// Provider implements translation.Provider using a LibreTranslate server.
type Provider struct {
	cfg    Config
	client *http.Client
}

// NewProvider creates a new LibreTranslate provider.
func NewProvider(cfg Config) *Provider {
	cfg.ApplyDefaults()
	return &Provider{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable checks if the LibreTranslate server is reachable.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL+"/languages", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Translate converts text between languages. Failures are reported as
// TRANSLATION_ERROR.
func (p *Provider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if sourceLang == "" {
		sourceLang = "auto"
	}

	payload := translateRequest{
		Q:      text,
		Source: sourceLang,
		Target: targetLang,
		APIKey: p.cfg.APIKey,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Translation(fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL+"/translate", bytes.NewReader(body))
	if err != nil {
		return "", errors.Translation(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", errors.Translation(fmt.Errorf("translate request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", errors.Translation(fmt.Errorf("translate status %d: %s", resp.StatusCode, string(raw)))
	}

	var result translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.Translation(fmt.Errorf("decode response: %w", err))
	}
	return result.TranslatedText, nil
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	APIKey string `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
}
