package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"
)

// Credentials holds the API key pair and the signing method.
type Credentials struct {
	apiKey    string
	apiSecret string
}

func NewCredentials(apiKey, apiSecret string) *Credentials {
	return &Credentials{
		apiKey:    apiKey,
		apiSecret: apiSecret,
	}
}

// Sign generates an HMAC-SHA256 signature over the query string.
func (c *Credentials) Sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Credentials) APIKey() string {
	return c.apiKey
}

func (c *Credentials) Configured() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

// APIClient carries the shared HTTP connection, base URL and credentials for
// every Binance REST call.
type APIClient struct {
	credentials *Credentials
	httpClient  *http.Client
	baseURL     string
}

func NewAPIClient(baseURL, apiKey, apiSecret string) *APIClient {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &APIClient{
		credentials: NewCredentials(apiKey, apiSecret),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
	}
}
