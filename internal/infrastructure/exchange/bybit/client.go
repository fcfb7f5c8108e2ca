package bybit

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const recvWindow = "5000"

// Credentials holds the API key pair and the v5 signing method.
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

// Sign generates the v5 HMAC-SHA256 signature over
// timestamp + apiKey + recvWindow + payload.
func (c *Credentials) Sign(timestamp, payload string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(timestamp + c.apiKey + recvWindow + payload))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Credentials) APIKey() string {
	return c.apiKey
}

// APIClient carries the shared HTTP connection, base URL and credentials for
// every Bybit REST call.
type APIClient struct {
	credentials *Credentials
	httpClient  *http.Client
	baseURL     string
}

func NewAPIClient(baseURL, apiKey, apiSecret string) *APIClient {
	if baseURL == "" {
		baseURL = "https://api.bybit.com"
	}
	return &APIClient{
		credentials: NewCredentials(apiKey, apiSecret),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
	}
}

// publicRequest is shared helper for unauthenticated REST calls.
func (c *APIClient) publicRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// signedGet is shared helper for signed GET calls. The query string is the
// signed payload.
func (c *APIClient) signedGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	query := ""
	if params != nil {
		query = params.Encode()
	}
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	if query != "" {
		endpoint += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.signHeaders(req, query)
	return c.do(req)
}

// signedPost is shared helper for signed POST calls. The JSON body is the
// signed payload.
func (c *APIClient) signedPost(ctx context.Context, path string, body []byte) ([]byte, error) {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.signHeaders(req, string(body))
	return c.do(req)
}

func (c *APIClient) signHeaders(req *http.Request, payload string) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("X-BAPI-API-KEY", c.credentials.APIKey())
	req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
	req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)
	req.Header.Set("X-BAPI-SIGN", c.credentials.Sign(timestamp, payload))
}

func (c *APIClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bybit http %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
