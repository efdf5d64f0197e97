// Package pdl provides access to the People Data Labs company enrichment API.
package pdl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.peopledatalabs.com/v5"

// Client performs company enrichment against the PDL API.
type Client interface {
	EnrichCompany(ctx context.Context, domain string) (*Company, error)
}

// Company is PDL's view of a company.
type Company struct {
	Name          string    `json:"name"`
	DisplayName   string    `json:"display_name"`
	Website       string    `json:"website"`
	Founded       int       `json:"founded"`
	EmployeeCount int       `json:"employee_count"`
	Industry      string    `json:"industry"`
	Type          string    `json:"type"` // private, public, nonprofit...
	Ticker        string    `json:"ticker"`
	Summary       string    `json:"summary"`
	LinkedinURL   string    `json:"linkedin_url"`
	Location      *Location `json:"location"`
}

// Location is a structured company address.
type Location struct {
	Name     string `json:"name"`
	Locality string `json:"locality"`
	Region   string `json:"region"`
	Country  string `json:"country"`
}

// APIError is a non-2xx response from the PDL API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pdl: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a PDL API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) EnrichCompany(ctx context.Context, domain string) (*Company, error) {
	endpoint := c.baseURL + "/company/enrich?website=" + url.QueryEscape(domain)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, eris.Wrap(err, "pdl: create request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "pdl: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "pdl: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var company Company
	if err := json.Unmarshal(respBody, &company); err != nil {
		return nil, eris.Wrap(err, "pdl: unmarshal response")
	}
	return &company, nil
}
