// Package apollo provides access to the Apollo.io enrichment API.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.apollo.io/api/v1"

// TokenSource yields a bearer credential for each request. Implementations
// are expected to cache and refresh internally.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same credential.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Client performs enrichment lookups against the Apollo API.
type Client interface {
	EnrichOrganization(ctx context.Context, domain string) (*Organization, error)
	SearchPeople(ctx context.Context, domain string) ([]Person, error)
}

// Organization is Apollo's view of a company.
type Organization struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	WebsiteURL            string   `json:"website_url"`
	PrimaryDomain         string   `json:"primary_domain"`
	Industry              string   `json:"industry"`
	Keywords              []string `json:"keywords"`
	EstimatedNumEmployees int      `json:"estimated_num_employees"`
	FoundedYear           int      `json:"founded_year"`
	AnnualRevenue         float64  `json:"annual_revenue"`
	RawAddress            string   `json:"raw_address"`
	City                  string   `json:"city"`
	State                 string   `json:"state"`
	Country               string   `json:"country"`
	Phone                 string   `json:"phone"`
	PubliclyTradedSymbol  string   `json:"publicly_traded_symbol"`
}

// Person is a single contact from a people search.
type Person struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	Seniority string `json:"seniority"`
	Email     string `json:"email"`
}

// APIError is a non-2xx response from the Apollo API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apollo: unexpected status %d: %s", e.StatusCode, e.Body)
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
	tokens  TokenSource
	baseURL string
	http    *http.Client
}

// NewClient creates an Apollo API client authenticated through the given
// token source.
func NewClient(tokens TokenSource, opts ...Option) Client {
	c := &httpClient{
		tokens:  tokens,
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

type enrichResponse struct {
	Organization *Organization `json:"organization"`
}

func (c *httpClient) EnrichOrganization(ctx context.Context, domain string) (*Organization, error) {
	path := "/organizations/enrich?domain=" + url.QueryEscape(domain)
	respBody, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var result enrichResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "apollo: unmarshal enrich response")
	}
	if result.Organization == nil {
		return nil, eris.Errorf("apollo: no organization found for %s", domain)
	}
	return result.Organization, nil
}

type peopleSearchRequest struct {
	OrganizationDomains []string `json:"q_organization_domains"`
	PerPage             int      `json:"per_page"`
}

type peopleSearchResponse struct {
	People []Person `json:"people"`
}

func (c *httpClient) SearchPeople(ctx context.Context, domain string) ([]Person, error) {
	body, err := json.Marshal(peopleSearchRequest{
		OrganizationDomains: []string{domain},
		PerPage:             25,
	})
	if err != nil {
		return nil, eris.Wrap(err, "apollo: marshal people search")
	}

	respBody, err := c.do(ctx, http.MethodPost, "/mixed_people/search", body)
	if err != nil {
		return nil, err
	}

	var result peopleSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "apollo: unmarshal people search response")
	}
	return result.People, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: create request")
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: obtain token")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "apollo: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
