package pdl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrichCompany(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/company/enrich", r.URL.Path)
		assert.Equal(t, "microsoft.com", r.URL.Query().Get("website"))
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		json.NewEncoder(w).Encode(map[string]any{
			"name":           "microsoft",
			"display_name":   "Microsoft Corporation",
			"website":        "microsoft.com",
			"founded":        1975,
			"employee_count": 221000,
			"industry":       "computer software",
			"type":           "public",
			"ticker":         "MSFT",
			"location": map[string]any{
				"name":     "redmond, washington, united states",
				"locality": "redmond",
				"region":   "washington",
				"country":  "united states",
			},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	company, err := c.EnrichCompany(context.Background(), "microsoft.com")
	require.NoError(t, err)

	assert.Equal(t, "Microsoft Corporation", company.DisplayName)
	assert.Equal(t, 221000, company.EmployeeCount)
	assert.Equal(t, "public", company.Type)
	require.NotNil(t, company.Location)
	assert.Equal(t, "redmond", company.Location.Locality)
}

func TestEnrichCompany_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.EnrichCompany(context.Background(), "microsoft.com")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}
