package gather

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
	"github.com/sells-group/reconcile-cli/pkg/apollo"
	"github.com/sells-group/reconcile-cli/pkg/pdl"
	"github.com/sells-group/reconcile-cli/pkg/salesforce"
)

// apolloProvider adapts the Apollo enrichment API to the canonical field map.
type apolloProvider struct {
	client apollo.Client
	tier   int
}

// NewApolloProvider wraps an Apollo client as a gather source.
func NewApolloProvider(client apollo.Client, tier int) Provider {
	return &apolloProvider{client: client, tier: tier}
}

func (p *apolloProvider) Name() string { return "apollo" }
func (p *apolloProvider) Tier() int    { return p.tier }

func (p *apolloProvider) Fetch(ctx context.Context, company model.Company) (map[string]any, error) {
	org, err := p.client.EnrichOrganization(ctx, company.Domain)
	if err != nil {
		return nil, classifyAPIError(err)
	}

	data := map[string]any{}
	putStr(data, "company_name", org.Name)
	putStr(data, "website", org.WebsiteURL)
	putStr(data, "industry", org.Industry)
	putStr(data, "phone", org.Phone)
	if org.EstimatedNumEmployees > 0 {
		data["employee_count"] = org.EstimatedNumEmployees
	}
	if org.FoundedYear > 0 {
		data["founded_year"] = org.FoundedYear
	}
	if org.AnnualRevenue > 0 {
		data["revenue"] = org.AnnualRevenue
	}
	if org.PubliclyTradedSymbol != "" {
		data["ownership_type"] = "public"
		data["ticker"] = org.PubliclyTradedSymbol
	}
	putStr(data, "headquarters", joinLocation(org.City, org.State))

	// People search enriches stakeholders; its failure does not void the
	// organization data already in hand.
	people, err := p.client.SearchPeople(ctx, company.Domain)
	if err == nil && len(people) > 0 {
		stakeholders := make([]model.Stakeholder, 0, len(people))
		for _, person := range people {
			s := model.Stakeholder{
				Name:  person.Name,
				Role:  person.Seniority,
				Title: person.Title,
				Email: person.Email,
			}
			stakeholders = append(stakeholders, s)
			if isChiefExecutive(person.Title) {
				putStr(data, "ceo", person.Name)
			}
		}
		data["stakeholders"] = stakeholders
	}

	return data, nil
}

// pdlProvider adapts the People Data Labs company API.
type pdlProvider struct {
	client pdl.Client
	tier   int
}

// NewPDLProvider wraps a PDL client as a gather source.
func NewPDLProvider(client pdl.Client, tier int) Provider {
	return &pdlProvider{client: client, tier: tier}
}

func (p *pdlProvider) Name() string { return "pdl" }
func (p *pdlProvider) Tier() int    { return p.tier }

func (p *pdlProvider) Fetch(ctx context.Context, company model.Company) (map[string]any, error) {
	c, err := p.client.EnrichCompany(ctx, company.Domain)
	if err != nil {
		return nil, classifyAPIError(err)
	}

	data := map[string]any{}
	name := c.DisplayName
	if name == "" {
		name = c.Name
	}
	putStr(data, "company_name", name)
	putStr(data, "website", c.Website)
	putStr(data, "industry", c.Industry)
	putStr(data, "ownership_type", c.Type)
	putStr(data, "ticker", c.Ticker)
	if c.EmployeeCount > 0 {
		data["employee_count"] = c.EmployeeCount
	}
	if c.Founded > 0 {
		data["founded_year"] = c.Founded
	}
	if c.Location != nil {
		putStr(data, "headquarters", joinLocation(c.Location.Locality, c.Location.Region))
	}
	return data, nil
}

// salesforceProvider reads the existing Account record as a data source.
type salesforceProvider struct {
	client salesforce.Client
	tier   int
}

// NewSalesforceProvider wraps a Salesforce client as a gather source.
func NewSalesforceProvider(client salesforce.Client, tier int) Provider {
	return &salesforceProvider{client: client, tier: tier}
}

func (p *salesforceProvider) Name() string { return "salesforce" }
func (p *salesforceProvider) Tier() int    { return p.tier }

func (p *salesforceProvider) Fetch(ctx context.Context, company model.Company) (map[string]any, error) {
	soql := fmt.Sprintf(
		"SELECT Id, Name, Website, Industry, NumberOfEmployees, AnnualRevenue, BillingCity, BillingState, Phone, Ownership, YearStarted FROM Account WHERE Website LIKE '%%%s%%' LIMIT 1",
		sanitizeSOQL(company.Domain),
	)

	var result salesforce.QueryResult[salesforce.Account]
	if err := p.client.Query(ctx, soql, &result); err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, errors.New("salesforce: no account matches domain")
	}
	acct := result.Records[0]

	data := map[string]any{}
	putStr(data, "company_name", acct.Name)
	putStr(data, "website", acct.Website)
	putStr(data, "industry", acct.Industry)
	putStr(data, "phone", acct.Phone)
	putStr(data, "ownership_type", strings.ToLower(acct.Ownership))
	if acct.NumberOfEmployees > 0 {
		data["employee_count"] = acct.NumberOfEmployees
	}
	if acct.AnnualRevenue > 0 {
		data["revenue"] = acct.AnnualRevenue
	}
	if y, err := strconv.Atoi(strings.TrimSpace(acct.YearStarted)); err == nil && y > 0 {
		data["founded_year"] = y
	}
	putStr(data, "headquarters", joinLocation(acct.BillingCity, acct.BillingState))
	data["salesforce_id"] = acct.ID
	return data, nil
}

// classifyAPIError tags retryable provider responses so the retry layer
// distinguishes them from permanent failures.
func classifyAPIError(err error) error {
	var apolloErr *apollo.APIError
	if errors.As(err, &apolloErr) && resilience.IsTransientHTTPStatus(apolloErr.StatusCode) {
		return resilience.NewTransientError(err, apolloErr.StatusCode)
	}
	var pdlErr *pdl.APIError
	if errors.As(err, &pdlErr) && resilience.IsTransientHTTPStatus(pdlErr.StatusCode) {
		return resilience.NewTransientError(err, pdlErr.StatusCode)
	}
	return err
}

func isChiefExecutive(title string) bool {
	t := strings.ToLower(title)
	return t == "ceo" || strings.Contains(t, "chief executive")
}

func joinLocation(city, region string) string {
	switch {
	case city == "":
		return region
	case region == "":
		return city
	default:
		return city + ", " + region
	}
}

func putStr(data map[string]any, key, val string) {
	if strings.TrimSpace(val) != "" {
		data[key] = val
	}
}

func sanitizeSOQL(s string) string {
	return strings.NewReplacer("'", "", "\\", "", "%", "").Replace(s)
}
