// Package export publishes reconciled company profiles to Notion.
package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/pkg/notion"
)

// Publisher writes reconciled records into a Notion database, one page per
// company domain. Existing pages are updated in place.
type Publisher struct {
	client notion.Client
	dbID   string
}

// NewPublisher creates a publisher targeting the given profile database.
func NewPublisher(client notion.Client, dbID string) *Publisher {
	return &Publisher{client: client, dbID: dbID}
}

// Publish creates or updates the Notion page for a record's domain and
// returns the page ID.
func (p *Publisher) Publish(ctx context.Context, record *model.ReconciledRecord) (string, error) {
	props := recordProperties(record)

	existing, err := p.findPage(ctx, record.Domain)
	if err != nil {
		return "", err
	}

	if existing != "" {
		page, err := p.client.UpdatePage(ctx, existing, &notionapi.PageUpdateRequest{
			Properties: props,
		})
		if err != nil {
			return "", eris.Wrap(err, fmt.Sprintf("export: update profile %s", record.Domain))
		}
		zap.L().Info("export: profile updated",
			zap.String("domain", record.Domain),
			zap.String("page_id", string(page.ID)),
		)
		return string(page.ID), nil
	}

	page, err := p.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(p.dbID),
		},
		Properties: props,
	})
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("export: create profile %s", record.Domain))
	}
	zap.L().Info("export: profile created",
		zap.String("domain", record.Domain),
		zap.String("page_id", string(page.ID)),
	)
	return string(page.ID), nil
}

// findPage looks up the profile page for a domain, returning "" when none
// exists yet.
func (p *Publisher) findPage(ctx context.Context, domain string) (string, error) {
	resp, err := p.client.QueryDatabase(ctx, p.dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Domain",
			RichText: &notionapi.TextFilterCondition{
				Equals: domain,
			},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("export: find profile %s", domain))
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

func recordProperties(record *model.ReconciledRecord) notionapi.Properties {
	now := notionapi.Date(time.Now().UTC())

	props := notionapi.Properties{
		"Name":       titleProp(record.CompanyName),
		"Domain":     textProp(record.Domain),
		"Confidence": notionapi.NumberProperty{Number: record.Confidence},
		"Sources":    textProp(strings.Join(record.Sources, ", ")),
		"Last Reconciled": notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &now},
		},
	}

	if s := fieldString(record, "ceo"); s != "" {
		props["CEO"] = textProp(s)
	}
	if s := fieldString(record, "industry"); s != "" {
		props["Industry"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: s},
		}
	}
	if s := fieldString(record, "headquarters"); s != "" {
		props["Headquarters"] = textProp(s)
	}
	if s := fieldString(record, "website"); s != "" {
		props["Website"] = notionapi.URLProperty{URL: s}
	}
	if s := fieldString(record, "phone"); s != "" {
		props["Phone"] = notionapi.PhoneNumberProperty{PhoneNumber: s}
	}
	if n, ok := fieldNumber(record, "employee_count"); ok {
		props["Employees"] = notionapi.NumberProperty{Number: n}
	}
	if n, ok := fieldNumber(record, "founded_year"); ok {
		props["Founded"] = notionapi.NumberProperty{Number: n}
	}
	if n, ok := fieldNumber(record, "revenue"); ok {
		props["Revenue"] = notionapi.NumberProperty{Number: n}
	}

	return props
}

func titleProp(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Title: []notionapi.RichText{{Text: &notionapi.Text{Content: s}}},
	}
}

func textProp(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: s}}},
	}
}

func fieldString(record *model.ReconciledRecord, field string) string {
	v, ok := record.Fields[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}

func fieldNumber(record *model.ReconciledRecord, field string) (float64, bool) {
	switch n := record.Fields[field].(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
