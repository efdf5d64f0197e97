package export

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// fakeNotion records calls and plays back scripted query results.
type fakeNotion struct {
	queryResults []notionapi.Page
	queryErr     error

	created *notionapi.PageCreateRequest
	updated *notionapi.PageUpdateRequest
	updID   string
}

func (f *fakeNotion) QueryDatabase(_ context.Context, _ string, _ *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &notionapi.DatabaseQueryResponse{Results: f.queryResults}, nil
}

func (f *fakeNotion) CreatePage(_ context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	f.created = req
	return &notionapi.Page{ID: "new-page"}, nil
}

func (f *fakeNotion) UpdatePage(_ context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	f.updID = pageID
	f.updated = req
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func testRecord() *model.ReconciledRecord {
	return &model.ReconciledRecord{
		ID:          "rec-1",
		CompanyName: "Microsoft",
		Domain:      "microsoft.com",
		Fields: map[string]any{
			"ceo":            "Satya Nadella",
			"industry":       "Software",
			"employee_count": 221000,
			"website":        "https://microsoft.com",
		},
		Confidence: 0.92,
		Sources:    []string{"apollo", "pdl"},
	}
}

func TestPublish_CreatesNewPage(t *testing.T) {
	fake := &fakeNotion{}
	pub := NewPublisher(fake, "profile-db")

	pageID, err := pub.Publish(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, "new-page", pageID)
	require.NotNil(t, fake.created)
	assert.Nil(t, fake.updated)

	props := fake.created.Properties
	title := props["Name"].(notionapi.TitleProperty)
	assert.Equal(t, "Microsoft", title.Title[0].Text.Content)
	ceo := props["CEO"].(notionapi.RichTextProperty)
	assert.Equal(t, "Satya Nadella", ceo.RichText[0].Text.Content)
	conf := props["Confidence"].(notionapi.NumberProperty)
	assert.InDelta(t, 0.92, conf.Number, 1e-9)
	employees := props["Employees"].(notionapi.NumberProperty)
	assert.InDelta(t, 221000, employees.Number, 1e-9)
	sources := props["Sources"].(notionapi.RichTextProperty)
	assert.Equal(t, "apollo, pdl", sources.RichText[0].Text.Content)
}

func TestPublish_UpdatesExistingPage(t *testing.T) {
	fake := &fakeNotion{
		queryResults: []notionapi.Page{{ID: "existing-page"}},
	}
	pub := NewPublisher(fake, "profile-db")

	pageID, err := pub.Publish(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, "existing-page", pageID)
	assert.Equal(t, "existing-page", fake.updID)
	assert.Nil(t, fake.created)
}

func TestPublish_SkipsEmptyFields(t *testing.T) {
	fake := &fakeNotion{}
	pub := NewPublisher(fake, "profile-db")

	record := testRecord()
	record.Fields = map[string]any{"ceo": "  "}

	_, err := pub.Publish(context.Background(), record)
	require.NoError(t, err)

	_, hasCEO := fake.created.Properties["CEO"]
	assert.False(t, hasCEO)
	_, hasEmployees := fake.created.Properties["Employees"]
	assert.False(t, hasEmployees)
}

func TestPublish_QueryErrorPropagates(t *testing.T) {
	fake := &fakeNotion{queryErr: assert.AnError}
	pub := NewPublisher(fake, "profile-db")

	_, err := pub.Publish(context.Background(), testRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "find profile")
}
