package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
)

func TestNextRetryAt_DoublesPerAttempt(t *testing.T) {
	now := time.Now().UTC()

	first := nextRetryAt(resilience.DLQEntry{RetryCount: 0})
	second := nextRetryAt(resilience.DLQEntry{RetryCount: 1})
	third := nextRetryAt(resilience.DLQEntry{RetryCount: 2})

	assert.WithinDuration(t, now.Add(dlqInitialDelay), first, time.Second)
	assert.WithinDuration(t, now.Add(2*dlqInitialDelay), second, time.Second)
	assert.WithinDuration(t, now.Add(4*dlqInitialDelay), third, time.Second)
}

func TestNextRetryAt_Capped(t *testing.T) {
	now := time.Now().UTC()

	late := nextRetryAt(resilience.DLQEntry{RetryCount: 20})
	assert.WithinDuration(t, now.Add(dlqMaxDelay), late, time.Second)

	// A shift past the integer width must not wrap into the past.
	overflow := nextRetryAt(resilience.DLQEntry{RetryCount: 70})
	assert.True(t, overflow.After(now))
}

func TestFormatDLQList(t *testing.T) {
	entries := []resilience.DLQEntry{
		{
			ID:          "aaaaaaaa-1111-2222-3333-444444444444",
			Company:     model.Company{Domain: "acme.com"},
			Error:       "apollo: unexpected status 503: upstream briefly unavailable today",
			ErrorType:   "transient",
			FailedStage: "gather",
			RetryCount:  1,
			MaxRetries:  3,
			NextRetryAt: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	formatDLQList(&buf, entries)
	out := buf.String()

	assert.Contains(t, out, "aaaaaaaa")
	assert.Contains(t, out, "acme.com")
	assert.Contains(t, out, "transient")
	assert.Contains(t, out, "1/3")
	// Long error messages are truncated for display.
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, "unavailable today")
}
