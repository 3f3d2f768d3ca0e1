package notify

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usage-cost/core/merge"
	"usage-cost/core/pipeline"
	"usage-cost/core/types"
	"usage-cost/internal/errors"
)

type mockExecutor struct {
	id, token string
	params    *discordgo.WebhookParams
	err       error
}

func (m *mockExecutor) WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.id, m.token, m.params = webhookID, token, data
	return nil, m.err
}

func TestParseWebhookURL(t *testing.T) {
	id, token, err := ParseWebhookURL("https://discord.com/api/webhooks/123456/abc-DEF")
	require.NoError(t, err)
	assert.Equal(t, "123456", id)
	assert.Equal(t, "abc-DEF", token)

	for _, bad := range []string{"https://discord.com/api/channels/1", "https://discord.com/api/webhooks/123", "::"} {
		_, _, err := ParseWebhookURL(bad)
		assert.True(t, errors.IsType(err, errors.TypeConfig), bad)
	}
}

func successfulRun() *pipeline.RunResult {
	return &pipeline.RunResult{
		RunID:       "run-1",
		StartedAt:   time.Date(2019, 3, 2, 6, 0, 0, 0, time.UTC),
		MarkerAfter: "0002.csv.gz",
		Reports: []*pipeline.ReportResult{
			{ID: "0001.csv.gz", State: pipeline.StateSkipped},
			{
				ID:     "0002.csv.gz",
				State:  pipeline.StateCommitted,
				Rows:   12,
				Totals: map[types.Currency]decimal.Decimal{"USD": decimal.RequireFromString("30.456")},
			},
		},
	}
}

func TestNotifyRunSuccess(t *testing.T) {
	exec := &mockExecutor{}
	n, err := NewDiscordNotifier("https://discord.com/api/webhooks/1/tok", withExecutor(exec))
	require.NoError(t, err)

	require.NoError(t, n.NotifyRun(successfulRun()))
	assert.Equal(t, "1", exec.id)
	assert.Equal(t, "tok", exec.token)
	require.Len(t, exec.params.Embeds, 1)

	e := exec.params.Embeds[0]
	assert.Equal(t, "Usage cost run completed", e.Title)
	assert.Equal(t, int(ColorGreen), e.Color)
	assert.Equal(t, "usage-cost", exec.params.Username)

	values := map[string]string{}
	for _, f := range e.Fields {
		values[f.Name] = f.Value
	}
	assert.Equal(t, "1", values["Processed"])
	assert.Equal(t, "1", values["Skipped"])
	assert.Equal(t, "12", values["Rows"])
	assert.Equal(t, "30.46 USD", values["Known cost"])
}

func TestEmbedWarningsAndFailure(t *testing.T) {
	run := successfulRun()
	run.Reports[1].UnmappedConversions = []merge.Group{{Resource: "B", Rows: 3}}
	e := Embed(run)
	assert.Equal(t, int(ColorYellow), e.Color)
	assert.Equal(t, "B (3)", e.Fields[len(e.Fields)-1].Value)

	run.Reports[1].Err = errors.Write("disk full", nil)
	run.Reports[1].FailedState = pipeline.StateWritten
	run.Err = fmt.Errorf("report 0002.csv.gz failed in state written: %w", run.Reports[1].Err)
	e = Embed(run)
	assert.Equal(t, int(ColorRed), e.Color)
	assert.Contains(t, e.Description, "disk full")
}

func TestListGroupsTruncates(t *testing.T) {
	var groups []merge.Group
	for i := 0; i < maxListed+3; i++ {
		groups = append(groups, merge.Group{Resource: fmt.Sprintf("R%02d", i), Rows: 1})
	}
	assert.Contains(t, listGroups(groups), "... and 3 more")
}

func TestNotifyRunError(t *testing.T) {
	n, err := NewDiscordNotifier("https://discord.com/api/webhooks/1/tok", withExecutor(&mockExecutor{err: stderrors.New("429 rate limited")}))
	require.NoError(t, err)
	assert.Error(t, n.NotifyRun(successfulRun()))
}
