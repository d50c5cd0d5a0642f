package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/totegamma/agentdesk"
	"github.com/totegamma/agentdesk/internal/domain"
	"github.com/totegamma/agentdesk/internal/infra/database"
	"github.com/totegamma/agentdesk/internal/infra/database/models"
)

func TestEscapeLike(t *testing.T) {
	cases := map[string]string{
		"acme":    "acme",
		"100%":    `100\%`,
		"a_b":     `a\_b`,
		`back\sl`: `back\\sl`,
		`%_\`:     `\%\_\\`,
		"":        "",
	}
	for in, want := range cases {
		if got := escapeLike(in); got != want {
			t.Fatalf("escapeLike(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOutputCacheKey(t *testing.T) {
	if got := outputCacheKey("65f1c2a9e4b0a1b2c3d4e5f6"); got != "agentdesk:output:65f1c2a9e4b0a1b2c3d4e5f6" {
		t.Fatalf("unexpected key %s", got)
	}
}

// openTestDB connects to AGENTDESK_TEST_POSTGRES_DSN and starts from empty tables.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("AGENTDESK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AGENTDESK_TEST_POSTGRES_DSN not set")
	}

	db, err := database.NewPostgres(dsn)
	require.NoError(t, err)
	require.NoError(t, database.MigratePostgres(db))
	require.NoError(t, db.Exec("TRUNCATE agents, agent_outputs").Error)

	return db
}

func newAgent(t *testing.T, in domain.NewAgentInput, at time.Time) domain.Agent {
	t.Helper()
	agent, err := domain.NewAgent(domain.NewID(), in, at)
	require.NoError(t, err)
	return agent
}

func TestAgentRepositoryLifecycle(t *testing.T) {
	db := openTestDB(t)
	repo := NewAgentRepository(db)
	outputs := NewOutputRepository(db, nil)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Millisecond)
	agent := newAgent(t, domain.NewAgentInput{
		Type:    string(agentdesk.AgentTypeCorporateRegistry),
		Company: "Acme Ltd",
		Country: "US",
	}, start)

	created, err := repo.Create(ctx, agent)
	require.NoError(t, err)
	assert.Equal(t, agentdesk.StatusProcessing, created.Status)

	_, err = repo.Get(ctx, domain.NewID())
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	now := start.Add(time.Minute)
	data := json.RawMessage(`{"metadata":{"source":"registry.example.com"}}`)
	meta := domain.ExtractOutputMeta(data)

	first := domain.Output{ID: domain.NewID(), RequestID: agent.ID, Data: data, Source: meta.Source, CreatedAt: now}
	completed, err := repo.AttachOutput(ctx, agent.ID, first, func(a *domain.Agent) error {
		return a.Complete(first.ID, meta, now)
	})
	require.NoError(t, err)
	assert.Equal(t, agentdesk.StatusCompleted, completed.Status)

	second := domain.Output{ID: domain.NewID(), RequestID: agent.ID, Data: json.RawMessage(`{"n":2}`), CreatedAt: now}
	_, err = repo.AttachOutput(ctx, agent.ID, second, func(a *domain.Agent) error {
		return a.Complete(second.ID, domain.OutputMeta{}, now.Add(time.Hour))
	})
	require.NoError(t, err)

	stored, err := repo.Get(ctx, agent.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.OutputID)
	assert.Equal(t, second.ID, *stored.OutputID)
	require.NotNil(t, stored.SourceURL)
	assert.Equal(t, "registry.example.com", *stored.SourceURL)
	require.NotNil(t, stored.ResponseTime)
	assert.True(t, stored.ResponseTime.Equal(now))

	var blobs int64
	require.NoError(t, db.Model(&models.AgentOutput{}).Where("request_id = ?", agent.ID).Count(&blobs).Error)
	assert.Equal(t, int64(2), blobs)

	blob, err := outputs.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(blob.Data))

	changed, err := repo.MarkFailed(ctx, agent.ID)
	require.NoError(t, err)
	assert.False(t, changed, "completed records never become failed")

	withOtp, err := repo.UpdateOTP(ctx, agent.ID, "123456")
	require.NoError(t, err)
	require.NotNil(t, withOtp.OTP)
	assert.Equal(t, "123456", *withOtp.OTP)

	deleted, err := repo.SoftDelete(ctx, agent.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)

	_, err = repo.SoftDelete(ctx, domain.NewID())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestAgentRepositoryAttachToFailed(t *testing.T) {
	db := openTestDB(t)
	repo := NewAgentRepository(db)
	ctx := context.Background()

	agent := newAgent(t, domain.NewAgentInput{Type: string(agentdesk.AgentTypeFinancialData), Company: "Acme"}, time.Now())
	_, err := repo.Create(ctx, agent)
	require.NoError(t, err)

	changed, err := repo.MarkFailed(ctx, agent.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	output := domain.Output{ID: domain.NewID(), RequestID: agent.ID, Data: json.RawMessage(`{}`), CreatedAt: time.Now()}
	_, err = repo.AttachOutput(ctx, agent.ID, output, func(a *domain.Agent) error {
		return a.Complete(output.ID, domain.OutputMeta{}, time.Now())
	})
	assert.True(t, errors.Is(err, domain.ErrTerminalState))

	var blobs int64
	require.NoError(t, db.Model(&models.AgentOutput{}).Count(&blobs).Error)
	assert.Zero(t, blobs)
}

func TestAgentRepositoryList(t *testing.T) {
	db := openTestDB(t)
	repo := NewAgentRepository(db)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	inputs := []domain.NewAgentInput{
		{Type: string(agentdesk.AgentTypeCorporateRegistry), Company: "Acme Ltd", Country: "US"},
		{Type: string(agentdesk.AgentTypeCorporateRegistry), Company: "Globex", Country: "GB"},
		{Type: string(agentdesk.AgentTypeWebResearchMedia), Company: "Initech", Country: "CA", SourceURL: "https://news.acme.example"},
		{Type: string(agentdesk.AgentTypeFinancialData), Company: "100% Foods"},
	}
	var ids []string
	for i, in := range inputs {
		a := newAgent(t, in, base.Add(time.Duration(i)*time.Minute))
		_, err := repo.Create(ctx, a)
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	_, err := repo.MarkFailed(ctx, ids[1])
	require.NoError(t, err)

	agents, total, err := repo.List(ctx, domain.ListFilter{}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, agents, 3)
	assert.Equal(t, "100% Foods", agents[0].Company)
	assert.Equal(t, "Acme Ltd", agents[2].Company)

	_, total, err = repo.List(ctx, domain.ListFilter{Search: "ACME"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, total, err = repo.List(ctx, domain.ListFilter{Search: "%"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "wildcards are matched literally")

	_, total, err = repo.List(ctx, domain.ListFilter{Country: "us"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	page, total, err := repo.List(ctx, domain.ListFilter{}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 1)

	stale, err := repo.ListStale(ctx, base.Add(90*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, ids[0], stale[0].ID)
}
