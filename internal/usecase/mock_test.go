package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/totegamma/agentdesk"
	"github.com/totegamma/agentdesk/internal/domain"
)

type mockAgentRepo struct {
	mu      sync.Mutex
	agents  map[string]domain.Agent
	outputs map[string]domain.Output

	markFailedErr error
	markFailed    int
}

func newMockAgentRepo() *mockAgentRepo {
	return &mockAgentRepo{
		agents:  map[string]domain.Agent{},
		outputs: map[string]domain.Output{},
	}
}

func (m *mockAgentRepo) Create(ctx context.Context, agent domain.Agent) (domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[agent.ID] = agent
	return agent, nil
}

func (m *mockAgentRepo) Get(ctx context.Context, id string) (domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[id]
	if !ok {
		return domain.Agent{}, domain.NotFoundError{Resource: "agent"}
	}
	return agent, nil
}

func (m *mockAgentRepo) MarkFailed(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markFailed++
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if m.markFailedErr != nil {
		return false, m.markFailedErr
	}
	agent, ok := m.agents[id]
	if !ok || agent.Status != agentdesk.StatusProcessing {
		return false, nil
	}
	_ = agent.Fail()
	m.agents[id] = agent
	return true, nil
}

func (m *mockAgentRepo) UpdateOTP(ctx context.Context, id string, otp string) (domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[id]
	if !ok {
		return domain.Agent{}, domain.NotFoundError{Resource: "agent"}
	}
	agent.OTP = &otp
	m.agents[id] = agent
	return agent, nil
}

func (m *mockAgentRepo) SoftDelete(ctx context.Context, id string) (domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[id]
	if !ok {
		return domain.Agent{}, domain.NotFoundError{Resource: "agent"}
	}
	agent.IsDeleted = true
	m.agents[id] = agent
	return agent, nil
}

func containsFold(s *string, sub string) bool {
	return s != nil && strings.Contains(strings.ToLower(*s), strings.ToLower(sub))
}

func (m *mockAgentRepo) List(ctx context.Context, filter domain.ListFilter, offset, limit int) ([]domain.Agent, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []domain.Agent
	for _, a := range m.agents {
		if a.IsFailed == 1 || a.IsDeleted {
			continue
		}
		if filter.Type != "" && string(a.Type) != filter.Type {
			continue
		}
		if filter.Country != "" && (a.Country == nil || !strings.EqualFold(*a.Country, filter.Country)) {
			continue
		}
		if filter.Search != "" {
			company := a.Company
			if !containsFold(&company, filter.Search) && !containsFold(a.Country, filter.Search) && !containsFold(a.SourceURL, filter.Search) {
				continue
			}
		}
		matched = append(matched, a)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].RequestTime.Equal(matched[j].RequestTime) {
			return matched[i].RequestTime.After(matched[j].RequestTime)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	if offset >= len(matched) {
		return []domain.Agent{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (m *mockAgentRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []domain.Agent
	for _, a := range m.agents {
		if a.Status == agentdesk.StatusProcessing && a.RequestTime.Before(before) {
			stale = append(stale, a)
		}
		if len(stale) == limit {
			break
		}
	}
	return stale, nil
}

func (m *mockAgentRepo) AttachOutput(ctx context.Context, id string, output domain.Output, complete func(*domain.Agent) error) (domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[id]
	if !ok {
		return domain.Agent{}, domain.NotFoundError{Resource: "agent"}
	}
	if err := complete(&agent); err != nil {
		return domain.Agent{}, err
	}
	m.outputs[output.ID] = output
	m.agents[id] = agent
	return agent, nil
}

func (m *mockAgentRepo) outputCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outputs)
}

type mockOutputRepo struct {
	agents *mockAgentRepo
}

func (m *mockOutputRepo) Get(ctx context.Context, id string) (domain.Output, error) {
	m.agents.mu.Lock()
	defer m.agents.mu.Unlock()
	output, ok := m.agents.outputs[id]
	if !ok {
		return domain.Output{}, domain.NotFoundError{Resource: "output"}
	}
	return output, nil
}

type mockProcessor struct {
	err   error
	calls []agentdesk.DispatchRequest

	// hook runs in place of returning err when set.
	hook func(ctx context.Context) error
}

func (m *mockProcessor) Dispatch(ctx context.Context, req agentdesk.DispatchRequest) error {
	m.calls = append(m.calls, req)
	if m.hook != nil {
		return m.hook(ctx)
	}
	return m.err
}

type mockSignal struct {
	events []agentdesk.AgentEvent
}

func (m *mockSignal) PublishStatus(ctx context.Context, event agentdesk.AgentEvent) error {
	m.events = append(m.events, event)
	return nil
}
