package rest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/totegamma/agentdesk"
	"github.com/totegamma/agentdesk/internal/domain"
)

// --- mocks ---

type mockAgentRepo struct {
	mu      sync.Mutex
	agents  map[string]domain.Agent
	outputs map[string]domain.Output
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
	a, ok := m.agents[id]
	if !ok {
		return domain.Agent{}, domain.NotFoundError{Resource: "agent"}
	}
	return a, nil
}

func (m *mockAgentRepo) MarkFailed(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok || a.Fail() != nil {
		return false, nil
	}
	m.agents[id] = a
	return true, nil
}

func (m *mockAgentRepo) update(id string, fn func(*domain.Agent)) (domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return domain.Agent{}, domain.NotFoundError{Resource: "agent"}
	}
	fn(&a)
	m.agents[id] = a
	return a, nil
}

func (m *mockAgentRepo) UpdateOTP(ctx context.Context, id string, otp string) (domain.Agent, error) {
	return m.update(id, func(a *domain.Agent) { a.OTP = &otp })
}

func (m *mockAgentRepo) SoftDelete(ctx context.Context, id string) (domain.Agent, error) {
	return m.update(id, func(a *domain.Agent) { a.IsDeleted = true })
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
		if filter.Search != "" && !strings.Contains(strings.ToLower(a.Company), strings.ToLower(filter.Search)) {
			continue
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := int64(len(matched))
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (m *mockAgentRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Agent, error) {
	return nil, nil
}

func (m *mockAgentRepo) AttachOutput(ctx context.Context, id string, output domain.Output, complete func(*domain.Agent) error) (domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return domain.Agent{}, domain.NotFoundError{Resource: "agent"}
	}
	if err := complete(&a); err != nil {
		return domain.Agent{}, err
	}
	m.outputs[output.ID] = output
	m.agents[id] = a
	return a, nil
}

type mockOutputRepo struct {
	agents *mockAgentRepo
}

func (m *mockOutputRepo) Get(ctx context.Context, id string) (domain.Output, error) {
	m.agents.mu.Lock()
	defer m.agents.mu.Unlock()
	o, ok := m.agents.outputs[id]
	if !ok {
		return domain.Output{}, domain.NotFoundError{Resource: "output"}
	}
	return o, nil
}

type mockProcessor struct {
	err error
}

func (m *mockProcessor) Dispatch(ctx context.Context, req agentdesk.DispatchRequest) error {
	return m.err
}
