package usecase

import (
	"context"
	"time"

	"github.com/totegamma/agentdesk"
	"github.com/totegamma/agentdesk/internal/domain"
)

// AgentRepository defines storage operations for request records.
type AgentRepository interface {
	Create(ctx context.Context, agent domain.Agent) (domain.Agent, error)
	Get(ctx context.Context, id string) (domain.Agent, error)
	// MarkFailed moves the record to Failed only while it is still
	// Processing. It reports whether a row changed.
	MarkFailed(ctx context.Context, id string) (bool, error)
	UpdateOTP(ctx context.Context, id string, otp string) (domain.Agent, error)
	SoftDelete(ctx context.Context, id string) (domain.Agent, error)
	List(ctx context.Context, filter domain.ListFilter, offset, limit int) ([]domain.Agent, int64, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Agent, error)
	// AttachOutput stores output and applies complete to the locked record
	// in one transaction. Nothing is written when complete returns an error.
	AttachOutput(ctx context.Context, id string, output domain.Output, complete func(*domain.Agent) error) (domain.Agent, error)
}

// OutputRepository defines lookup of output blobs.
type OutputRepository interface {
	Get(ctx context.Context, id string) (domain.Output, error)
}

// ProcessorGateway sends a request to the external processor.
type ProcessorGateway interface {
	Dispatch(ctx context.Context, req agentdesk.DispatchRequest) error
}

// SignalPublisher announces terminal transitions to other backend consumers.
type SignalPublisher interface {
	PublishStatus(ctx context.Context, event agentdesk.AgentEvent) error
}
