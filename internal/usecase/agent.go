package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/agentdesk"
	"github.com/totegamma/agentdesk/internal/domain"
)

var tracer = otel.Tracer("usecase")

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// AttachResult identifies the blob created by AttachOutput.
type AttachResult struct {
	RequestID string
	OutputID  string
}

// OtpResult echoes a stored otp.
type OtpResult struct {
	RequestID string
	OTP       string
}

// OutputView is a record together with its resolved output, if any.
type OutputView struct {
	Status agentdesk.Status
	Agent  domain.Agent
	Output *domain.Output
}

type ListResult struct {
	Agents       []domain.Agent
	Page         int
	TotalPages   int
	TotalRecords int64
}

type AgentUsecase struct {
	agents    AgentRepository
	outputs   OutputRepository
	processor ProcessorGateway
	signal    SignalPublisher
	now       func() time.Time
	newID     func() string
}

type Option func(*AgentUsecase)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(uc *AgentUsecase) { uc.now = now }
}

// WithIDGenerator overrides domain.NewID.
func WithIDGenerator(newID func() string) Option {
	return func(uc *AgentUsecase) { uc.newID = newID }
}

func NewAgentUsecase(
	agents AgentRepository,
	outputs OutputRepository,
	processor ProcessorGateway,
	signal SignalPublisher,
	opts ...Option,
) *AgentUsecase {
	uc := &AgentUsecase{
		agents:    agents,
		outputs:   outputs,
		processor: processor,
		signal:    signal,
		now:       time.Now,
		newID:     domain.NewID,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func eventOf(agent domain.Agent, at time.Time) agentdesk.AgentEvent {
	return agentdesk.AgentEvent{
		RequestID: agent.ID,
		Status:    agent.Status,
		At:        at,
	}
}

func (uc *AgentUsecase) publish(ctx context.Context, agent domain.Agent) {
	if uc.signal == nil {
		return
	}
	err := uc.signal.PublishStatus(ctx, eventOf(agent, uc.now()))
	if err != nil {
		slog.WarnContext(ctx, "failed to publish status event",
			slog.String("requestId", agent.ID),
			slog.String("error", err.Error()),
			slog.String("module", "agent"),
		)
	}
}

// CreateRequest stores a new Processing record and dispatches it once.
// A failed dispatch is compensated by marking the record Failed. The
// returned agent reflects that state along with the DispatchError.
func (uc *AgentUsecase) CreateRequest(ctx context.Context, input domain.NewAgentInput) (domain.Agent, error) {
	ctx, span := tracer.Start(ctx, "Agent.Usecase.CreateRequest")
	defer span.End()

	agent, err := domain.NewAgent(uc.newID(), input, uc.now())
	if err != nil {
		span.RecordError(err)
		return domain.Agent{}, err
	}
	span.SetAttributes(
		attribute.String("RequestId", agent.ID),
		attribute.String("AgentType", string(agent.Type)),
	)

	created, err := uc.agents.Create(ctx, agent)
	if err != nil {
		span.RecordError(err)
		return domain.Agent{}, err
	}

	req := agentdesk.DispatchRequest{
		RequestID: created.ID,
		Company:   created.Company,
	}
	if created.Country != nil {
		req.Country = *created.Country
	}
	if created.Keyword != nil {
		req.Keyword = *created.Keyword
	}

	// the record exists from here on, so a caller that goes away must not
	// abort the dispatch or its compensating write.
	dctx := context.WithoutCancel(ctx)

	err = uc.processor.Dispatch(dctx, req)
	if err == nil {
		return created, nil
	}

	var dispatchErr *domain.DispatchError
	if !errors.As(err, &dispatchErr) {
		dispatchErr = &domain.DispatchError{Reason: "processor call failed", Err: err}
	}
	span.RecordError(dispatchErr)

	changed, ferr := uc.agents.MarkFailed(dctx, created.ID)
	if ferr != nil {
		span.RecordError(ferr)
		slog.ErrorContext(dctx, "compensating write failed, request left processing",
			slog.String("requestId", created.ID),
			slog.String("error", ferr.Error()),
			slog.String("module", "agent"),
		)
		return created, dispatchErr
	}
	if changed {
		_ = created.Fail()
		uc.publish(dctx, created)
	}

	return created, dispatchErr
}

// AttachOutput stores data as a new output blob and completes the record.
// Each call creates a new blob; the record points at the latest one.
func (uc *AgentUsecase) AttachOutput(ctx context.Context, requestID string, data json.RawMessage) (AttachResult, error) {
	ctx, span := tracer.Start(ctx, "Agent.Usecase.AttachOutput")
	defer span.End()
	span.SetAttributes(attribute.String("RequestId", requestID))

	if len(data) == 0 || !json.Valid(data) {
		err := domain.ValidationError{Field: "fileOutputData", Message: "output data must be valid JSON"}
		span.RecordError(err)
		return AttachResult{}, err
	}

	now := uc.now()
	meta := domain.ExtractOutputMeta(data)
	output := domain.Output{
		ID:        uc.newID(),
		RequestID: requestID,
		Data:      data,
		Source:    meta.Source,
		CreatedAt: now,
	}

	agent, err := uc.agents.AttachOutput(ctx, requestID, output, func(a *domain.Agent) error {
		return a.Complete(output.ID, meta, now)
	})
	if err != nil {
		span.RecordError(err)
		return AttachResult{}, err
	}

	uc.publish(ctx, agent)

	return AttachResult{RequestID: agent.ID, OutputID: output.ID}, nil
}

// RecordOtp stores otp on the record. The value is never checked against
// anything.
func (uc *AgentUsecase) RecordOtp(ctx context.Context, requestID, otp string) (OtpResult, error) {
	ctx, span := tracer.Start(ctx, "Agent.Usecase.RecordOtp")
	defer span.End()

	if err := domain.ValidateOtp(otp); err != nil {
		span.RecordError(err)
		return OtpResult{}, err
	}

	agent, err := uc.agents.UpdateOTP(ctx, requestID, otp)
	if err != nil {
		span.RecordError(err)
		return OtpResult{}, err
	}

	return OtpResult{RequestID: agent.ID, OTP: otp}, nil
}

func (uc *AgentUsecase) GetStatus(ctx context.Context, requestID string) (agentdesk.Status, error) {
	ctx, span := tracer.Start(ctx, "Agent.Usecase.GetStatus")
	defer span.End()

	agent, err := uc.agents.Get(ctx, requestID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if agent.IsDeleted {
		return "", domain.NotFoundError{Resource: "agent"}
	}

	return agent.Status, nil
}

// GetOutput resolves the record and its current output. A reference to a
// blob that does not exist is reported as ErrDanglingOutput.
func (uc *AgentUsecase) GetOutput(ctx context.Context, requestID string) (OutputView, error) {
	ctx, span := tracer.Start(ctx, "Agent.Usecase.GetOutput")
	defer span.End()

	agent, err := uc.agents.Get(ctx, requestID)
	if err != nil {
		span.RecordError(err)
		return OutputView{}, err
	}

	view := OutputView{Status: agent.Status, Agent: agent}
	if agent.OutputID == nil {
		return view, nil
	}

	output, err := uc.outputs.Get(ctx, *agent.OutputID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.ErrorContext(ctx, "dangling output reference",
				slog.String("requestId", agent.ID),
				slog.String("outputId", *agent.OutputID),
				slog.String("module", "agent"),
			)
			err = domain.ErrDanglingOutput
		}
		span.RecordError(err)
		return OutputView{}, err
	}
	view.Output = &output

	return view, nil
}

// ListRequests pages through visible records, newest first.
func (uc *AgentUsecase) ListRequests(ctx context.Context, filter domain.ListFilter, page, pageSize int) (ListResult, error) {
	ctx, span := tracer.Start(ctx, "Agent.Usecase.ListRequests")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	agents, total, err := uc.agents.List(ctx, filter, (page-1)*pageSize, pageSize)
	if err != nil {
		span.RecordError(err)
		return ListResult{}, err
	}

	return ListResult{
		Agents:       agents,
		Page:         page,
		TotalPages:   int(math.Ceil(float64(total) / float64(pageSize))),
		TotalRecords: total,
	}, nil
}

// SoftDeleteRequest hides the record from listings. The record and its
// output are kept.
func (uc *AgentUsecase) SoftDeleteRequest(ctx context.Context, requestID string) (domain.Agent, error) {
	ctx, span := tracer.Start(ctx, "Agent.Usecase.SoftDeleteRequest")
	defer span.End()

	agent, err := uc.agents.SoftDelete(ctx, requestID)
	if err != nil {
		span.RecordError(err)
		return domain.Agent{}, err
	}

	return agent, nil
}
