package usecase

import (
	"context"
	"log/slog"
	"time"
)

const reapBatchSize = 100

// Reaper fails requests that stayed Processing longer than staleAfter.
type Reaper struct {
	agents     AgentRepository
	signal     SignalPublisher
	staleAfter time.Duration
	now        func() time.Time
}

func NewReaper(agents AgentRepository, signal SignalPublisher, staleAfter time.Duration) *Reaper {
	return &Reaper{
		agents:     agents,
		signal:     signal,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Sweep runs one pass and returns how many records were failed.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Agent.Reaper.Sweep")
	defer span.End()

	before := r.now().Add(-r.staleAfter)
	reaped := 0

	for {
		stale, err := r.agents.ListStale(ctx, before, reapBatchSize)
		if err != nil {
			span.RecordError(err)
			return reaped, err
		}

		progressed := false
		for _, agent := range stale {
			changed, err := r.agents.MarkFailed(ctx, agent.ID)
			if err != nil {
				span.RecordError(err)
				return reaped, err
			}
			if !changed {
				continue
			}
			progressed = true
			reaped++

			if err := agent.Fail(); err == nil && r.signal != nil {
				if err := r.signal.PublishStatus(ctx, eventOf(agent, r.now())); err != nil {
					slog.WarnContext(ctx, "failed to publish status event",
						slog.String("requestId", agent.ID),
						slog.String("error", err.Error()),
						slog.String("module", "reaper"),
					)
				}
			}
		}

		if len(stale) < reapBatchSize || !progressed {
			return reaped, nil
		}
	}
}

// Run sweeps every interval until ctx is done. A zero staleAfter disables it.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	if r.staleAfter <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "reaper sweep failed",
					slog.String("error", err.Error()),
					slog.String("module", "reaper"),
				)
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "reaped stale requests",
					slog.Int("count", n),
					slog.String("module", "reaper"),
				)
			}
		}
	}
}
