package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/totegamma/agentdesk"
	"github.com/totegamma/agentdesk/internal/domain"
	"github.com/totegamma/agentdesk/internal/infra/database/models"
)

const outputCacheTTL = 10 * time.Minute

// OutputRepository reads output blobs. Blobs never change once written,
// so cached entries are never invalidated.
type OutputRepository struct {
	db *gorm.DB
	mc *memcache.Client
}

func NewOutputRepository(db *gorm.DB, mc *memcache.Client) *OutputRepository {
	return &OutputRepository{db: db, mc: mc}
}

func outputCacheKey(id string) string {
	return "agentdesk:output:" + id
}

func outputToDomain(m models.AgentOutput) domain.Output {
	return domain.Output{
		ID:        m.ID,
		RequestID: m.RequestID,
		Data:      json.RawMessage(m.Data),
		Source:    m.Source,
		CreatedAt: m.CreatedAt,
	}
}

func outputFromDomain(o domain.Output) models.AgentOutput {
	return models.AgentOutput{
		ID:        o.ID,
		RequestID: o.RequestID,
		Data:      datatypes.JSON(o.Data),
		Source:    o.Source,
		CreatedAt: o.CreatedAt,
	}
}

func (r *OutputRepository) cached(ctx context.Context, id string) (domain.Output, bool) {
	if r.mc == nil {
		return domain.Output{}, false
	}

	item, err := r.mc.Get(outputCacheKey(id))
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			slog.DebugContext(ctx, "output cache get failed",
				slog.String("outputId", id),
				slog.String("error", err.Error()),
				slog.String("module", "repository"),
			)
		}
		return domain.Output{}, false
	}

	var wire agentdesk.AgentOutput
	if err := json.Unmarshal(item.Value, &wire); err != nil {
		return domain.Output{}, false
	}

	return domain.Output{
		ID:        wire.ID,
		RequestID: wire.RequestID,
		Data:      wire.Data,
		Source:    wire.Source,
		CreatedAt: wire.CreatedAt,
	}, true
}

func (r *OutputRepository) store(ctx context.Context, output domain.Output) {
	if r.mc == nil {
		return
	}

	value, err := json.Marshal(output.ToWire())
	if err != nil {
		return
	}

	err = r.mc.Set(&memcache.Item{
		Key:        outputCacheKey(output.ID),
		Value:      value,
		Expiration: int32(outputCacheTTL.Seconds()),
	})
	if err != nil {
		slog.DebugContext(ctx, "output cache set failed",
			slog.String("outputId", output.ID),
			slog.String("error", err.Error()),
			slog.String("module", "repository"),
		)
	}
}

func (r *OutputRepository) Get(ctx context.Context, id string) (domain.Output, error) {
	if output, ok := r.cached(ctx, id); ok {
		return output, nil
	}

	var m models.AgentOutput
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if err != nil {
		return domain.Output{}, notFound(err, "output")
	}

	output := outputToDomain(m)
	r.store(ctx, output)

	return output, nil
}
