package repository

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/agentdesk"
	"github.com/totegamma/agentdesk/internal/domain"
	"github.com/totegamma/agentdesk/internal/infra/database/models"
)

type AgentRepository struct {
	db *gorm.DB
}

func NewAgentRepository(db *gorm.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

func agentToDomain(m models.Agent) domain.Agent {
	return domain.Agent{
		ID:            m.ID,
		Type:          agentdesk.AgentType(m.Type),
		Company:       m.Company,
		Country:       m.Country,
		SourceURL:     m.SourceURL,
		SourceDocLink: m.SourceDocLink,
		Keyword:       m.Keyword,
		Status:        agentdesk.Status(m.Status),
		RequestTime:   m.RequestTime,
		ResponseTime:  m.ResponseTime,
		OTP:           m.OTP,
		IsFailed:      m.IsFailed,
		IsDeleted:     m.IsDeleted,
		OutputID:      m.OutputID,
	}
}

func agentFromDomain(a domain.Agent) models.Agent {
	return models.Agent{
		ID:            a.ID,
		Type:          string(a.Type),
		Company:       a.Company,
		Country:       a.Country,
		SourceURL:     a.SourceURL,
		SourceDocLink: a.SourceDocLink,
		Keyword:       a.Keyword,
		Status:        string(a.Status),
		RequestTime:   a.RequestTime,
		ResponseTime:  a.ResponseTime,
		OTP:           a.OTP,
		IsFailed:      a.IsFailed,
		IsDeleted:     a.IsDeleted,
		OutputID:      a.OutputID,
	}
}

func notFound(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFoundError{Resource: resource}
	}
	return err
}

// escapeLike escapes the LIKE wildcards of s, using postgres' default
// backslash escape character.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *AgentRepository) Create(ctx context.Context, agent domain.Agent) (domain.Agent, error) {
	m := agentFromDomain(agent)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Agent{}, errors.Wrap(err, "failed to create agent")
	}
	return agentToDomain(m), nil
}

func (r *AgentRepository) Get(ctx context.Context, id string) (domain.Agent, error) {
	var m models.Agent
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if err != nil {
		return domain.Agent{}, notFound(err, "agent")
	}
	return agentToDomain(m), nil
}

func (r *AgentRepository) MarkFailed(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Agent{}).
		Where("id = ? AND status = ?", id, string(agentdesk.StatusProcessing)).
		Updates(map[string]any{
			"status":    string(agentdesk.StatusFailed),
			"is_failed": 1,
		})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "failed to mark agent failed")
	}
	return res.RowsAffected > 0, nil
}

func (r *AgentRepository) updateReturning(ctx context.Context, id string, values map[string]any) (domain.Agent, error) {
	var m models.Agent
	res := r.db.WithContext(ctx).
		Model(&m).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Updates(values)
	if res.Error != nil {
		return domain.Agent{}, errors.Wrap(res.Error, "failed to update agent")
	}
	if res.RowsAffected == 0 {
		return domain.Agent{}, domain.NotFoundError{Resource: "agent"}
	}
	return agentToDomain(m), nil
}

func (r *AgentRepository) UpdateOTP(ctx context.Context, id string, otp string) (domain.Agent, error) {
	return r.updateReturning(ctx, id, map[string]any{"otp": otp})
}

func (r *AgentRepository) SoftDelete(ctx context.Context, id string) (domain.Agent, error) {
	return r.updateReturning(ctx, id, map[string]any{"is_deleted": true})
}

func (r *AgentRepository) List(ctx context.Context, filter domain.ListFilter, offset, limit int) ([]domain.Agent, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Agent{}).
		Where("is_failed = 0 AND is_deleted = false")

	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Country != "" {
		query = query.Where("LOWER(country) = LOWER(?)", filter.Country)
	}
	if filter.Search != "" {
		pattern := "%" + escapeLike(filter.Search) + "%"
		query = query.Where("(company ILIKE ? OR country ILIKE ? OR source_url ILIKE ?)", pattern, pattern, pattern)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "failed to count agents")
	}

	var rows []models.Agent
	err := query.
		Order("request_time DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list agents")
	}

	agents := make([]domain.Agent, 0, len(rows))
	for _, row := range rows {
		agents = append(agents, agentToDomain(row))
	}
	return agents, total, nil
}

func (r *AgentRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Agent, error) {
	var rows []models.Agent
	err := r.db.WithContext(ctx).
		Where("status = ? AND request_time < ?", string(agentdesk.StatusProcessing), before).
		Order("request_time ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stale agents")
	}

	agents := make([]domain.Agent, 0, len(rows))
	for _, row := range rows {
		agents = append(agents, agentToDomain(row))
	}
	return agents, nil
}

func (r *AgentRepository) AttachOutput(ctx context.Context, id string, output domain.Output, complete func(*domain.Agent) error) (domain.Agent, error) {
	var result domain.Agent

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Agent
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Take(&m).Error
		if err != nil {
			return notFound(err, "agent")
		}

		agent := agentToDomain(m)
		if err := complete(&agent); err != nil {
			return err
		}

		blob := outputFromDomain(output)
		if err := tx.Create(&blob).Error; err != nil {
			return errors.Wrap(err, "failed to create output")
		}

		err = tx.Model(&models.Agent{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":          string(agent.Status),
				"is_failed":       agent.IsFailed,
				"response_time":   agent.ResponseTime,
				"output_id":       agent.OutputID,
				"source_url":      agent.SourceURL,
				"source_doc_link": agent.SourceDocLink,
			}).Error
		if err != nil {
			return errors.Wrap(err, "failed to complete agent")
		}

		result = agent
		return nil
	})
	if err != nil {
		return domain.Agent{}, err
	}

	return result, nil
}
