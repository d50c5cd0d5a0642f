package domain

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/totegamma/agentdesk"
)

var otpPattern = regexp.MustCompile(`^[0-9]{6}$`)

// Agent is a tracked request.
type Agent struct {
	ID            string
	Type          agentdesk.AgentType
	Company       string
	Country       *string
	SourceURL     *string
	SourceDocLink *string
	Keyword       *string
	Status        agentdesk.Status
	RequestTime   time.Time
	ResponseTime  *time.Time
	OTP           *string
	IsFailed      int
	IsDeleted     bool
	OutputID      *string
}

// Output is an immutable result payload attached to one Agent.
type Output struct {
	ID        string
	RequestID string
	Data      json.RawMessage
	Source    *string
	CreatedAt time.Time
}

// NewAgentInput is the raw create payload.
type NewAgentInput struct {
	Type      string
	Company   string
	Country   string
	SourceURL string
	Keyword   string
}

// OutputMeta is what a completion carries over from the output payload.
type OutputMeta struct {
	Source        *string
	SourceDocLink *string
}

// ListFilter narrows ListRequests. Empty fields match everything.
type ListFilter struct {
	Type    string
	Country string
	Search  string
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// ValidateNewAgent checks the create payload.
func ValidateNewAgent(in NewAgentInput) error {
	typ := strings.TrimSpace(in.Type)
	company := strings.TrimSpace(in.Company)
	if typ == "" || company == "" {
		return ValidationError{Message: "Type and company are required"}
	}

	t, ok := agentdesk.ParseAgentType(typ)
	if !ok {
		return ValidationError{
			Field:   "type",
			Message: "Type must be one of: Corporate Registry Agent, Financial Data Agent, Web Research Media Agent",
		}
	}

	if t.RequiresCountry() && strings.TrimSpace(in.Country) == "" {
		return ValidationError{
			Field:   "country",
			Message: "Country is required for Corporate Registry Agent and Web Research Media Agent",
		}
	}

	return nil
}

// NewAgent validates the payload and builds a Processing record.
// Country is only kept for types that require one and sourceUrl only for
// web research requests.
func NewAgent(id string, in NewAgentInput, now time.Time) (Agent, error) {
	if err := ValidateNewAgent(in); err != nil {
		return Agent{}, err
	}

	t, _ := agentdesk.ParseAgentType(strings.TrimSpace(in.Type))

	agent := Agent{
		ID:          id,
		Type:        t,
		Company:     strings.TrimSpace(in.Company),
		Keyword:     optional(in.Keyword),
		Status:      agentdesk.StatusProcessing,
		RequestTime: now,
	}
	if t.RequiresCountry() {
		agent.Country = optional(in.Country)
	}
	if t == agentdesk.AgentTypeWebResearchMedia {
		agent.SourceURL = optional(in.SourceURL)
	}

	return agent, nil
}

// Complete moves the agent to Completed and points it at outputID.
// Repeated completions repoint the output but keep the first response time.
func (a *Agent) Complete(outputID string, meta OutputMeta, now time.Time) error {
	if a.Status == agentdesk.StatusFailed {
		return ErrTerminalState
	}

	a.Status = agentdesk.StatusCompleted
	a.IsFailed = 0
	a.OutputID = &outputID

	if a.ResponseTime == nil {
		at := now
		if at.Before(a.RequestTime) {
			at = a.RequestTime
		}
		a.ResponseTime = &at
	}

	if meta.Source != nil {
		a.SourceURL = meta.Source
	}
	if a.Type == agentdesk.AgentTypeFinancialData && meta.SourceDocLink != nil {
		a.SourceDocLink = meta.SourceDocLink
	}

	return nil
}

// Fail moves a Processing agent to Failed.
func (a *Agent) Fail() error {
	if a.Status != agentdesk.StatusProcessing {
		return ErrTerminalState
	}
	a.Status = agentdesk.StatusFailed
	a.IsFailed = 1
	return nil
}

// ValidateOtp checks the fixed length numeric otp format.
func ValidateOtp(otp string) error {
	if !otpPattern.MatchString(otp) {
		return ValidationError{Field: "otp", Message: "OTP must be exactly 6 digits"}
	}
	return nil
}

func stringField(m map[string]any, key string) *string {
	v, ok := m[key].(string)
	if !ok {
		return nil
	}
	return optional(v)
}

// ExtractOutputMeta reads the source fields of an output payload. Values
// nested under "metadata" win over top level ones. Payloads that are not
// JSON objects carry no metadata.
func ExtractOutputMeta(data json.RawMessage) OutputMeta {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return OutputMeta{}
	}

	meta := OutputMeta{
		Source:        stringField(doc, "source"),
		SourceDocLink: stringField(doc, "source_doc_link"),
	}

	if nested, ok := doc["metadata"].(map[string]any); ok {
		if s := stringField(nested, "source"); s != nil {
			meta.Source = s
		}
		if s := stringField(nested, "source_doc_link"); s != nil {
			meta.SourceDocLink = s
		}
	}

	return meta
}

// ToWire converts to the API representation.
func (a Agent) ToWire() agentdesk.Agent {
	return agentdesk.Agent{
		ID:            a.ID,
		Type:          a.Type,
		Company:       a.Company,
		Country:       a.Country,
		SourceURL:     a.SourceURL,
		SourceDocLink: a.SourceDocLink,
		Keyword:       a.Keyword,
		Status:        a.Status,
		RequestTime:   a.RequestTime,
		ResponseTime:  a.ResponseTime,
		OTP:           a.OTP,
		IsFailed:      a.IsFailed,
		IsDeleted:     a.IsDeleted,
		OutputID:      a.OutputID,
	}
}

func (o Output) ToWire() agentdesk.AgentOutput {
	return agentdesk.AgentOutput{
		ID:        o.ID,
		RequestID: o.RequestID,
		Data:      o.Data,
		Source:    o.Source,
		CreatedAt: o.CreatedAt,
	}
}
