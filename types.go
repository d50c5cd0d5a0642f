package agentdesk

import (
	"encoding/json"
	"time"
)

type AgentType string

const (
	AgentTypeCorporateRegistry AgentType = "Corporate Registry Agent"
	AgentTypeFinancialData     AgentType = "Financial Data Agent"
	AgentTypeWebResearchMedia  AgentType = "Web Research Media Agent"
)

var AgentTypes = []AgentType{
	AgentTypeCorporateRegistry,
	AgentTypeFinancialData,
	AgentTypeWebResearchMedia,
}

type Status string

const (
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// IsTerminal reports whether no further transition can happen from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Response is the success envelope returned by every endpoint.
type Response[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type Agent struct {
	ID            string     `json:"id"`
	Type          AgentType  `json:"type"`
	Company       string     `json:"company"`
	Country       *string    `json:"country,omitempty"`
	SourceURL     *string    `json:"sourceUrl,omitempty"`
	SourceDocLink *string    `json:"sourceDocLink,omitempty"`
	Keyword       *string    `json:"keyword,omitempty"`
	Status        Status     `json:"status"`
	RequestTime   time.Time  `json:"requestTime"`
	ResponseTime  *time.Time `json:"responseTime"`
	OTP           *string    `json:"otp,omitempty"`
	IsFailed      int        `json:"isFailed"`
	IsDeleted     bool       `json:"isDeleted"`
	OutputID      *string    `json:"outputId"`
}

type AgentOutput struct {
	ID        string          `json:"id"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
	Source    *string         `json:"source,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// CreateAgentRequest only bounds field sizes here; required fields are
// checked per agent type when the request is created.
type CreateAgentRequest struct {
	Type      string `json:"type" validate:"max=64"`
	Company   string `json:"company" validate:"max=256"`
	Country   string `json:"country,omitempty" validate:"max=128"`
	SourceURL string `json:"sourceUrl,omitempty" validate:"max=2048"`
	Keyword   string `json:"keyword,omitempty" validate:"max=512"`
}

type CreateAgentResult struct {
	RequestID string `json:"requestId"`
	Agent     Agent  `json:"agent"`
}

// ListAgentsQuery keeps page and limit as raw strings so that an explicit
// zero can be told apart from an absent value.
type ListAgentsQuery struct {
	Page    string `query:"page"`
	Limit   string `query:"limit"`
	Type    string `query:"type"`
	Country string `query:"country"`
	Search  string `query:"search"`
}

type AgentList struct {
	Agents       []Agent `json:"agents"`
	CurrentPage  int     `json:"currentPage"`
	TotalPages   int     `json:"totalPages"`
	TotalRecords int64   `json:"totalRecords"`
}

type AgentStatus struct {
	RequestID string `json:"requestId"`
	Status    Status `json:"status"`
}

type AgentOutputResult struct {
	Status      Status       `json:"status"`
	Agent       Agent        `json:"agent"`
	AgentOutput *AgentOutput `json:"agentOutput"`
}

// CallbackRequest is posted by the processor once an analysis is done.
type CallbackRequest struct {
	FileOutputData json.RawMessage `json:"fileOutputData"`
}

type CallbackResult struct {
	RequestID string `json:"requestId"`
	OutputID  string `json:"outputId"`
}

type OtpUpdateRequest struct {
	RequestID string `json:"requestId" validate:"required,len=24,hexadecimal"`
	Otp       string `json:"otp" validate:"required,len=6,numeric"`
}

type OtpUpdateResult struct {
	RequestID string `json:"requestId"`
	Otp       string `json:"otp"`
}

// DispatchRequest is the body sent to the external processor.
type DispatchRequest struct {
	RequestID string `json:"requestId"`
	Company   string `json:"company"`
	Country   string `json:"country,omitempty"`
	Keyword   string `json:"keyword,omitempty"`
}

// DispatchAck is the synchronous acknowledgement of the processor.
type DispatchAck struct {
	Success bool   `json:"success,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// AgentEvent is published whenever a request reaches a terminal status.
type AgentEvent struct {
	RequestID string    `json:"requestId"`
	Status    Status    `json:"status"`
	At        time.Time `json:"at"`
}
