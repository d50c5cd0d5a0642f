package models

import (
	"time"

	"gorm.io/datatypes"
)

type Agent struct {
	ID            string       `json:"id" gorm:"primaryKey;type:char(24)"`
	Type          string       `json:"type" gorm:"type:text;not null;index"`
	Company       string       `json:"company" gorm:"type:text;not null"`
	Country       *string      `json:"country" gorm:"type:text;index"`
	SourceURL     *string      `json:"source_url" gorm:"type:text"`
	SourceDocLink *string      `json:"source_doc_link" gorm:"type:text"`
	Keyword       *string      `json:"keyword" gorm:"type:text"`
	Status        string       `json:"status" gorm:"type:text;not null;index"`
	RequestTime   time.Time    `json:"request_time" gorm:"->;<-:create;type:timestamp with time zone;not null;index:idx_agents_request_time,sort:desc"`
	ResponseTime  *time.Time   `json:"response_time" gorm:"type:timestamp with time zone"`
	OTP           *string      `json:"otp" gorm:"type:text"`
	IsFailed      int          `json:"is_failed" gorm:"type:smallint;not null;default:0"`
	IsDeleted     bool         `json:"is_deleted" gorm:"type:boolean;not null;default:false;index"`
	OutputID      *string      `json:"file_output_id" gorm:"type:char(24)"`
	Output        *AgentOutput `json:"-" gorm:"foreignKey:OutputID;references:ID;constraint:OnDelete:SET NULL;"`
}

type AgentOutput struct {
	ID        string         `json:"id" gorm:"primaryKey;type:char(24)"`
	RequestID string         `json:"request_id" gorm:"type:char(24);not null;index"`
	Data      datatypes.JSON `json:"data" gorm:"type:jsonb;not null"`
	Source    *string        `json:"source" gorm:"type:text"`
	CreatedAt time.Time      `json:"generated_at" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
