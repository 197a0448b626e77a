package models

import (
	"time"

	"github.com/gocql/gocql"
)

type AuditLog struct {
	ID         gocql.UUID `json:"id"`
	UserID     string     `json:"userId"`
	Action     string     `json:"action"`
	Resource   string     `json:"resource"`
	ResourceID string     `json:"resourceId,omitempty"`
	OldValue   string     `json:"oldValue,omitempty"`
	NewValue   string     `json:"newValue,omitempty"`
	IPAddress  string     `json:"ipAddress"`
	Success    bool       `json:"success"`
	ErrorMsg   string     `json:"errorMsg,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}
