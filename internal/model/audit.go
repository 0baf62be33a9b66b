package model

import (
	"time"
)

// AuditLog is one complete record of a gateway HTTP request.
type AuditLog struct {
	ID        string `json:"id"`         // unique request ID (UUID)
	TenantID  string `json:"tenant_id"`  // resolved tenant, if any
	Method    string `json:"method"`     // HTTP method
	Path      string `json:"path"`       // request path
	IP        string `json:"ip"`         // client IP
	UserAgent string `json:"user_agent"` // client UA

	RequestBody   string `json:"request_body"` // redacted
	RequestHeader string `json:"request_header"`

	StatusCode   int    `json:"status_code"`
	ResponseBody string `json:"response_body"`
	LatencyMs    int64  `json:"latency_ms"`

	// Business context filled in by handlers/services: market ids, tx
	// hashes, upstream errors and the like.
	Context map[string]interface{} `json:"context"`

	CreatedAt time.Time `json:"created_at"`
}
