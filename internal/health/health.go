// Package health provides system health monitoring, the operational
// HTTP surface, and a gRPC health service.
package health

import "time"

// SystemStatus represents the overall health state of the system or a
// component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ComponentHealth is the state of one dependency or subsystem.
type ComponentHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Detail string       `json:"detail,omitempty"`
}

// Report is the full system health report.
type Report struct {
	Status     SystemStatus      `json:"status"`
	Components []ComponentHealth `json:"components"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
