// Package health provides thread-safe health tracking for bridge components
// (transport, channels) and system-wide aggregation.
package health

import "time"

// Status represents the health state of a component or system
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"` // true if status is "healthy"
	Status      string    `json:"status"`  // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == "healthy"
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == "degraded"
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == "unhealthy"
}

// NewHealthy creates a new healthy status
func NewHealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   true,
		Status:    "healthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewDegraded creates a new degraded status
func NewDegraded(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Status:    "degraded",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewUnhealthy creates a new unhealthy status
func NewUnhealthy(component, message string) Status {
	return Status{
		Component: component,
		Healthy:   false,
		Status:    "unhealthy",
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Aggregate combines component statuses into one system status.
// Any unhealthy component makes the system unhealthy; any degraded
// component makes it degraded; otherwise it is healthy.
func Aggregate(systemName string, statuses []Status) Status {
	worst := "healthy"
	message := "all components healthy"

	for _, s := range statuses {
		switch {
		case s.IsUnhealthy():
			worst = "unhealthy"
			message = s.Component + ": " + s.Message
		case s.IsDegraded() && worst == "healthy":
			worst = "degraded"
			message = s.Component + ": " + s.Message
		}
		if worst == "unhealthy" {
			break
		}
	}

	return Status{
		Component:   systemName,
		Healthy:     worst == "healthy",
		Status:      worst,
		Message:     message,
		Timestamp:   time.Now(),
		SubStatuses: statuses,
	}
}
