// Package health models connectivity check results and mirrors them into the
// standard gRPC health service.
package health

import (
	"context"
	"fmt"
)

// Status is the tri-state reported to process supervisors.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Result is the outcome of a single check. Err holds the original cause of
// an unhealthy result, if any.
type Result struct {
	Status Status
	Detail string
	Err    error
}

func Healthy(detail string) Result {
	return Result{Status: StatusHealthy, Detail: detail}
}

func Unhealthy(reason string, cause error) Result {
	return Result{Status: StatusUnhealthy, Detail: reason, Err: cause}
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %s: %v", r.Status, r.Detail, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Status, r.Detail)
}

// Checker performs a liveness check. Check never returns an error; failures
// are reported as an unhealthy Result.
type Checker interface {
	Check(ctx context.Context) Result
}
