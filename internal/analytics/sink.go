// Package analytics increments daily workflow counters as a side effect of
// process transitions. Counter failures are reported to the caller and
// logged, never propagated to the user.
package analytics

import "context"

// Sink receives counter increments keyed by day and department.
type Sink interface {
	ProcessCreated(ctx context.Context, departmentID string) error
	ProcessCompleted(ctx context.Context, departmentID string) error
	ProcessReverted(ctx context.Context, departmentID string) error
}

// NoopSink discards all increments. Used when analytics is disabled.
type NoopSink struct{}

func (NoopSink) ProcessCreated(context.Context, string) error   { return nil }
func (NoopSink) ProcessCompleted(context.Context, string) error { return nil }
func (NoopSink) ProcessReverted(context.Context, string) error  { return nil }
