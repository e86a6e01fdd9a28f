package process

import "context"

// AccessGranter propagates read access on a process's documents to the users
// a transition routes to, covering the documents' parent folder chain in the
// backing document store. Grants are best-effort side effects: a failed grant
// is logged, never surfaced, and repaired on the next transition.
type AccessGranter interface {
	GrantRead(ctx context.Context, userIDs []string, documentIDs []string) error
}

// NoopAccessGranter discards every grant. Used when no document store is
// wired, and as the test default.
type NoopAccessGranter struct{}

func (NoopAccessGranter) GrantRead(context.Context, []string, []string) error { return nil }
