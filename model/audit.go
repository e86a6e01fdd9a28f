package model

import "time"

// AuditDocument records what happened to one document during a step.
type AuditDocument struct {
	DocumentID string `json:"document_id"`
	IsSigned   bool   `json:"is_signed"`
	IsRejected bool   `json:"is_rejected"`
	IsUploaded bool   `json:"is_uploaded"`
	Reason     string `json:"reason,omitempty"`
}

// NextStepRef names the step a transition handed the process to, including
// the full authorized actor set at the time of the transition. It is the
// record used to resolve revert targets.
type NextStepRef struct {
	StepNumber int        `json:"step_number"`
	Work       string     `json:"work"`
	Actors     []ActorRef `json:"actors"`
}

// HasActor returns true if the given user is among the recorded actors.
func (n NextStepRef) HasActor(userID string) bool {
	for _, a := range n.Actors {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// AuditEntry is one append-only record of a completed step transition.
// NextStep is nil for terminal (completion) entries. Entries are never
// mutated or deleted; they are the authoritative history of the process.
type AuditEntry struct {
	ID           string          `json:"id"`
	ProcessID    string          `json:"process_id"`
	Time         time.Time       `json:"time"`
	CurrentStep  StepSnapshot    `json:"current_step"`
	NextStep     *NextStepRef    `json:"next_step,omitempty"`
	Reverted     bool            `json:"reverted"`
	Documents    []AuditDocument `json:"documents"`
	DepartmentID string          `json:"department_id,omitempty"`
	PublishedTo  []string        `json:"published_to,omitempty"`
}
