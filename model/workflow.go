package model

import "fmt"

// Work kinds a step can require. Work names are free-form in the directory;
// these two carry special meaning for the forwardability decision.
const (
	WorkESign  = "e-sign"
	WorkUpload = "upload"
)

// ActorRef is a (user, role) pair authorized to act at a step.
type ActorRef struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
}

// Step is one entry of an ordered workflow. StepNumber is 1-based and
// contiguous within a workflow.
type Step struct {
	StepNumber int        `json:"step_number"`
	Work       string     `json:"work"`
	Actors     []ActorRef `json:"actors"`
}

// HasActor returns true if the given user is among the step's authorized
// actors.
func (s Step) HasActor(userID string) bool {
	for _, a := range s.Actors {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// ValidateSteps checks that steps are 1-based, contiguous, and each carry at
// least one authorized actor.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("workflow has no steps")
	}
	for i, s := range steps {
		if s.StepNumber != i+1 {
			return fmt.Errorf("step %d has number %d, want %d", i, s.StepNumber, i+1)
		}
		if s.Work == "" {
			return fmt.Errorf("step %d has no work kind", s.StepNumber)
		}
		if len(s.Actors) == 0 {
			return fmt.Errorf("step %d has no authorized actors", s.StepNumber)
		}
	}
	return nil
}

// StepSnapshot captures a step as it was executed by a specific actor. Stored
// in audit entries and document rejections.
type StepSnapshot struct {
	StepNumber  int    `json:"step_number"`
	Work        string `json:"work"`
	ActorUserID string `json:"actor_user_id"`
	ActorRoleID string `json:"actor_role_id,omitempty"`
}
