// Package directory is the read-side organizational store consumed by the
// workflow engine: branches, departments with their ordered workflow steps,
// users, and roles.
package directory

import (
	"context"

	"github.com/Bhavik-SSBDigital/docflow/model"
)

// Branch is an organizational branch. The head office branch controls
// sample-document scoping for inter-branch processes.
type Branch struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsHeadOffice bool   `json:"is_head_office"`
	HeadUserID   string `json:"head_user_id,omitempty"`
}

// Department owns one named workflow: an ordered step list with authorized
// actors per step.
type Department struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	BranchID   string       `json:"branch_id"`
	HeadUserID string       `json:"head_user_id,omitempty"`
	Steps      []model.Step `json:"steps"`
}

// User is a directory member.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	RoleID       string `json:"role_id,omitempty"`
	BranchID     string `json:"branch_id,omitempty"`
	DepartmentID string `json:"department_id,omitempty"`
}

// Role names a position users hold within a department.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Service resolves organizational entities for the engine and transport
// layers. Implementations return NOT_FOUND envelopes for missing entities.
type Service interface {
	Branch(ctx context.Context, branchID string) (Branch, error)
	Department(ctx context.Context, departmentID string) (Department, error)
	User(ctx context.Context, userID string) (User, error)
	Role(ctx context.Context, roleID string) (Role, error)

	// Emails resolves the email addresses for a set of users, skipping
	// unknown ids and users without an address.
	Emails(ctx context.Context, userIDs []string) ([]string, error)
}
