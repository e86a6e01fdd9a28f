package directory

import (
	"context"
	"testing"

	"github.com/Bhavik-SSBDigital/docflow/model"
)

func seededDirectory() *MemoryDirectory {
	d := NewMemoryDirectory()
	d.SeedBranch(Branch{ID: "b-ho", Name: "Head Office", IsHeadOffice: true, HeadUserID: "u-ho-head"})
	d.SeedBranch(Branch{ID: "b-east", Name: "East"})
	d.SeedRole(Role{ID: "r-clerk", Name: "Clerk"})
	d.SeedDepartment(Department{
		ID:       "d-accounts",
		Name:     "accounts",
		BranchID: "b-ho",
		Steps: []model.Step{
			{StepNumber: 1, Work: model.WorkESign, Actors: []model.ActorRef{{UserID: "u1", RoleID: "r-clerk"}}},
			{StepNumber: 2, Work: model.WorkESign, Actors: []model.ActorRef{{UserID: "u2", RoleID: "r-clerk"}}},
		},
	})
	d.SeedUser(User{ID: "u1", Username: "asha", Email: "asha@example.com", DepartmentID: "d-accounts"})
	d.SeedUser(User{ID: "u2", Username: "ravi", DepartmentID: "d-accounts"})
	return d
}

func TestMemoryDirectory_Department(t *testing.T) {
	d := seededDirectory()

	dept, err := d.Department(context.Background(), "d-accounts")
	if err != nil {
		t.Fatalf("Department() error = %v", err)
	}
	if dept.Name != "accounts" {
		t.Errorf("name = %q, want accounts", dept.Name)
	}
	if len(dept.Steps) != 2 {
		t.Errorf("steps = %d, want 2", len(dept.Steps))
	}
}

func TestMemoryDirectory_DepartmentNotFound(t *testing.T) {
	d := seededDirectory()

	_, err := d.Department(context.Background(), "d-missing")
	if !model.IsCode(err, model.ErrNotFound) {
		t.Fatalf("error = %v, want NOT_FOUND", err)
	}
}

func TestMemoryDirectory_BranchHeadOffice(t *testing.T) {
	d := seededDirectory()

	b, err := d.Branch(context.Background(), "b-ho")
	if err != nil {
		t.Fatalf("Branch() error = %v", err)
	}
	if !b.IsHeadOffice {
		t.Error("head office branch should carry the flag")
	}

	b, err = d.Branch(context.Background(), "b-east")
	if err != nil {
		t.Fatalf("Branch() error = %v", err)
	}
	if b.IsHeadOffice {
		t.Error("regional branch should not carry the head office flag")
	}
}

func TestMemoryDirectory_Emails_skipsUnknownAndEmpty(t *testing.T) {
	d := seededDirectory()

	emails, err := d.Emails(context.Background(), []string{"u1", "u2", "u-missing"})
	if err != nil {
		t.Fatalf("Emails() error = %v", err)
	}
	if len(emails) != 1 || emails[0] != "asha@example.com" {
		t.Errorf("emails = %v, want [asha@example.com]", emails)
	}
}
