package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Bhavik-SSBDigital/docflow/model"
)

// MemoryDirectory is an in-memory Service for testing and single-node dev.
type MemoryDirectory struct {
	mu          sync.RWMutex
	branches    map[string]Branch
	departments map[string]Department
	users       map[string]User
	roles       map[string]Role
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		branches:    make(map[string]Branch),
		departments: make(map[string]Department),
		users:       make(map[string]User),
		roles:       make(map[string]Role),
	}
}

// SeedBranch adds or replaces a branch.
func (d *MemoryDirectory) SeedBranch(b Branch) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.branches[b.ID] = b
}

// SeedDepartment adds or replaces a department.
func (d *MemoryDirectory) SeedDepartment(dept Department) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.departments[dept.ID] = dept
}

// SeedUser adds or replaces a user.
func (d *MemoryDirectory) SeedUser(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

// SeedRole adds or replaces a role.
func (d *MemoryDirectory) SeedRole(r Role) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roles[r.ID] = r
}

// Branch retrieves a branch by id.
func (d *MemoryDirectory) Branch(_ context.Context, branchID string) (Branch, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	b, ok := d.branches[branchID]
	if !ok {
		return Branch{}, model.NewNotFoundError(fmt.Sprintf("branch %q not found", branchID))
	}
	return b, nil
}

// Department retrieves a department by id.
func (d *MemoryDirectory) Department(_ context.Context, departmentID string) (Department, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	dept, ok := d.departments[departmentID]
	if !ok {
		return Department{}, model.NewNotFoundError(fmt.Sprintf("department %q not found", departmentID))
	}
	return dept, nil
}

// User retrieves a user by id.
func (d *MemoryDirectory) User(_ context.Context, userID string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[userID]
	if !ok {
		return User{}, model.NewNotFoundError(fmt.Sprintf("user %q not found", userID))
	}
	return u, nil
}

// Role retrieves a role by id.
func (d *MemoryDirectory) Role(_ context.Context, roleID string) (Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.roles[roleID]
	if !ok {
		return Role{}, model.NewNotFoundError(fmt.Sprintf("role %q not found", roleID))
	}
	return r, nil
}

// Emails resolves addresses for the given users, skipping unknown ids.
func (d *MemoryDirectory) Emails(_ context.Context, userIDs []string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	emails := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if u, ok := d.users[id]; ok && u.Email != "" {
			emails = append(emails, u.Email)
		}
	}
	return emails, nil
}
