package directory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bhavik-SSBDigital/docflow/model"
)

// PgDirectory is a PostgreSQL-backed Service using pgx/v5. Department steps
// are stored as JSONB.
type PgDirectory struct {
	pool *pgxpool.Pool
}

// NewPgDirectory creates a new PostgreSQL directory.
func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

// Branch retrieves a branch by id.
func (d *PgDirectory) Branch(ctx context.Context, branchID string) (Branch, error) {
	var b Branch
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, is_head_office, COALESCE(head_user_id, '')
		FROM branches
		WHERE id = $1`,
		branchID,
	).Scan(&b.ID, &b.Name, &b.IsHeadOffice, &b.HeadUserID)
	if err == pgx.ErrNoRows {
		return Branch{}, model.NewNotFoundError(fmt.Sprintf("branch %q not found", branchID))
	}
	if err != nil {
		return Branch{}, fmt.Errorf("query branch: %w", err)
	}
	return b, nil
}

// Department retrieves a department and its workflow steps by id.
func (d *PgDirectory) Department(ctx context.Context, departmentID string) (Department, error) {
	var dept Department
	var stepsJSON []byte

	err := d.pool.QueryRow(ctx, `
		SELECT id, name, branch_id, COALESCE(head_user_id, ''), steps
		FROM departments
		WHERE id = $1`,
		departmentID,
	).Scan(&dept.ID, &dept.Name, &dept.BranchID, &dept.HeadUserID, &stepsJSON)
	if err == pgx.ErrNoRows {
		return Department{}, model.NewNotFoundError(fmt.Sprintf("department %q not found", departmentID))
	}
	if err != nil {
		return Department{}, fmt.Errorf("query department: %w", err)
	}

	if stepsJSON != nil {
		if err := json.Unmarshal(stepsJSON, &dept.Steps); err != nil {
			return Department{}, fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	return dept, nil
}

// User retrieves a user by id.
func (d *PgDirectory) User(ctx context.Context, userID string) (User, error) {
	var u User
	err := d.pool.QueryRow(ctx, `
		SELECT id, username, COALESCE(email, ''), COALESCE(role_id, ''),
		       COALESCE(branch_id, ''), COALESCE(department_id, '')
		FROM users
		WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.Username, &u.Email, &u.RoleID, &u.BranchID, &u.DepartmentID)
	if err == pgx.ErrNoRows {
		return User{}, model.NewNotFoundError(fmt.Sprintf("user %q not found", userID))
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// Role retrieves a role by id.
func (d *PgDirectory) Role(ctx context.Context, roleID string) (Role, error) {
	var r Role
	err := d.pool.QueryRow(ctx, `
		SELECT id, name
		FROM roles
		WHERE id = $1`,
		roleID,
	).Scan(&r.ID, &r.Name)
	if err == pgx.ErrNoRows {
		return Role{}, model.NewNotFoundError(fmt.Sprintf("role %q not found", roleID))
	}
	if err != nil {
		return Role{}, fmt.Errorf("query role: %w", err)
	}
	return r, nil
}

// Emails resolves addresses for the given users, skipping unknown ids and
// users without an address.
func (d *PgDirectory) Emails(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows, err := d.pool.Query(ctx, `
		SELECT email
		FROM users
		WHERE id = ANY($1) AND email IS NOT NULL AND email <> ''`,
		userIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query user emails: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}
