package process

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Bhavik-SSBDigital/docflow/model"
)

// PgStore is a PostgreSQL-backed process Store using pgx/v5. Workflow
// progress, embedded steps and audit documents are stored as JSONB; updates
// are guarded by a version-conditional UPDATE.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL process store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// CreateProcess inserts a new process.
func (s *PgStore) CreateProcess(ctx context.Context, proc model.Process) error {
	progressJSON, err := json.Marshal(proc.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	stepsJSON, err := json.Marshal(proc.EmbeddedSteps)
	if err != nil {
		return fmt.Errorf("marshal embedded steps: %w", err)
	}
	publishedJSON, err := json.Marshal(proc.PublishedTo)
	if err != nil {
		return fmt.Errorf("marshal published_to: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO processes (
			id, name, workflow_department_id, embedded_steps, is_inter_branch,
			max_receiver_step_number, progress, published_to, initiator_user_id,
			completed, completed_at, created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		proc.ID, proc.Name, nullable(proc.WorkflowDepartmentID), stepsJSON, proc.IsInterBranch,
		proc.MaxReceiverStepNumber, progressJSON, publishedJSON, proc.InitiatorUserID,
		proc.Completed, proc.CompletedAt, proc.CreatedAt, proc.UpdatedAt, proc.Version,
	)
	if err != nil {
		return fmt.Errorf("insert process: %w", err)
	}
	return nil
}

// GetProcess retrieves a process by id.
func (s *PgStore) GetProcess(ctx context.Context, processID string) (model.Process, error) {
	var proc model.Process
	var progressJSON, stepsJSON, publishedJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(workflow_department_id, ''), embedded_steps,
			is_inter_branch, max_receiver_step_number, progress, published_to,
			initiator_user_id, completed, completed_at, created_at, updated_at, version
		FROM processes
		WHERE id = $1`,
		processID,
	).Scan(
		&proc.ID, &proc.Name, &proc.WorkflowDepartmentID, &stepsJSON,
		&proc.IsInterBranch, &proc.MaxReceiverStepNumber, &progressJSON, &publishedJSON,
		&proc.InitiatorUserID, &proc.Completed, &proc.CompletedAt,
		&proc.CreatedAt, &proc.UpdatedAt, &proc.Version,
	)
	if err == pgx.ErrNoRows {
		return model.Process{}, model.NewNotFoundError(fmt.Sprintf("process %q not found", processID))
	}
	if err != nil {
		return model.Process{}, fmt.Errorf("query process: %w", err)
	}
	if err := unmarshalProcess(&proc, stepsJSON, progressJSON, publishedJSON); err != nil {
		return model.Process{}, err
	}
	return proc, nil
}

// UpdateProcess persists a process if the stored version still matches,
// then bumps the version. A version mismatch reports a conflict.
func (s *PgStore) UpdateProcess(ctx context.Context, proc model.Process) error {
	progressJSON, err := json.Marshal(proc.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	publishedJSON, err := json.Marshal(proc.PublishedTo)
	if err != nil {
		return fmt.Errorf("marshal published_to: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE processes
		SET progress = $1, published_to = $2, completed = $3, completed_at = $4,
			updated_at = now(), version = version + 1
		WHERE id = $5 AND version = $6`,
		progressJSON, publishedJSON, proc.Completed, proc.CompletedAt,
		proc.ID, proc.Version,
	)
	if err != nil {
		return fmt.Errorf("update process: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("process %q was modified concurrently", proc.ID),
		)
	}
	return nil
}

// ListProcesses returns processes matching the filters, newest first.
func (s *PgStore) ListProcesses(ctx context.Context, filters Filters) ([]model.Process, error) {
	query := `
		SELECT id, name, COALESCE(workflow_department_id, ''), embedded_steps,
			is_inter_branch, max_receiver_step_number, progress, published_to,
			initiator_user_id, completed, completed_at, created_at, updated_at, version
		FROM processes
		WHERE 1 = 1`
	args := []any{}

	if filters.DepartmentID != "" {
		args = append(args, filters.DepartmentID)
		query += fmt.Sprintf(` AND progress @> jsonb_build_array(jsonb_build_object('department_id', $%d::text))`, len(args))
	}
	if filters.Completed != nil {
		args = append(args, *filters.Completed)
		query += fmt.Sprintf(" AND completed = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		args = append(args, filters.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filters.Offset > 0 {
		args = append(args, filters.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query processes: %w", err)
	}
	defer rows.Close()

	var procs []model.Process
	for rows.Next() {
		var proc model.Process
		var progressJSON, stepsJSON, publishedJSON []byte
		if err := rows.Scan(
			&proc.ID, &proc.Name, &proc.WorkflowDepartmentID, &stepsJSON,
			&proc.IsInterBranch, &proc.MaxReceiverStepNumber, &progressJSON, &publishedJSON,
			&proc.InitiatorUserID, &proc.Completed, &proc.CompletedAt,
			&proc.CreatedAt, &proc.UpdatedAt, &proc.Version,
		); err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}
		if err := unmarshalProcess(&proc, stepsJSON, progressJSON, publishedJSON); err != nil {
			return nil, err
		}
		procs = append(procs, proc)
	}
	return procs, rows.Err()
}

// CountProcesses returns the total number of processes ever created.
func (s *PgStore) CountProcesses(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM processes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count processes: %w", err)
	}
	return count, nil
}

// AppendAudit appends an audit entry for a process.
func (s *PgStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	docsJSON, err := json.Marshal(entry.Documents)
	if err != nil {
		return fmt.Errorf("marshal audit documents: %w", err)
	}
	var nextStepJSON []byte
	if entry.NextStep != nil {
		nextStepJSON, err = json.Marshal(entry.NextStep)
		if err != nil {
			return fmt.Errorf("marshal next step: %w", err)
		}
	}
	currentJSON, err := json.Marshal(entry.CurrentStep)
	if err != nil {
		return fmt.Errorf("marshal current step: %w", err)
	}
	publishedJSON, err := json.Marshal(entry.PublishedTo)
	if err != nil {
		return fmt.Errorf("marshal published_to: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_entries (
			id, process_id, time, current_step, next_step, reverted,
			documents, department_id, published_to
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.ProcessID, entry.Time, currentJSON, nextStepJSON,
		entry.Reverted, docsJSON, nullable(entry.DepartmentID), publishedJSON,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// AuditEntries returns a process's audit entries in ascending time order.
func (s *PgStore) AuditEntries(ctx context.Context, processID string) ([]model.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, process_id, time, current_step, next_step, reverted,
			documents, COALESCE(department_id, ''), published_to
		FROM audit_entries
		WHERE process_id = $1
		ORDER BY time ASC, id ASC`,
		processID,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var entry model.AuditEntry
		var currentJSON, nextStepJSON, docsJSON, publishedJSON []byte
		if err := rows.Scan(
			&entry.ID, &entry.ProcessID, &entry.Time, &currentJSON, &nextStepJSON,
			&entry.Reverted, &docsJSON, &entry.DepartmentID, &publishedJSON,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal(currentJSON, &entry.CurrentStep); err != nil {
			return nil, fmt.Errorf("unmarshal current step: %w", err)
		}
		if len(nextStepJSON) > 0 {
			entry.NextStep = &model.NextStepRef{}
			if err := json.Unmarshal(nextStepJSON, entry.NextStep); err != nil {
				return nil, fmt.Errorf("unmarshal next step: %w", err)
			}
		}
		if len(docsJSON) > 0 {
			if err := json.Unmarshal(docsJSON, &entry.Documents); err != nil {
				return nil, fmt.Errorf("unmarshal audit documents: %w", err)
			}
		}
		if len(publishedJSON) > 0 {
			if err := json.Unmarshal(publishedJSON, &entry.PublishedTo); err != nil {
				return nil, fmt.Errorf("unmarshal published_to: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetWorkSheet retrieves one user's worksheet for a process.
func (s *PgStore) GetWorkSheet(ctx context.Context, processID, userID string) (model.WorkSheet, error) {
	ws := model.WorkSheet{ProcessID: processID, UserID: userID}
	var sheetJSON []byte

	err := s.pool.QueryRow(ctx, `
		SELECT sheet
		FROM worksheets
		WHERE process_id = $1 AND user_id = $2`,
		processID, userID,
	).Scan(&sheetJSON)
	if err == pgx.ErrNoRows {
		return model.WorkSheet{}, model.NewNotFoundError(
			fmt.Sprintf("no worksheet for user %q on process %q", userID, processID),
		)
	}
	if err != nil {
		return model.WorkSheet{}, fmt.Errorf("query worksheet: %w", err)
	}
	if err := json.Unmarshal(sheetJSON, &ws); err != nil {
		return model.WorkSheet{}, fmt.Errorf("unmarshal worksheet: %w", err)
	}
	ws.ProcessID = processID
	ws.UserID = userID
	return ws, nil
}

// PutWorkSheet adds or replaces a user's worksheet.
func (s *PgStore) PutWorkSheet(ctx context.Context, ws model.WorkSheet) error {
	sheetJSON, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("marshal worksheet: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO worksheets (process_id, user_id, sheet)
		VALUES ($1, $2, $3)
		ON CONFLICT (process_id, user_id) DO UPDATE SET sheet = $3`,
		ws.ProcessID, ws.UserID, sheetJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert worksheet: %w", err)
	}
	return nil
}

// DeleteWorkSheet removes a user's worksheet. Deleting a missing worksheet
// is not an error.
func (s *PgStore) DeleteWorkSheet(ctx context.Context, processID, userID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM worksheets
		WHERE process_id = $1 AND user_id = $2`,
		processID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete worksheet: %w", err)
	}
	return nil
}

// HealthCheck verifies database connectivity.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func unmarshalProcess(proc *model.Process, stepsJSON, progressJSON, publishedJSON []byte) error {
	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &proc.EmbeddedSteps); err != nil {
			return fmt.Errorf("unmarshal embedded steps: %w", err)
		}
	}
	if len(progressJSON) > 0 {
		if err := json.Unmarshal(progressJSON, &proc.Progress); err != nil {
			return fmt.Errorf("unmarshal progress: %w", err)
		}
	}
	if len(publishedJSON) > 0 {
		if err := json.Unmarshal(publishedJSON, &proc.PublishedTo); err != nil {
			return fmt.Errorf("unmarshal published_to: %w", err)
		}
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
