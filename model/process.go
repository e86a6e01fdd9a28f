package model

import "time"

// Rejection records why and at which step a document was rejected.
type Rejection struct {
	Reason string       `json:"reason"`
	Step   StepSnapshot `json:"step"`
}

// DocumentContribution is the per-document sign/reject record inside a
// workflow progress. A given document id belongs to exactly one progress at
// any moment.
type DocumentContribution struct {
	DocumentID string     `json:"document_id"`
	CabinetNo  int        `json:"cabinet_no"`
	WorkName   string     `json:"work_name"`
	SignedBy   []string   `json:"signed_by,omitempty"`
	Rejection  *Rejection `json:"rejection,omitempty"`
}

// IsSignedBy returns true if the given user has signed the document.
func (d DocumentContribution) IsSignedBy(userID string) bool {
	for _, u := range d.SignedBy {
		if u == userID {
			return true
		}
	}
	return false
}

// WorkflowProgress is the step cursor of one participating department. Every
// process owns at least one progress: the handler's. Inter-branch processes
// additionally own one progress per connector department. The handler is the
// only progress that may complete the whole process.
type WorkflowProgress struct {
	DepartmentID       string                 `json:"department_id,omitempty"`
	IsHandler          bool                   `json:"is_handler"`
	Documents          []DocumentContribution `json:"documents"`
	CurrentStepNumber  int                    `json:"current_step_number"`
	LastStepDone       int                    `json:"last_step_done"`
	Completed          bool                   `json:"completed"`
	CurrentActorUserID string                 `json:"current_actor_user_id,omitempty"`
	Remarks            string                 `json:"remarks,omitempty"`
}

// Document returns a pointer into the progress's document list, or nil.
func (wp *WorkflowProgress) Document(documentID string) *DocumentContribution {
	for i := range wp.Documents {
		if wp.Documents[i].DocumentID == documentID {
			return &wp.Documents[i]
		}
	}
	return nil
}

// Process is a document package travelling through an approval workflow.
// Mutated only through engine operations; retained forever once completed.
type Process struct {
	ID                    string             `json:"id"`
	Name                  string             `json:"name"`
	WorkflowDepartmentID  string             `json:"workflow_department_id,omitempty"`
	EmbeddedSteps         []Step             `json:"embedded_steps,omitempty"`
	IsInterBranch         bool               `json:"is_inter_branch"`
	MaxReceiverStepNumber int                `json:"max_receiver_step_number,omitempty"`
	Progress              []WorkflowProgress `json:"progress"`
	PublishedTo           []string           `json:"published_to,omitempty"`
	InitiatorUserID       string             `json:"initiator_user_id"`
	Completed             bool               `json:"completed"`
	CompletedAt           *time.Time         `json:"completed_at,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
	Version               int                `json:"version"`
}

// IsAdHoc reports whether the process carries its own embedded step list
// instead of referencing a department workflow.
func (p *Process) IsAdHoc() bool {
	return len(p.EmbeddedSteps) > 0
}

// HandlerProgress returns the handler department's progress. Every
// well-formed process has exactly one.
func (p *Process) HandlerProgress() *WorkflowProgress {
	for i := range p.Progress {
		if p.Progress[i].IsHandler {
			return &p.Progress[i]
		}
	}
	return nil
}

// ProgressFor resolves the targeted progress for a department. An empty
// department id targets the handler; otherwise any progress carrying the
// department id matches, the handler included. Returns nil when no
// progress matches.
func (p *Process) ProgressFor(departmentID string) *WorkflowProgress {
	if departmentID == "" || departmentID == p.WorkflowDepartmentID {
		return p.HandlerProgress()
	}
	for i := range p.Progress {
		if p.Progress[i].DepartmentID == departmentID {
			return &p.Progress[i]
		}
	}
	return nil
}

// ConnectorsCompleted reports whether every non-handler progress has been
// approved by its branch head.
func (p *Process) ConnectorsCompleted() bool {
	for i := range p.Progress {
		if !p.Progress[i].IsHandler && !p.Progress[i].Completed {
			return false
		}
	}
	return true
}

// ProcessSummary is a lightweight representation used in list views.
type ProcessSummary struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	DepartmentID      string     `json:"department_id,omitempty"`
	IsInterBranch     bool       `json:"is_inter_branch"`
	CurrentStepNumber int        `json:"current_step_number"`
	Completed         bool       `json:"completed"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Summary converts a Process to its list representation. The cursor shown is
// the handler's.
func (p *Process) Summary() ProcessSummary {
	s := ProcessSummary{
		ID:            p.ID,
		Name:          p.Name,
		DepartmentID:  p.WorkflowDepartmentID,
		IsInterBranch: p.IsInterBranch,
		Completed:     p.Completed,
		CompletedAt:   p.CompletedAt,
		CreatedAt:     p.CreatedAt,
	}
	if hp := p.HandlerProgress(); hp != nil {
		s.CurrentStepNumber = hp.CurrentStepNumber
	}
	return s
}
