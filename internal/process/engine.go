// Package process implements the step engine: the state machine that routes
// a document package through ordered multi-actor workflow steps, across
// cooperating departments for inter-branch processes, with an append-only
// audit log and per-user scratch worksheets.
package process

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Bhavik-SSBDigital/docflow/internal/analytics"
	"github.com/Bhavik-SSBDigital/docflow/internal/config"
	"github.com/Bhavik-SSBDigital/docflow/internal/directory"
	"github.com/Bhavik-SSBDigital/docflow/internal/notify"
	"github.com/Bhavik-SSBDigital/docflow/internal/observability"
	"github.com/Bhavik-SSBDigital/docflow/model"
)

// Inbox is the queue the engine routes pending work through.
type Inbox interface {
	Enqueue(ctx context.Context, userID, processID, processName, departmentID string) error
	Notify(ctx context.Context, userID, processID, processName string) error
	Ack(ctx context.Context, userID, processID string) error
}

// Engine advances processes through their workflow steps. All mutations go
// through the store's optimistic update; side effects (inbox fan-out, email,
// analytics) are dispatched after commit and never fail the operation.
type Engine struct {
	store    Store
	dir      directory.Service
	inbox    Inbox
	notifier notify.Dispatcher
	granter  AccessGranter
	sink     analytics.Sink
	metrics  *observability.Metrics
	logger   *zap.Logger
	cfg      config.EngineConfig
	now      func() time.Time
	newID    func() string
}

// NewEngine creates a workflow engine. metrics may be nil in tests.
func NewEngine(
	store Store,
	dir directory.Service,
	inbox Inbox,
	notifier notify.Dispatcher,
	granter AccessGranter,
	sink analytics.Sink,
	metrics *observability.Metrics,
	logger *zap.Logger,
	cfg config.EngineConfig,
) *Engine {
	if granter == nil {
		granter = NoopAccessGranter{}
	}
	return &Engine{
		store:    store,
		dir:      dir,
		inbox:    inbox,
		notifier: notifier,
		granter:  granter,
		sink:     sink,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// NewDocument describes one document added to a process.
type NewDocument struct {
	DocumentID string `json:"document_id"`
	CabinetNo  int    `json:"cabinet_no"`
	WorkName   string `json:"work_name"`
}

// CreateInput is the request to start a new process.
type CreateInput struct {
	WorkflowDepartmentID   string        `json:"workflow_department_id,omitempty"`
	EmbeddedSteps          []model.Step  `json:"embedded_steps,omitempty"`
	IsInterBranch          bool          `json:"is_inter_branch"`
	ConnectorDepartmentIDs []string      `json:"connector_department_ids,omitempty"`
	Documents              []NewDocument `json:"documents"`
	MaxReceiverStepNumber  int           `json:"max_receiver_step_number,omitempty"`
	Remarks                string        `json:"remarks,omitempty"`
}

// ForwardInput is the request to advance a process by one step.
type ForwardInput struct {
	ProcessID         string `json:"-"`
	DepartmentID      string `json:"department_id,omitempty"`
	CurrentStepNumber int    `json:"current_step_number,omitempty"`
	NextStepNumber    int    `json:"next_step_number,omitempty"`
	Remarks           string `json:"remarks,omitempty"`
	CompleteNow       bool   `json:"complete_now,omitempty"`
}

// ForwardResult reports whether the forward completed the process.
type ForwardResult struct {
	Completed bool `json:"completed"`
}

// RevertInput is the request to send a process back to an earlier step.
type RevertInput struct {
	ProcessID    string `json:"-"`
	DepartmentID string `json:"department_id,omitempty"`
	Remarks      string `json:"remarks,omitempty"`
}

// ProcessView is the full process state plus the caller's computed decision.
type ProcessView struct {
	Process model.Process `json:"process"`
	Decision
}

// Create starts a new process from an initial document package. The
// initiator's worksheet is seeded with every document as uploaded, so the
// first forward's audit entry records the package intake.
func (e *Engine) Create(ctx context.Context, rctx *model.RequestContext, input CreateInput) (model.Process, error) {
	if len(input.Documents) == 0 {
		return model.Process{}, model.NewBadRequestError("process needs at least one document")
	}

	// Resolve the handler workflow: a department's named steps, or embedded
	// ad-hoc steps.
	var handlerDept directory.Department
	var steps []model.Step
	switch {
	case input.WorkflowDepartmentID != "":
		dept, err := e.dir.Department(ctx, input.WorkflowDepartmentID)
		if err != nil {
			return model.Process{}, err
		}
		if err := model.ValidateSteps(dept.Steps); err != nil {
			return model.Process{}, model.NewIntegrityError(
				fmt.Sprintf("department %q workflow invalid: %v", dept.ID, err),
			)
		}
		handlerDept = dept
		steps = dept.Steps
	case len(input.EmbeddedSteps) > 0:
		if err := model.ValidateSteps(input.EmbeddedSteps); err != nil {
			return model.Process{}, model.NewBadRequestError(err.Error())
		}
		steps = input.EmbeddedSteps
	default:
		return model.Process{}, model.NewBadRequestError("either a workflow department or embedded steps are required")
	}

	if input.IsInterBranch && len(input.ConnectorDepartmentIDs) == 0 {
		return model.Process{}, model.NewBadRequestError("inter-branch process needs connector departments")
	}

	count, err := e.store.CountProcesses(ctx)
	if err != nil {
		return model.Process{}, err
	}
	name := fmt.Sprintf("adhoc_%d", count+1)
	if handlerDept.ID != "" {
		name = fmt.Sprintf("%s_%d", handlerDept.Name, count+1)
	}

	docs := make([]model.DocumentContribution, 0, len(input.Documents))
	for _, d := range input.Documents {
		docs = append(docs, model.DocumentContribution{
			DocumentID: d.DocumentID,
			CabinetNo:  d.CabinetNo,
			WorkName:   d.WorkName,
		})
	}

	now := e.now().UTC()
	proc := model.Process{
		ID:                    e.newID(),
		Name:                  name,
		WorkflowDepartmentID:  input.WorkflowDepartmentID,
		EmbeddedSteps:         input.EmbeddedSteps,
		IsInterBranch:         input.IsInterBranch,
		MaxReceiverStepNumber: input.MaxReceiverStepNumber,
		InitiatorUserID:       rctx.SubjectID,
		CreatedAt:             now,
		UpdatedAt:             now,
		Version:               1,
		Progress: []model.WorkflowProgress{{
			DepartmentID:      input.WorkflowDepartmentID,
			IsHandler:         true,
			Documents:         docs,
			CurrentStepNumber: 1,
			Remarks:           input.Remarks,
		}},
	}

	// Connector documents: when the handler sits in the head office, the
	// initial package is shared with every connector as read-only samples;
	// otherwise connectors start with an empty subset scoped to the
	// initiating department.
	shareSamples := false
	if input.IsInterBranch && handlerDept.BranchID != "" {
		branch, err := e.dir.Branch(ctx, handlerDept.BranchID)
		if err != nil {
			return model.Process{}, err
		}
		shareSamples = branch.IsHeadOffice
	}
	for _, deptID := range input.ConnectorDepartmentIDs {
		if deptID == input.WorkflowDepartmentID {
			continue
		}
		if _, err := e.dir.Department(ctx, deptID); err != nil {
			return model.Process{}, err
		}
		connector := model.WorkflowProgress{
			DepartmentID:      deptID,
			CurrentStepNumber: 1,
		}
		if shareSamples {
			connector.Documents = append([]model.DocumentContribution(nil), docs...)
		}
		proc.Progress = append(proc.Progress, connector)
		proc.PublishedTo = append(proc.PublishedTo, deptID)
	}

	if err := e.store.CreateProcess(ctx, proc); err != nil {
		return model.Process{}, err
	}

	// Seed the initiator's worksheet: the whole package counts as uploaded
	// at step one.
	ws := model.WorkSheet{ProcessID: proc.ID, UserID: rctx.SubjectID}
	for _, d := range input.Documents {
		ws.UploadedDocuments = append(ws.UploadedDocuments, d.DocumentID)
	}
	if err := e.store.PutWorkSheet(ctx, ws); err != nil {
		return model.Process{}, err
	}

	// Route step one of every progress.
	for i := range proc.Progress {
		progress := &proc.Progress[i]
		progressSteps := steps
		if !progress.IsHandler {
			dept, err := e.dir.Department(ctx, progress.DepartmentID)
			if err != nil {
				continue
			}
			progressSteps = dept.Steps
		}
		if len(progressSteps) == 0 {
			continue
		}
		var recipients []string
		for _, a := range progressSteps[0].Actors {
			recipients = append(recipients, a.UserID)
		}
		e.fanOut(ctx, &proc, progress.DepartmentID, recipients, notify.ForwardMessage(proc.Name, nil))
	}

	e.sideEffect("analytics", func() error {
		return e.sink.ProcessCreated(ctx, proc.WorkflowDepartmentID)
	})
	if e.metrics != nil {
		e.metrics.ProcessCreationsTotal.WithLabelValues(e.deptLabel(&proc)).Inc()
		e.metrics.ActiveProcesses.Inc()
	}
	e.logger.Info("process created",
		zap.String("process_id", proc.ID),
		zap.String("name", proc.Name),
		zap.Bool("inter_branch", proc.IsInterBranch),
	)
	return proc, nil
}

// Forward advances the targeted progress by one step, or completes the
// process when the handler reaches its final step.
func (e *Engine) Forward(ctx context.Context, rctx *model.RequestContext, input ForwardInput) (ForwardResult, error) {
	proc, err := e.store.GetProcess(ctx, input.ProcessID)
	if err != nil {
		return ForwardResult{}, err
	}
	if proc.Completed {
		return ForwardResult{}, model.NewPreconditionError(
			fmt.Sprintf("process %q is already completed", proc.ID),
		)
	}

	progress, err := e.resolveProgress(&proc, input.DepartmentID)
	if err != nil {
		return ForwardResult{}, err
	}
	if progress.Completed {
		return ForwardResult{}, model.NewPreconditionError(
			fmt.Sprintf("workflow for department %q is already completed", progress.DepartmentID),
		)
	}

	steps, err := e.resolveSteps(ctx, &proc, progress)
	if err != nil {
		return ForwardResult{}, err
	}

	cur := progress.CurrentStepNumber
	if input.CurrentStepNumber != 0 && input.CurrentStepNumber != cur {
		return ForwardResult{}, model.NewConflictError(
			fmt.Sprintf("process %q moved on: step %d requested, step %d current", proc.ID, input.CurrentStepNumber, cur),
		)
	}
	if cur < 1 || cur > len(steps) {
		return ForwardResult{}, model.NewIntegrityError(
			fmt.Sprintf("process %q cursor %d outside workflow of %d steps", proc.ID, cur, len(steps)),
		)
	}

	step := steps[cur-1]
	userID := rctx.SubjectID
	if !step.HasActor(userID) && progress.CurrentActorUserID != userID {
		return ForwardResult{}, model.NewPreconditionError(
			fmt.Sprintf("user %q is not authorized for step %d", userID, cur),
		)
	}

	ws, err := e.worksheet(ctx, proc.ID, userID)
	if err != nil {
		return ForwardResult{}, err
	}
	now := e.now().UTC()

	// Completion rule: only the handler workflow may complete the process.
	if progress.IsHandler && (cur == len(steps) || input.CompleteNow) {
		if e.cfg.RequireConnectorApproval && !proc.ConnectorsCompleted() {
			return ForwardResult{}, model.NewPreconditionError(
				"connector departments have not all approved",
			)
		}

		entry := model.AuditEntry{
			ID:           e.newID(),
			ProcessID:    proc.ID,
			Time:         now,
			CurrentStep:  e.snapshot(step, rctx),
			Reverted:     false,
			Documents:    ws.Flush(),
			DepartmentID: progress.DepartmentID,
			PublishedTo:  proc.PublishedTo,
		}
		if err := e.store.AppendAudit(ctx, entry); err != nil {
			return ForwardResult{}, err
		}

		progress.LastStepDone = cur
		progress.Completed = true
		if input.Remarks != "" {
			progress.Remarks = input.Remarks
		}
		proc.Completed = true
		proc.CompletedAt = &now
		if err := e.store.UpdateProcess(ctx, proc); err != nil {
			return ForwardResult{}, err
		}
		if err := e.store.DeleteWorkSheet(ctx, proc.ID, userID); err != nil {
			return ForwardResult{}, err
		}

		e.sideEffect("inbox", func() error { return e.inbox.Ack(ctx, userID, proc.ID) })
		e.routeCompletion(ctx, &proc)
		e.sideEffect("analytics", func() error {
			return e.sink.ProcessCompleted(ctx, proc.WorkflowDepartmentID)
		})
		if e.metrics != nil {
			e.metrics.ProcessCompletionsTotal.WithLabelValues(e.deptLabel(&proc)).Inc()
			e.metrics.ActiveProcesses.Dec()
		}
		e.logger.Info("process completed",
			zap.String("process_id", proc.ID),
			zap.String("subject_id", userID),
		)
		return ForwardResult{Completed: true}, nil
	}

	// A mandated receiver step cannot be forwarded past.
	if proc.MaxReceiverStepNumber != 0 && cur == proc.MaxReceiverStepNumber {
		return ForwardResult{}, model.NewPreconditionError(
			fmt.Sprintf("step %d is the mandated receiver step", cur),
		)
	}

	next := cur + 1
	if input.NextStepNumber != 0 {
		next = input.NextStepNumber
	}
	if next > len(steps) && !progress.IsHandler {
		return ForwardResult{}, model.NewPreconditionError(
			fmt.Sprintf("department %q workflow is at its final step; awaiting branch head approval", progress.DepartmentID),
		)
	}
	if next < 1 || next > len(steps) {
		return ForwardResult{}, model.NewBadRequestError(
			fmt.Sprintf("next step %d outside workflow of %d steps", next, len(steps)),
		)
	}
	nextStep := steps[next-1]

	entry := model.AuditEntry{
		ID:          e.newID(),
		ProcessID:   proc.ID,
		Time:        now,
		CurrentStep: e.snapshot(step, rctx),
		NextStep: &model.NextStepRef{
			StepNumber: next,
			Work:       nextStep.Work,
			Actors:     nextStep.Actors,
		},
		Reverted:     false,
		Documents:    ws.Flush(),
		DepartmentID: progress.DepartmentID,
		PublishedTo:  proc.PublishedTo,
	}
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		return ForwardResult{}, err
	}

	// Sticky assignment: if anyone already executed the next step, route
	// back to them; otherwise broadcast to every authorized actor.
	entries, err := e.store.AuditEntries(ctx, proc.ID)
	if err != nil {
		return ForwardResult{}, err
	}
	var recipients []string
	if pinned, ok := ResolvePinnedActor(entries, progress.DepartmentID, next); ok {
		recipients = []string{pinned}
		progress.CurrentActorUserID = pinned
	} else {
		for _, a := range nextStep.Actors {
			recipients = append(recipients, a.UserID)
		}
		progress.CurrentActorUserID = ""
		if len(recipients) == 1 {
			progress.CurrentActorUserID = recipients[0]
		}
	}

	progress.LastStepDone = cur
	progress.CurrentStepNumber = next
	if input.Remarks != "" {
		progress.Remarks = input.Remarks
	}
	if err := e.store.UpdateProcess(ctx, proc); err != nil {
		return ForwardResult{}, err
	}
	if err := e.store.DeleteWorkSheet(ctx, proc.ID, userID); err != nil {
		return ForwardResult{}, err
	}

	e.sideEffect("inbox", func() error { return e.inbox.Ack(ctx, userID, proc.ID) })
	e.fanOut(ctx, &proc, progress.DepartmentID, recipients, notify.ForwardMessage(proc.Name, nil))
	if e.metrics != nil {
		e.metrics.ProcessForwardsTotal.WithLabelValues(e.deptLabel(&proc)).Inc()
		e.metrics.StepDuration.WithLabelValues(e.deptLabel(&proc)).Observe(now.Sub(proc.UpdatedAt).Seconds())
	}
	e.logger.Info("process forwarded",
		zap.String("process_id", proc.ID),
		zap.String("subject_id", userID),
		zap.Int("from_step", cur),
		zap.Int("to_step", next),
	)
	return ForwardResult{Completed: false}, nil
}

// Revert sends the targeted progress back to the step of the most recent
// audit entry that handed the process to the acting user. Reverting the
// first step is always rejected: the initiator has no one to revert to.
func (e *Engine) Revert(ctx context.Context, rctx *model.RequestContext, input RevertInput) error {
	proc, err := e.store.GetProcess(ctx, input.ProcessID)
	if err != nil {
		return err
	}
	if proc.Completed {
		return model.NewPreconditionError(fmt.Sprintf("process %q is already completed", proc.ID))
	}

	progress, err := e.resolveProgress(&proc, input.DepartmentID)
	if err != nil {
		return err
	}
	if progress.Completed {
		return model.NewPreconditionError(
			fmt.Sprintf("workflow for department %q is already completed", progress.DepartmentID),
		)
	}

	steps, err := e.resolveSteps(ctx, &proc, progress)
	if err != nil {
		return err
	}
	cur := progress.CurrentStepNumber
	if cur == 1 {
		return model.NewPreconditionError("the first step of a process cannot be reverted")
	}
	if cur < 1 || cur > len(steps) {
		return model.NewIntegrityError(
			fmt.Sprintf("process %q cursor %d outside workflow of %d steps", proc.ID, cur, len(steps)),
		)
	}

	userID := rctx.SubjectID
	entries, err := e.store.AuditEntries(ctx, proc.ID)
	if err != nil {
		return err
	}
	target, ok := LocateRevertTarget(entries, progress.DepartmentID, userID)
	if !ok {
		return model.NewPreconditionError(
			fmt.Sprintf("no prior step handed process %q to user %q", proc.ID, userID),
		)
	}

	ws, err := e.worksheet(ctx, proc.ID, userID)
	if err != nil {
		return err
	}
	now := e.now().UTC()
	recipient := target.CurrentStep.ActorUserID

	entry := model.AuditEntry{
		ID:          e.newID(),
		ProcessID:   proc.ID,
		Time:        now,
		CurrentStep: e.snapshot(steps[cur-1], rctx),
		NextStep: &model.NextStepRef{
			StepNumber: target.CurrentStep.StepNumber,
			Work:       target.CurrentStep.Work,
			Actors:     []model.ActorRef{{UserID: recipient, RoleID: target.CurrentStep.ActorRoleID}},
		},
		Reverted:     true,
		Documents:    ws.Flush(),
		DepartmentID: progress.DepartmentID,
		PublishedTo:  proc.PublishedTo,
	}
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		return err
	}

	progress.CurrentStepNumber = target.CurrentStep.StepNumber
	progress.LastStepDone = target.CurrentStep.StepNumber - 1
	progress.CurrentActorUserID = recipient
	if input.Remarks != "" {
		progress.Remarks = input.Remarks
	}
	if err := e.store.UpdateProcess(ctx, proc); err != nil {
		return err
	}
	if err := e.store.DeleteWorkSheet(ctx, proc.ID, userID); err != nil {
		return err
	}

	e.sideEffect("inbox", func() error { return e.inbox.Ack(ctx, userID, proc.ID) })
	e.fanOut(ctx, &proc, progress.DepartmentID, []string{recipient},
		notify.RevertMessage(proc.Name, input.Remarks, nil))
	e.sideEffect("analytics", func() error {
		return e.sink.ProcessReverted(ctx, proc.WorkflowDepartmentID)
	})
	if e.metrics != nil {
		e.metrics.ProcessRevertsTotal.WithLabelValues(e.deptLabel(&proc)).Inc()
	}
	e.logger.Info("process reverted",
		zap.String("process_id", proc.ID),
		zap.String("subject_id", userID),
		zap.Int("from_step", cur),
		zap.Int("to_step", target.CurrentStep.StepNumber),
	)
	return nil
}

// Pick claims the current step of the targeted progress for the requesting
// user. Picking twice by the same user is a no-op; a second user overwrites
// (last writer wins), with the optimistic update guarding lost writes.
func (e *Engine) Pick(ctx context.Context, rctx *model.RequestContext, processID, departmentID string) error {
	proc, err := e.store.GetProcess(ctx, processID)
	if err != nil {
		return err
	}
	if proc.Completed {
		return model.NewPreconditionError(fmt.Sprintf("process %q is already completed", proc.ID))
	}
	progress, err := e.resolveProgress(&proc, departmentID)
	if err != nil {
		return err
	}
	if progress.Completed {
		return model.NewPreconditionError(
			fmt.Sprintf("workflow for department %q is already completed", progress.DepartmentID),
		)
	}
	if progress.CurrentActorUserID == rctx.SubjectID {
		return nil
	}

	progress.CurrentActorUserID = rctx.SubjectID
	if err := e.store.UpdateProcess(ctx, proc); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.ProcessPicksTotal.Inc()
	}
	return nil
}

// Approve is the connector branch head's sign-off: the connector progress
// completes and a terminal audit entry is recorded for its department.
// Approval never completes the whole process; only the handler's forward
// does that.
func (e *Engine) Approve(ctx context.Context, rctx *model.RequestContext, processID, departmentID string) error {
	proc, progress, dept, err := e.connectorForHead(ctx, rctx, processID, departmentID)
	if err != nil {
		return err
	}
	if progress.Completed {
		return model.NewPreconditionError(
			fmt.Sprintf("department %q has already approved process %q", departmentID, processID),
		)
	}

	cur := progress.CurrentStepNumber
	if cur < 1 || cur > len(dept.Steps) {
		return model.NewIntegrityError(
			fmt.Sprintf("process %q connector cursor %d outside workflow of %d steps", proc.ID, cur, len(dept.Steps)),
		)
	}

	ws, err := e.worksheet(ctx, proc.ID, rctx.SubjectID)
	if err != nil {
		return err
	}
	entry := model.AuditEntry{
		ID:           e.newID(),
		ProcessID:    proc.ID,
		Time:         e.now().UTC(),
		CurrentStep:  e.snapshot(dept.Steps[cur-1], rctx),
		Reverted:     false,
		Documents:    ws.Flush(),
		DepartmentID: departmentID,
		PublishedTo:  proc.PublishedTo,
	}
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		return err
	}

	progress.Completed = true
	progress.LastStepDone = cur
	if err := e.store.UpdateProcess(ctx, proc); err != nil {
		return err
	}
	if err := e.store.DeleteWorkSheet(ctx, proc.ID, rctx.SubjectID); err != nil {
		return err
	}

	e.sideEffect("inbox", func() error { return e.inbox.Ack(ctx, rctx.SubjectID, proc.ID) })
	e.sideEffect("inbox", func() error {
		return e.inbox.Notify(ctx, proc.InitiatorUserID, proc.ID, proc.Name)
	})
	e.logger.Info("connector approved",
		zap.String("process_id", proc.ID),
		zap.String("department_id", departmentID),
		zap.String("subject_id", rctx.SubjectID),
	)
	return nil
}

// RejectConnector resets the connector progress to step one and re-routes it
// to that department's step-one actor. Other connectors and the handler are
// unaffected.
func (e *Engine) RejectConnector(ctx context.Context, rctx *model.RequestContext, processID, departmentID, remarks string) error {
	proc, progress, dept, err := e.connectorForHead(ctx, rctx, processID, departmentID)
	if err != nil {
		return err
	}

	cur := progress.CurrentStepNumber
	if cur < 1 || cur > len(dept.Steps) {
		cur = len(dept.Steps)
	}
	firstStep := dept.Steps[0]

	ws, err := e.worksheet(ctx, proc.ID, rctx.SubjectID)
	if err != nil {
		return err
	}
	entry := model.AuditEntry{
		ID:          e.newID(),
		ProcessID:   proc.ID,
		Time:        e.now().UTC(),
		CurrentStep: e.snapshot(dept.Steps[cur-1], rctx),
		NextStep: &model.NextStepRef{
			StepNumber: 1,
			Work:       firstStep.Work,
			Actors:     firstStep.Actors,
		},
		Reverted:     true,
		Documents:    ws.Flush(),
		DepartmentID: departmentID,
		PublishedTo:  proc.PublishedTo,
	}
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		return err
	}

	entries, err := e.store.AuditEntries(ctx, proc.ID)
	if err != nil {
		return err
	}
	var recipients []string
	if pinned, ok := ResolvePinnedActor(entries, departmentID, 1); ok {
		recipients = []string{pinned}
		progress.CurrentActorUserID = pinned
	} else {
		for _, a := range firstStep.Actors {
			recipients = append(recipients, a.UserID)
		}
		progress.CurrentActorUserID = ""
		if len(recipients) == 1 {
			progress.CurrentActorUserID = recipients[0]
		}
	}

	progress.CurrentStepNumber = 1
	progress.LastStepDone = 0
	progress.Completed = false
	progress.Remarks = remarks
	if err := e.store.UpdateProcess(ctx, proc); err != nil {
		return err
	}
	if err := e.store.DeleteWorkSheet(ctx, proc.ID, rctx.SubjectID); err != nil {
		return err
	}

	e.sideEffect("inbox", func() error { return e.inbox.Ack(ctx, rctx.SubjectID, proc.ID) })
	e.fanOut(ctx, &proc, departmentID, recipients, notify.RevertMessage(proc.Name, remarks, nil))
	e.sideEffect("analytics", func() error {
		return e.sink.ProcessReverted(ctx, departmentID)
	})
	if e.metrics != nil {
		e.metrics.ProcessRevertsTotal.WithLabelValues(departmentID).Inc()
	}
	e.logger.Info("connector rejected",
		zap.String("process_id", proc.ID),
		zap.String("department_id", departmentID),
		zap.String("subject_id", rctx.SubjectID),
	)
	return nil
}

// Get returns the full process plus the caller's computed decision for the
// targeted progress.
func (e *Engine) Get(ctx context.Context, rctx *model.RequestContext, processID, departmentID string) (ProcessView, error) {
	proc, err := e.store.GetProcess(ctx, processID)
	if err != nil {
		return ProcessView{}, err
	}
	decision, err := e.decide(ctx, rctx, &proc, departmentID)
	if err != nil {
		return ProcessView{}, err
	}
	return ProcessView{Process: proc, Decision: decision}, nil
}

// Forwardability evaluates the caller's forward/revert decision without
// returning the process.
func (e *Engine) Forwardability(ctx context.Context, rctx *model.RequestContext, processID, departmentID string) (Decision, error) {
	proc, err := e.store.GetProcess(ctx, processID)
	if err != nil {
		return Decision{}, err
	}
	return e.decide(ctx, rctx, &proc, departmentID)
}

// List returns process summaries matching the filters, newest first.
func (e *Engine) List(ctx context.Context, _ *model.RequestContext, filters Filters) ([]model.ProcessSummary, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	procs, err := e.store.ListProcesses(ctx, filters)
	if err != nil {
		return nil, err
	}
	summaries := make([]model.ProcessSummary, 0, len(procs))
	for i := range procs {
		summaries = append(summaries, procs[i].Summary())
	}
	return summaries, nil
}

// History returns the process's audit entries in ascending time order.
func (e *Engine) History(ctx context.Context, _ *model.RequestContext, processID string) ([]model.AuditEntry, error) {
	if _, err := e.store.GetProcess(ctx, processID); err != nil {
		return nil, err
	}
	return e.store.AuditEntries(ctx, processID)
}

// --- helpers ---

func (e *Engine) decide(ctx context.Context, rctx *model.RequestContext, proc *model.Process, departmentID string) (Decision, error) {
	progress, err := e.resolveProgress(proc, departmentID)
	if err != nil {
		return Decision{}, err
	}
	steps, err := e.resolveSteps(ctx, proc, progress)
	if err != nil {
		return Decision{}, err
	}
	entries, err := e.store.AuditEntries(ctx, proc.ID)
	if err != nil {
		return Decision{}, err
	}
	var ws *model.WorkSheet
	if sheet, err := e.store.GetWorkSheet(ctx, proc.ID, rctx.SubjectID); err == nil {
		ws = &sheet
	} else if !model.IsCode(err, model.ErrNotFound) {
		return Decision{}, err
	}
	return Forwardability(proc, progress, steps, entries, ws, rctx.SubjectID), nil
}

// resolveProgress targets the handler for an empty or handler department id,
// else the matching connector. A missing connector on an inter-branch
// process is stored-data corruption, not user error.
func (e *Engine) resolveProgress(proc *model.Process, departmentID string) (*model.WorkflowProgress, error) {
	progress := proc.ProgressFor(departmentID)
	if progress == nil {
		return nil, model.NewIntegrityError(
			fmt.Sprintf("connector for department %q missing on process %q", departmentID, proc.ID),
		)
	}
	return progress, nil
}

func (e *Engine) resolveSteps(ctx context.Context, proc *model.Process, progress *model.WorkflowProgress) ([]model.Step, error) {
	if progress.IsHandler && proc.IsAdHoc() {
		return proc.EmbeddedSteps, nil
	}
	dept, err := e.dir.Department(ctx, progress.DepartmentID)
	if err != nil {
		return nil, err
	}
	if len(dept.Steps) == 0 {
		return nil, model.NewIntegrityError(
			fmt.Sprintf("department %q has no workflow steps", dept.ID),
		)
	}
	return dept.Steps, nil
}

// worksheet loads the user's scratch ledger, or an empty one if they have
// not contributed at the current step.
func (e *Engine) worksheet(ctx context.Context, processID, userID string) (model.WorkSheet, error) {
	ws, err := e.store.GetWorkSheet(ctx, processID, userID)
	if model.IsCode(err, model.ErrNotFound) {
		return model.WorkSheet{ProcessID: processID, UserID: userID}, nil
	}
	return ws, err
}

func (e *Engine) snapshot(step model.Step, rctx *model.RequestContext) model.StepSnapshot {
	return model.StepSnapshot{
		StepNumber:  step.StepNumber,
		Work:        step.Work,
		ActorUserID: rctx.SubjectID,
		ActorRoleID: rctx.RoleID,
	}
}

// connectorForHead loads a connector progress and authorizes the caller as
// the connector department's branch head.
func (e *Engine) connectorForHead(
	ctx context.Context,
	rctx *model.RequestContext,
	processID, departmentID string,
) (model.Process, *model.WorkflowProgress, directory.Department, error) {
	proc, err := e.store.GetProcess(ctx, processID)
	if err != nil {
		return model.Process{}, nil, directory.Department{}, err
	}
	if !proc.IsInterBranch {
		return model.Process{}, nil, directory.Department{}, model.NewBadRequestError(
			fmt.Sprintf("process %q is not inter-branch", processID),
		)
	}
	if departmentID == "" || departmentID == proc.WorkflowDepartmentID {
		return model.Process{}, nil, directory.Department{}, model.NewBadRequestError(
			"the handler department approves by forwarding its own workflow",
		)
	}
	if proc.Completed {
		return model.Process{}, nil, directory.Department{}, model.NewPreconditionError(
			fmt.Sprintf("process %q is already completed", processID),
		)
	}

	progress := proc.ProgressFor(departmentID)
	if progress == nil {
		return model.Process{}, nil, directory.Department{}, model.NewIntegrityError(
			fmt.Sprintf("connector for department %q missing on process %q", departmentID, processID),
		)
	}

	dept, err := e.dir.Department(ctx, departmentID)
	if err != nil {
		return model.Process{}, nil, directory.Department{}, err
	}
	if len(dept.Steps) == 0 {
		return model.Process{}, nil, directory.Department{}, model.NewIntegrityError(
			fmt.Sprintf("department %q has no workflow steps", dept.ID),
		)
	}
	branch, err := e.dir.Branch(ctx, dept.BranchID)
	if err != nil {
		return model.Process{}, nil, directory.Department{}, err
	}
	if branch.HeadUserID != rctx.SubjectID {
		return model.Process{}, nil, directory.Department{}, model.NewForbiddenError(
			fmt.Sprintf("only the branch head may decide for department %q", departmentID),
		)
	}
	return proc, progress, dept, nil
}

// fanOut delivers inbox items, document read grants, and email to recipients
// after a commit. Failures are logged and counted, never returned.
func (e *Engine) fanOut(ctx context.Context, proc *model.Process, departmentID string, recipients []string, msg notify.Message) {
	for _, userID := range recipients {
		uid := userID
		e.sideEffect("inbox", func() error {
			return e.inbox.Enqueue(ctx, uid, proc.ID, proc.Name, departmentID)
		})
	}
	if docIDs := progressDocumentIDs(proc, departmentID); len(docIDs) > 0 {
		e.sideEffect("access", func() error {
			return e.granter.GrantRead(ctx, recipients, docIDs)
		})
	}
	e.sideEffect("email", func() error {
		emails, err := e.dir.Emails(ctx, recipients)
		if err != nil {
			return err
		}
		if len(emails) == 0 {
			return nil
		}
		msg.To = emails
		return e.notifier.Send(ctx, msg)
	})
}

// routeCompletion notifies the terminal recipient of a completed process:
// the original initiator for ad-hoc processes, else the handler department
// head, falling back to the initiator.
func (e *Engine) routeCompletion(ctx context.Context, proc *model.Process) {
	recipient := proc.InitiatorUserID
	if !proc.IsAdHoc() {
		if dept, err := e.dir.Department(ctx, proc.WorkflowDepartmentID); err == nil && dept.HeadUserID != "" {
			recipient = dept.HeadUserID
		}
	}
	e.sideEffect("inbox", func() error {
		return e.inbox.Notify(ctx, recipient, proc.ID, proc.Name)
	})
	e.sideEffect("email", func() error {
		emails, err := e.dir.Emails(ctx, []string{recipient})
		if err != nil || len(emails) == 0 {
			return err
		}
		return e.notifier.Send(ctx, notify.CompletionMessage(proc.Name, emails))
	})
}

func (e *Engine) sideEffect(kind string, fn func() error) {
	if err := fn(); err != nil {
		e.logger.Warn("side effect failed", zap.String("kind", kind), zap.Error(err))
		if e.metrics != nil {
			e.metrics.SideEffectFailures.WithLabelValues(kind).Inc()
		}
	}
}

func progressDocumentIDs(proc *model.Process, departmentID string) []string {
	progress := proc.ProgressFor(departmentID)
	if progress == nil {
		return nil
	}
	ids := make([]string, 0, len(progress.Documents))
	for _, d := range progress.Documents {
		ids = append(ids, d.DocumentID)
	}
	return ids
}

func (e *Engine) deptLabel(proc *model.Process) string {
	if proc.WorkflowDepartmentID == "" {
		return "adhoc"
	}
	return proc.WorkflowDepartmentID
}
