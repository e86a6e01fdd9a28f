package process

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Bhavik-SSBDigital/docflow/model"
)

// Ledger operations record per-document work inside the current step. Each
// one mutates the targeted progress's document list and the acting user's
// worksheet; the worksheet flushes into the audit log on the next
// transition.

// Sign records the user's signature on a document. Signing the same document
// twice is a no-op.
func (e *Engine) Sign(ctx context.Context, rctx *model.RequestContext, processID, departmentID, documentID string) error {
	proc, _, doc, err := e.documentForUpdate(ctx, processID, departmentID, documentID)
	if err != nil {
		return err
	}
	userID := rctx.SubjectID

	if !doc.IsSignedBy(userID) {
		doc.SignedBy = append(doc.SignedBy, userID)
	}

	ws, err := e.worksheet(ctx, proc.ID, userID)
	if err != nil {
		return err
	}
	if !containsString(ws.SignedDocuments, documentID) {
		ws.SignedDocuments = append(ws.SignedDocuments, documentID)
	}

	if err := e.store.UpdateProcess(ctx, proc); err != nil {
		return err
	}
	if err := e.store.PutWorkSheet(ctx, ws); err != nil {
		return err
	}
	e.logger.Debug("document signed",
		zap.String("process_id", proc.ID),
		zap.String("document_id", documentID),
		zap.String("subject_id", userID),
	)
	return nil
}

// RevokeSign withdraws the user's signature before it is committed to the
// audit log. Revoking a signature that was never given is a no-op.
func (e *Engine) RevokeSign(ctx context.Context, rctx *model.RequestContext, processID, departmentID, documentID string) error {
	proc, _, doc, err := e.documentForUpdate(ctx, processID, departmentID, documentID)
	if err != nil {
		return err
	}
	userID := rctx.SubjectID

	doc.SignedBy = removeString(doc.SignedBy, userID)

	ws, err := e.worksheet(ctx, proc.ID, userID)
	if err != nil {
		return err
	}
	ws.SignedDocuments = removeString(ws.SignedDocuments, documentID)

	if err := e.store.UpdateProcess(ctx, proc); err != nil {
		return err
	}
	if ws.Empty() {
		return e.store.DeleteWorkSheet(ctx, proc.ID, userID)
	}
	return e.store.PutWorkSheet(ctx, ws)
}

// Reject marks a document as rejected at the current step with a reason. The
// rejection replaces any earlier signature state for the decision logic and
// blocks forwarding until a revert clears it.
func (e *Engine) Reject(ctx context.Context, rctx *model.RequestContext, processID, departmentID, documentID, reason string) error {
	if reason == "" {
		return model.NewBadRequestError("a rejection needs a reason")
	}
	proc, progress, doc, err := e.documentForUpdate(ctx, processID, departmentID, documentID)
	if err != nil {
		return err
	}
	userID := rctx.SubjectID

	steps, err := e.resolveSteps(ctx, &proc, progress)
	if err != nil {
		return err
	}
	cur := progress.CurrentStepNumber
	if cur < 1 || cur > len(steps) {
		return model.NewIntegrityError(
			fmt.Sprintf("process %q cursor %d outside workflow of %d steps", proc.ID, cur, len(steps)),
		)
	}

	doc.Rejection = &model.Rejection{
		Reason: reason,
		Step:   e.snapshot(steps[cur-1], rctx),
	}

	ws, err := e.worksheet(ctx, proc.ID, userID)
	if err != nil {
		return err
	}
	replaced := false
	for i := range ws.RejectedDocuments {
		if ws.RejectedDocuments[i].DocumentID == documentID {
			ws.RejectedDocuments[i].Reason = reason
			replaced = true
			break
		}
	}
	if !replaced {
		ws.RejectedDocuments = append(ws.RejectedDocuments, model.RejectedDocument{
			DocumentID: documentID,
			Reason:     reason,
		})
	}

	if err := e.store.UpdateProcess(ctx, proc); err != nil {
		return err
	}
	if err := e.store.PutWorkSheet(ctx, ws); err != nil {
		return err
	}
	e.logger.Info("document rejected",
		zap.String("process_id", proc.ID),
		zap.String("document_id", documentID),
		zap.String("subject_id", userID),
	)
	return nil
}

// Upload adds new documents to the targeted progress. Documents already
// present keep their existing contribution record.
func (e *Engine) Upload(ctx context.Context, rctx *model.RequestContext, processID, departmentID string, docs []NewDocument) error {
	if len(docs) == 0 {
		return model.NewBadRequestError("upload needs at least one document")
	}
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
	userID := rctx.SubjectID

	ws, err := e.worksheet(ctx, proc.ID, userID)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if progress.Document(d.DocumentID) == nil {
			progress.Documents = append(progress.Documents, model.DocumentContribution{
				DocumentID: d.DocumentID,
				CabinetNo:  d.CabinetNo,
				WorkName:   d.WorkName,
			})
		}
		if !containsString(ws.UploadedDocuments, d.DocumentID) {
			ws.UploadedDocuments = append(ws.UploadedDocuments, d.DocumentID)
		}
	}

	if err := e.store.UpdateProcess(ctx, proc); err != nil {
		return err
	}
	if err := e.store.PutWorkSheet(ctx, ws); err != nil {
		return err
	}
	e.logger.Debug("documents uploaded",
		zap.String("process_id", proc.ID),
		zap.String("subject_id", userID),
		zap.Int("count", len(docs)),
	)
	return nil
}

// documentForUpdate loads the process, targets the progress, and locates the
// document, with the shared completion guards.
func (e *Engine) documentForUpdate(ctx context.Context, processID, departmentID, documentID string) (model.Process, *model.WorkflowProgress, *model.DocumentContribution, error) {
	proc, err := e.store.GetProcess(ctx, processID)
	if err != nil {
		return model.Process{}, nil, nil, err
	}
	if proc.Completed {
		return model.Process{}, nil, nil, model.NewPreconditionError(
			fmt.Sprintf("process %q is already completed", proc.ID),
		)
	}
	progress, err := e.resolveProgress(&proc, departmentID)
	if err != nil {
		return model.Process{}, nil, nil, err
	}
	if progress.Completed {
		return model.Process{}, nil, nil, model.NewPreconditionError(
			fmt.Sprintf("workflow for department %q is already completed", progress.DepartmentID),
		)
	}
	doc := progress.Document(documentID)
	if doc == nil {
		return model.Process{}, nil, nil, model.NewNotFoundError(
			fmt.Sprintf("document %q not found on process %q", documentID, processID),
		)
	}
	return proc, progress, doc, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
