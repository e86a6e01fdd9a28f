package process

import (
	"github.com/Bhavik-SSBDigital/docflow/model"
)

// Decision is the outcome of evaluating whether a user may move a process at
// its current step. The two flags are mutually exclusive: an uncommitted
// rejection blocks forwarding and enables reverting.
type Decision struct {
	IsForwardable bool `json:"is_forwardable"`
	IsRevertable  bool `json:"is_revertable"`
}

// Forwardability evaluates the forward/revert decision for one user against
// one progress. Pure: consumes the resolved step list, the process's audit
// entries, and the user's current worksheet (nil if none).
func Forwardability(
	proc *model.Process,
	progress *model.WorkflowProgress,
	steps []model.Step,
	entries []model.AuditEntry,
	ws *model.WorkSheet,
	userID string,
) Decision {
	if proc.Completed || progress.Completed {
		return Decision{}
	}
	if progress.CurrentStepNumber < 1 || progress.CurrentStepNumber > len(steps) {
		return Decision{}
	}
	currentWork := steps[progress.CurrentStepNumber-1].Work

	var currentlyRejected []string
	if ws != nil {
		currentlyRejected = ws.RejectedIDs()
	}

	// Union of everything this user has worked on, by document id.
	worked := make(map[string]bool)

	switch currentWork {
	case model.WorkUpload:
		// Documents uploaded by this user at prior upload steps, plus the
		// uncommitted uploads of the current step.
		for _, entry := range entries {
			if entry.CurrentStep.ActorUserID != userID || entry.CurrentStep.Work != model.WorkUpload {
				continue
			}
			for _, doc := range entry.Documents {
				if doc.IsUploaded {
					worked[doc.DocumentID] = true
				}
			}
		}
		if ws != nil {
			for _, id := range ws.UploadedDocuments {
				worked[id] = true
			}
		}
	default:
		// e-sign step: signed documents, prior committed rejections by this
		// user, and uncommitted rejections of the current step.
		for _, doc := range progress.Documents {
			if doc.IsSignedBy(userID) {
				worked[doc.DocumentID] = true
			}
		}
		for _, entry := range entries {
			if entry.CurrentStep.ActorUserID != userID {
				continue
			}
			for _, doc := range entry.Documents {
				if doc.IsRejected {
					worked[doc.DocumentID] = true
				}
			}
		}
		for _, id := range currentlyRejected {
			worked[id] = true
		}
	}

	forwardable := len(progress.Documents) == len(worked) &&
		len(currentlyRejected) == 0 &&
		(proc.MaxReceiverStepNumber == 0 || progress.CurrentStepNumber != proc.MaxReceiverStepNumber)

	return Decision{
		IsForwardable: forwardable,
		IsRevertable:  len(currentlyRejected) > 0,
	}
}

// ResolvePinnedActor returns the user already pinned to a step through the
// audit log: the actor of the most recent non-terminal entry recorded for
// (department, step). Once any user has executed a step, later arrivals at
// that step route back to the same user instead of broadcasting.
func ResolvePinnedActor(entries []model.AuditEntry, departmentID string, stepNumber int) (string, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if entry.NextStep == nil {
			continue
		}
		if entry.DepartmentID != departmentID {
			continue
		}
		if entry.CurrentStep.StepNumber != stepNumber {
			continue
		}
		if entry.CurrentStep.ActorUserID == "" {
			continue
		}
		return entry.CurrentStep.ActorUserID, true
	}
	return "", false
}

// LocateRevertTarget finds the most recent non-reverted audit entry whose
// recorded next step lists the acting user among its authorized actors, for
// the given department. The located entry identifies both the step to revert
// back to and the user who will receive the process.
func LocateRevertTarget(entries []model.AuditEntry, departmentID, userID string) (model.AuditEntry, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if entry.Reverted {
			continue
		}
		if entry.DepartmentID != departmentID {
			continue
		}
		if entry.NextStep == nil || !entry.NextStep.HasActor(userID) {
			continue
		}
		return entry, true
	}
	return model.AuditEntry{}, false
}
