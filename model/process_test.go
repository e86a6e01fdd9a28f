package model

import "testing"

func interBranchFixture() *Process {
	return &Process{
		ID:                   "p1",
		WorkflowDepartmentID: "d-fin",
		IsInterBranch:        true,
		Progress: []WorkflowProgress{
			{DepartmentID: "d-fin", IsHandler: true, CurrentStepNumber: 2},
			{DepartmentID: "d-conn", CurrentStepNumber: 1},
		},
	}
}

func TestProgressFor_targetsHandler(t *testing.T) {
	p := interBranchFixture()

	if got := p.ProgressFor(""); got == nil || !got.IsHandler {
		t.Errorf("ProgressFor(\"\") = %+v, want the handler", got)
	}
	if got := p.ProgressFor("d-fin"); got == nil || !got.IsHandler {
		t.Errorf("ProgressFor(d-fin) = %+v, want the handler", got)
	}
}

func TestProgressFor_matchesHandlerByOwnDepartment(t *testing.T) {
	// A handler progress stays addressable through its own department id
	// even when the process-level workflow reference is unset.
	p := &Process{
		Progress: []WorkflowProgress{
			{DepartmentID: "d1", IsHandler: true, CurrentStepNumber: 1},
		},
	}
	if got := p.ProgressFor("d1"); got == nil || !got.IsHandler {
		t.Errorf("ProgressFor(d1) = %+v, want the handler progress", got)
	}
}

func TestProgressFor_connectorAndMiss(t *testing.T) {
	p := interBranchFixture()

	if got := p.ProgressFor("d-conn"); got == nil || got.IsHandler {
		t.Errorf("ProgressFor(d-conn) = %+v, want the connector progress", got)
	}
	if got := p.ProgressFor("d-elsewhere"); got != nil {
		t.Errorf("ProgressFor(d-elsewhere) = %+v, want nil", got)
	}
}

func TestConnectorsCompleted(t *testing.T) {
	p := interBranchFixture()
	if p.ConnectorsCompleted() {
		t.Error("ConnectorsCompleted() = true with an open connector")
	}
	p.Progress[1].Completed = true
	if !p.ConnectorsCompleted() {
		t.Error("ConnectorsCompleted() = false with every connector approved")
	}
}
