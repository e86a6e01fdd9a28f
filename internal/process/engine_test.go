package process

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/Bhavik-SSBDigital/docflow/internal/analytics"
	"github.com/Bhavik-SSBDigital/docflow/internal/config"
	"github.com/Bhavik-SSBDigital/docflow/internal/directory"
	"github.com/Bhavik-SSBDigital/docflow/internal/notify"
	"github.com/Bhavik-SSBDigital/docflow/model"
)

type fakeInbox struct {
	enqueued []string
	notified []string
	acked    []string
}

func (f *fakeInbox) Enqueue(_ context.Context, userID, processID, _, _ string) error {
	f.enqueued = append(f.enqueued, userID+":"+processID)
	return nil
}

func (f *fakeInbox) Notify(_ context.Context, userID, processID, _ string) error {
	f.notified = append(f.notified, userID+":"+processID)
	return nil
}

func (f *fakeInbox) Ack(_ context.Context, userID, processID string) error {
	f.acked = append(f.acked, userID+":"+processID)
	return nil
}

func (f *fakeInbox) enqueuedUsers() []string {
	var users []string
	for _, e := range f.enqueued {
		for i := 0; i < len(e); i++ {
			if e[i] == ':' {
				users = append(users, e[:i])
				break
			}
		}
	}
	return users
}

type fakeDispatcher struct {
	sent []notify.Message
}

func (f *fakeDispatcher) Send(_ context.Context, msg notify.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

type grantRecord struct {
	users []string
	docs  []string
}

type fakeGranter struct {
	grants []grantRecord
}

func (f *fakeGranter) GrantRead(_ context.Context, userIDs, documentIDs []string) error {
	f.grants = append(f.grants, grantRecord{users: userIDs, docs: documentIDs})
	return nil
}

type testEnv struct {
	engine  *Engine
	store   *MemoryStore
	dir     *directory.MemoryDirectory
	inbox   *fakeInbox
	mail    *fakeDispatcher
	granter *fakeGranter
}

// newTestEnv wires an engine against an in-memory stack with a head-office
// finance department (3 e-sign steps) and a second-branch connector
// department (1 e-sign step).
func newTestEnv(t *testing.T, cfg config.EngineConfig) *testEnv {
	t.Helper()

	dir := directory.NewMemoryDirectory()
	dir.SeedBranch(directory.Branch{ID: "b-ho", Name: "Head Office", IsHeadOffice: true, HeadUserID: "u-hohead"})
	dir.SeedBranch(directory.Branch{ID: "b-east", Name: "East Branch", HeadUserID: "u-easthead"})
	dir.SeedDepartment(directory.Department{
		ID: "d-fin", Name: "finance", BranchID: "b-ho", HeadUserID: "u-finhead",
		Steps: []model.Step{
			{StepNumber: 1, Work: model.WorkESign, Actors: []model.ActorRef{{UserID: "u1", RoleID: "clerk"}}},
			{StepNumber: 2, Work: model.WorkESign, Actors: []model.ActorRef{
				{UserID: "u2", RoleID: "officer"},
				{UserID: "u2b", RoleID: "officer"},
			}},
			{StepNumber: 3, Work: model.WorkESign, Actors: []model.ActorRef{{UserID: "u3", RoleID: "manager"}}},
		},
	})
	dir.SeedDepartment(directory.Department{
		ID: "d-conn", Name: "east-review", BranchID: "b-east",
		Steps: []model.Step{
			{StepNumber: 1, Work: model.WorkESign, Actors: []model.ActorRef{{UserID: "c1", RoleID: "reviewer"}}},
		},
	})
	for _, u := range []string{"u1", "u2", "u2b", "u3", "c1", "u-finhead"} {
		dir.SeedUser(directory.User{ID: u, Username: u, Email: u + "@example.com"})
	}

	store := NewMemoryStore()
	inbox := &fakeInbox{}
	mail := &fakeDispatcher{}
	granter := &fakeGranter{}
	engine := NewEngine(store, dir, inbox, mail, granter, analytics.NoopSink{}, nil, zap.NewNop(), cfg)

	return &testEnv{engine: engine, store: store, dir: dir, inbox: inbox, mail: mail, granter: granter}
}

func requestContext(userID string) *model.RequestContext {
	return &model.RequestContext{SubjectID: userID, Username: userID, RoleID: "role-" + userID}
}

func createFinanceProcess(t *testing.T, env *testEnv) model.Process {
	t.Helper()
	proc, err := env.engine.Create(context.Background(), requestContext("u1"), CreateInput{
		WorkflowDepartmentID: "d-fin",
		Documents: []NewDocument{
			{DocumentID: "doc-1", CabinetNo: 4, WorkName: "loan application"},
			{DocumentID: "doc-2", CabinetNo: 4, WorkName: "collateral deed"},
		},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return proc
}

func TestCreateSeedsProcessAndWorksheet(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	ctx := context.Background()

	proc := createFinanceProcess(t, env)
	if proc.Name != "finance_1" {
		t.Errorf("Name = %q, want finance_1", proc.Name)
	}
	if len(proc.Progress) != 1 || !proc.Progress[0].IsHandler {
		t.Fatalf("Progress = %+v, want single handler entry", proc.Progress)
	}
	if proc.Progress[0].CurrentStepNumber != 1 {
		t.Errorf("CurrentStepNumber = %d, want 1", proc.Progress[0].CurrentStepNumber)
	}

	ws, err := env.store.GetWorkSheet(ctx, proc.ID, "u1")
	if err != nil {
		t.Fatalf("GetWorkSheet() error = %v", err)
	}
	if len(ws.UploadedDocuments) != 2 {
		t.Errorf("UploadedDocuments = %v, want both initial documents", ws.UploadedDocuments)
	}

	entries, err := env.store.AuditEntries(ctx, proc.ID)
	if err != nil {
		t.Fatalf("AuditEntries() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("audit entries after create = %d, want 0", len(entries))
	}

	if got := env.inbox.enqueuedUsers(); len(got) != 1 || got[0] != "u1" {
		t.Errorf("enqueued = %v, want step-1 actor u1", got)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	ctx := context.Background()

	_, err := env.engine.Create(ctx, requestContext("u1"), CreateInput{WorkflowDepartmentID: "d-fin"})
	if !model.IsCode(err, model.ErrBadRequest) {
		t.Errorf("Create() without documents error = %v, want BAD_REQUEST", err)
	}

	_, err = env.engine.Create(ctx, requestContext("u1"), CreateInput{
		Documents: []NewDocument{{DocumentID: "doc-1"}},
	})
	if !model.IsCode(err, model.ErrBadRequest) {
		t.Errorf("Create() without workflow error = %v, want BAD_REQUEST", err)
	}

	_, err = env.engine.Create(ctx, requestContext("u1"), CreateInput{
		IsInterBranch: true,
		Documents:     []NewDocument{{DocumentID: "doc-1"}},
		EmbeddedSteps: []model.Step{
			{StepNumber: 1, Work: model.WorkESign, Actors: []model.ActorRef{{UserID: "u1"}}},
		},
	})
	if !model.IsCode(err, model.ErrBadRequest) {
		t.Errorf("Create() inter-branch without connectors error = %v, want BAD_REQUEST", err)
	}
}

func TestForwardRejectRevertCycle(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	ctx := context.Background()
	proc := createFinanceProcess(t, env)

	// u1 signs both documents and forwards to step 2.
	for _, docID := range []string{"doc-1", "doc-2"} {
		if err := env.engine.Sign(ctx, requestContext("u1"), proc.ID, "", docID); err != nil {
			t.Fatalf("Sign(%s) error = %v", docID, err)
		}
	}
	res, err := env.engine.Forward(ctx, requestContext("u1"), ForwardInput{ProcessID: proc.ID})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if res.Completed {
		t.Fatal("Forward() completed = true at step 1")
	}

	// The worksheet must not survive the transition.
	if _, err := env.store.GetWorkSheet(ctx, proc.ID, "u1"); !model.IsCode(err, model.ErrNotFound) {
		t.Errorf("worksheet after forward error = %v, want NOT_FOUND", err)
	}

	got, err := env.store.GetProcess(ctx, proc.ID)
	if err != nil {
		t.Fatalf("GetProcess() error = %v", err)
	}
	progress := got.HandlerProgress()
	if progress.CurrentStepNumber != 2 || progress.LastStepDone != 1 {
		t.Errorf("cursor = (%d, %d), want (2, 1)", progress.CurrentStepNumber, progress.LastStepDone)
	}
	// Step 2 has two actors and no pinned history: broadcast, no claim.
	if progress.CurrentActorUserID != "" {
		t.Errorf("CurrentActorUserID = %q, want unclaimed", progress.CurrentActorUserID)
	}

	// u2 rejects one document and reverts.
	if err := env.engine.Reject(ctx, requestContext("u2"), proc.ID, "", "doc-2", "signature missing"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	decision, err := env.engine.Forwardability(ctx, requestContext("u2"), proc.ID, "")
	if err != nil {
		t.Fatalf("Forwardability() error = %v", err)
	}
	if decision.IsForwardable || !decision.IsRevertable {
		t.Errorf("decision = %+v, want revert-only", decision)
	}

	if err := env.engine.Revert(ctx, requestContext("u2"), RevertInput{ProcessID: proc.ID, Remarks: "fix doc-2"}); err != nil {
		t.Fatalf("Revert() error = %v", err)
	}

	got, err = env.store.GetProcess(ctx, proc.ID)
	if err != nil {
		t.Fatalf("GetProcess() error = %v", err)
	}
	progress = got.HandlerProgress()
	if progress.CurrentStepNumber != 1 || progress.LastStepDone != 0 {
		t.Errorf("cursor after revert = (%d, %d), want (1, 0)", progress.CurrentStepNumber, progress.LastStepDone)
	}
	// The revert routes to the exact user who executed step 1.
	if progress.CurrentActorUserID != "u1" {
		t.Errorf("CurrentActorUserID = %q, want u1", progress.CurrentActorUserID)
	}

	entries, err := env.store.AuditEntries(ctx, proc.ID)
	if err != nil {
		t.Fatalf("AuditEntries() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want 2 (one forward, one revert)", len(entries))
	}
	forward, revert := entries[0], entries[1]
	if forward.Reverted || !revert.Reverted {
		t.Errorf("Reverted flags = (%v, %v), want (false, true)", forward.Reverted, revert.Reverted)
	}
	if len(forward.Documents) != 2 {
		t.Errorf("forward entry documents = %d, want both uploads", len(forward.Documents))
	}
	if len(revert.Documents) != 1 || !revert.Documents[0].IsRejected {
		t.Errorf("revert entry documents = %+v, want one rejection", revert.Documents)
	}
	if revert.NextStep == nil || !revert.NextStep.HasActor("u1") {
		t.Errorf("revert NextStep = %+v, want routed to u1", revert.NextStep)
	}
}

func TestRoutingGrantsDocumentReadAccess(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	ctx := context.Background()
	proc := createFinanceProcess(t, env)

	// Create routes to the step-1 actor, who gets read access to the
	// initial documents.
	if len(env.granter.grants) != 1 {
		t.Fatalf("grants after create = %d, want 1", len(env.granter.grants))
	}
	first := env.granter.grants[0]
	if len(first.users) != 1 || first.users[0] != "u1" {
		t.Errorf("grant users = %v, want [u1]", first.users)
	}
	if len(first.docs) != 2 || first.docs[0] != "doc-1" || first.docs[1] != "doc-2" {
		t.Errorf("grant docs = %v, want [doc-1 doc-2]", first.docs)
	}

	for _, docID := range []string{"doc-1", "doc-2"} {
		if err := env.engine.Sign(ctx, requestContext("u1"), proc.ID, "", docID); err != nil {
			t.Fatalf("Sign(%s) error = %v", docID, err)
		}
	}
	if _, err := env.engine.Forward(ctx, requestContext("u1"), ForwardInput{ProcessID: proc.ID}); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	// Forward extends access to every step-2 actor.
	if len(env.granter.grants) != 2 {
		t.Fatalf("grants after forward = %d, want 2", len(env.granter.grants))
	}
	second := env.granter.grants[1]
	if len(second.users) != 2 || second.users[0] != "u2" || second.users[1] != "u2b" {
		t.Errorf("forward grant users = %v, want [u2 u2b]", second.users)
	}
	if len(second.docs) != 2 {
		t.Errorf("forward grant docs = %v, want both documents", second.docs)
	}
}

func TestRevertFirstStepFails(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	proc := createFinanceProcess(t, env)

	err := env.engine.Revert(context.Background(), requestContext("u1"), RevertInput{ProcessID: proc.ID})
	if !model.IsCode(err, model.ErrPreconditionFailed) {
		t.Errorf("Revert() at step 1 error = %v, want PRECONDITION_FAILED", err)
	}
}

func TestForwardStaleCursorConflict(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	proc := createFinanceProcess(t, env)

	_, err := env.engine.Forward(context.Background(), requestContext("u1"), ForwardInput{
		ProcessID:         proc.ID,
		CurrentStepNumber: 2,
	})
	if !model.IsCode(err, model.ErrConflict) {
		t.Errorf("Forward() with stale cursor error = %v, want CONFLICT", err)
	}
}

func TestForwardUnauthorizedActor(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	proc := createFinanceProcess(t, env)

	_, err := env.engine.Forward(context.Background(), requestContext("u3"), ForwardInput{ProcessID: proc.ID})
	if !model.IsCode(err, model.ErrPreconditionFailed) {
		t.Errorf("Forward() by non-actor error = %v, want PRECONDITION_FAILED", err)
	}
}

func TestForwardMandatedReceiverStep(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	ctx := context.Background()

	proc, err := env.engine.Create(ctx, requestContext("u1"), CreateInput{
		WorkflowDepartmentID:  "d-fin",
		MaxReceiverStepNumber: 2,
		Documents:             []NewDocument{{DocumentID: "doc-1"}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := env.engine.Forward(ctx, requestContext("u1"), ForwardInput{ProcessID: proc.ID}); err != nil {
		t.Fatalf("Forward() to step 2 error = %v", err)
	}

	_, err = env.engine.Forward(ctx, requestContext("u2"), ForwardInput{ProcessID: proc.ID})
	if !model.IsCode(err, model.ErrPreconditionFailed) {
		t.Errorf("Forward() past mandated receiver error = %v, want PRECONDITION_FAILED", err)
	}
}

func TestForwardCompletesAtFinalStep(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	ctx := context.Background()
	proc := createFinanceProcess(t, env)

	for _, userID := range []string{"u1", "u2"} {
		if _, err := env.engine.Forward(ctx, requestContext(userID), ForwardInput{ProcessID: proc.ID}); err != nil {
			t.Fatalf("Forward() by %s error = %v", userID, err)
		}
	}
	res, err := env.engine.Forward(ctx, requestContext("u3"), ForwardInput{ProcessID: proc.ID})
	if err != nil {
		t.Fatalf("Forward() at final step error = %v", err)
	}
	if !res.Completed {
		t.Fatal("Forward() completed = false at final step")
	}

	got, err := env.store.GetProcess(ctx, proc.ID)
	if err != nil {
		t.Fatalf("GetProcess() error = %v", err)
	}
	if !got.Completed || got.CompletedAt == nil {
		t.Errorf("process = %+v, want completed with timestamp", got.Summary())
	}

	// The terminal notification goes to the workflow department head.
	found := false
	for _, n := range env.inbox.notified {
		if n == "u-finhead:"+proc.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("notified = %v, want department head u-finhead", env.inbox.notified)
	}

	if _, err := env.engine.Forward(ctx, requestContext("u3"), ForwardInput{ProcessID: proc.ID}); !model.IsCode(err, model.ErrPreconditionFailed) {
		t.Errorf("Forward() on completed process error = %v, want PRECONDITION_FAILED", err)
	}
}

func TestForwardPinsPreviousActorOnReturn(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	ctx := context.Background()
	proc := createFinanceProcess(t, env)

	// u1 -> step 2, u2 rejects and reverts, u1 forwards again: step 2 must
	// route straight back to u2 instead of broadcasting.
	if _, err := env.engine.Forward(ctx, requestContext("u1"), ForwardInput{ProcessID: proc.ID}); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if err := env.engine.Reject(ctx, requestContext("u2"), proc.ID, "", "doc-1", "wrong cabinet"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if err := env.engine.Revert(ctx, requestContext("u2"), RevertInput{ProcessID: proc.ID}); err != nil {
		t.Fatalf("Revert() error = %v", err)
	}
	if _, err := env.engine.Forward(ctx, requestContext("u1"), ForwardInput{ProcessID: proc.ID}); err != nil {
		t.Fatalf("Forward() after revert error = %v", err)
	}

	got, err := env.store.GetProcess(ctx, proc.ID)
	if err != nil {
		t.Fatalf("GetProcess() error = %v", err)
	}
	if actor := got.HandlerProgress().CurrentActorUserID; actor != "u2" {
		t.Errorf("CurrentActorUserID = %q, want pinned u2", actor)
	}
}

func TestPickClaimsStep(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	ctx := context.Background()
	proc := createFinanceProcess(t, env)

	if _, err := env.engine.Forward(ctx, requestContext("u1"), ForwardInput{ProcessID: proc.ID}); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	if err := env.engine.Pick(ctx, requestContext("u2"), proc.ID, ""); err != nil {
		t.Fatalf("Pick() error = %v", err)
	}
	// Last writer wins on a contested pick.
	if err := env.engine.Pick(ctx, requestContext("u2b"), proc.ID, ""); err != nil {
		t.Fatalf("Pick() by second user error = %v", err)
	}
	got, err := env.store.GetProcess(ctx, proc.ID)
	if err != nil {
		t.Fatalf("GetProcess() error = %v", err)
	}
	if actor := got.HandlerProgress().CurrentActorUserID; actor != "u2b" {
		t.Errorf("CurrentActorUserID = %q, want u2b", actor)
	}
	// Repeating a pick is a no-op.
	if err := env.engine.Pick(ctx, requestContext("u2b"), proc.ID, ""); err != nil {
		t.Errorf("Pick() repeat error = %v", err)
	}
}

func createInterBranchProcess(t *testing.T, env *testEnv) model.Process {
	t.Helper()
	proc, err := env.engine.Create(context.Background(), requestContext("u1"), CreateInput{
		WorkflowDepartmentID:   "d-fin",
		IsInterBranch:          true,
		ConnectorDepartmentIDs: []string{"d-conn"},
		Documents:              []NewDocument{{DocumentID: "doc-1", CabinetNo: 1, WorkName: "audit report"}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return proc
}

func TestInterBranchCreateSharesSamples(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	proc := createInterBranchProcess(t, env)

	if len(proc.Progress) != 2 {
		t.Fatalf("Progress = %d entries, want handler plus connector", len(proc.Progress))
	}
	connector := proc.ProgressFor("d-conn")
	if connector == nil {
		t.Fatal("connector progress for d-conn missing")
	}
	// Handler sits in the head office, so the connector starts with a copy
	// of the initial package.
	if len(connector.Documents) != 1 || connector.Documents[0].DocumentID != "doc-1" {
		t.Errorf("connector documents = %+v, want shared sample", connector.Documents)
	}
	if len(proc.PublishedTo) != 1 || proc.PublishedTo[0] != "d-conn" {
		t.Errorf("PublishedTo = %v, want [d-conn]", proc.PublishedTo)
	}
}

func TestConnectorForwardPastFinalStepBlocked(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	proc := createInterBranchProcess(t, env)

	_, err := env.engine.Forward(context.Background(), requestContext("c1"), ForwardInput{
		ProcessID:    proc.ID,
		DepartmentID: "d-conn",
	})
	if !model.IsCode(err, model.ErrPreconditionFailed) {
		t.Errorf("connector Forward() at final step error = %v, want PRECONDITION_FAILED", err)
	}
}

func TestConnectorApprovalGatesCompletion(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{RequireConnectorApproval: true})
	ctx := context.Background()
	proc := createInterBranchProcess(t, env)

	for _, userID := range []string{"u1", "u2"} {
		if _, err := env.engine.Forward(ctx, requestContext(userID), ForwardInput{ProcessID: proc.ID}); err != nil {
			t.Fatalf("Forward() by %s error = %v", userID, err)
		}
	}
	_, err := env.engine.Forward(ctx, requestContext("u3"), ForwardInput{ProcessID: proc.ID})
	if !model.IsCode(err, model.ErrPreconditionFailed) {
		t.Fatalf("Forward() before connector approval error = %v, want PRECONDITION_FAILED", err)
	}

	// Only the connector branch head may approve.
	if err := env.engine.Approve(ctx, requestContext("c1"), proc.ID, "d-conn"); !model.IsCode(err, model.ErrForbidden) {
		t.Fatalf("Approve() by non-head error = %v, want FORBIDDEN", err)
	}
	if err := env.engine.Approve(ctx, requestContext("u-easthead"), proc.ID, "d-conn"); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	res, err := env.engine.Forward(ctx, requestContext("u3"), ForwardInput{ProcessID: proc.ID})
	if err != nil {
		t.Fatalf("Forward() after connector approval error = %v", err)
	}
	if !res.Completed {
		t.Error("Forward() completed = false after connector approval")
	}
}

func TestConnectorApprovalNotRequiredByDefault(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	ctx := context.Background()
	proc := createInterBranchProcess(t, env)

	for _, userID := range []string{"u1", "u2"} {
		if _, err := env.engine.Forward(ctx, requestContext(userID), ForwardInput{ProcessID: proc.ID}); err != nil {
			t.Fatalf("Forward() by %s error = %v", userID, err)
		}
	}
	res, err := env.engine.Forward(ctx, requestContext("u3"), ForwardInput{ProcessID: proc.ID})
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if !res.Completed {
		t.Error("Forward() completed = false, want completion without connector approval")
	}
}

func TestRejectConnectorResetsToStepOne(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	ctx := context.Background()
	proc := createInterBranchProcess(t, env)

	if err := env.engine.RejectConnector(ctx, requestContext("u-easthead"), proc.ID, "d-conn", "incomplete package"); err != nil {
		t.Fatalf("RejectConnector() error = %v", err)
	}

	got, err := env.store.GetProcess(ctx, proc.ID)
	if err != nil {
		t.Fatalf("GetProcess() error = %v", err)
	}
	connector := got.ProgressFor("d-conn")
	if connector.CurrentStepNumber != 1 || connector.LastStepDone != 0 || connector.Completed {
		t.Errorf("connector after reject = %+v, want reset to step 1", connector)
	}
	if connector.Remarks != "incomplete package" {
		t.Errorf("connector remarks = %q", connector.Remarks)
	}

	// The handler progress is untouched.
	if handler := got.HandlerProgress(); handler.CurrentStepNumber != 1 || handler.Completed {
		t.Errorf("handler after connector reject = %+v, want unchanged", handler)
	}

	entries, err := env.store.AuditEntries(ctx, proc.ID)
	if err != nil {
		t.Fatalf("AuditEntries() error = %v", err)
	}
	if len(entries) != 1 || !entries[0].Reverted || entries[0].DepartmentID != "d-conn" {
		t.Errorf("audit entries = %+v, want one connector revert", entries)
	}

	// The branch head's own inbox item is cleared, just like on approval.
	if got := env.inbox.acked; len(got) != 1 || got[0] != "u-easthead:"+proc.ID {
		t.Errorf("acked = %v, want u-easthead cleared for %s", got, proc.ID)
	}
}

func TestApproveOnNonInterBranchProcess(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	proc := createFinanceProcess(t, env)

	err := env.engine.Approve(context.Background(), requestContext("u-easthead"), proc.ID, "d-conn")
	if !model.IsCode(err, model.ErrBadRequest) {
		t.Errorf("Approve() on plain process error = %v, want BAD_REQUEST", err)
	}
}

func TestAdHocProcess(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	ctx := context.Background()

	proc, err := env.engine.Create(ctx, requestContext("u9"), CreateInput{
		EmbeddedSteps: []model.Step{
			{StepNumber: 1, Work: model.WorkUpload, Actors: []model.ActorRef{{UserID: "u9"}}},
			{StepNumber: 2, Work: model.WorkESign, Actors: []model.ActorRef{{UserID: "u8"}}},
		},
		Documents: []NewDocument{{DocumentID: "doc-9"}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if proc.Name != "adhoc_1" {
		t.Errorf("Name = %q, want adhoc_1", proc.Name)
	}
	if !proc.IsAdHoc() {
		t.Error("IsAdHoc() = false")
	}

	if _, err := env.engine.Forward(ctx, requestContext("u9"), ForwardInput{ProcessID: proc.ID}); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if err := env.engine.Sign(ctx, requestContext("u8"), proc.ID, "", "doc-9"); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	res, err := env.engine.Forward(ctx, requestContext("u8"), ForwardInput{ProcessID: proc.ID})
	if err != nil {
		t.Fatalf("Forward() at final step error = %v", err)
	}
	if !res.Completed {
		t.Fatal("Forward() completed = false")
	}

	// Ad-hoc completion routes back to the initiator.
	found := false
	for _, n := range env.inbox.notified {
		if n == "u9:"+proc.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("notified = %v, want initiator u9", env.inbox.notified)
	}
}

func TestGetReturnsDecision(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	ctx := context.Background()
	proc := createFinanceProcess(t, env)

	// Everything was seeded as uploaded, but step 1 is e-sign: nothing is
	// signed yet, so u1 cannot forward.
	view, err := env.engine.Get(ctx, requestContext("u1"), proc.ID, "")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if view.IsForwardable || view.IsRevertable {
		t.Errorf("decision before signing = %+v, want neither", view.Decision)
	}

	for _, docID := range []string{"doc-1", "doc-2"} {
		if err := env.engine.Sign(ctx, requestContext("u1"), proc.ID, "", docID); err != nil {
			t.Fatalf("Sign(%s) error = %v", docID, err)
		}
	}
	view, err = env.engine.Get(ctx, requestContext("u1"), proc.ID, "")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !view.IsForwardable || view.IsRevertable {
		t.Errorf("decision after signing = %+v, want forward-only", view.Decision)
	}
}

func TestListAndHistory(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	ctx := context.Background()
	proc := createFinanceProcess(t, env)
	createFinanceProcess(t, env)

	summaries, err := env.engine.List(ctx, requestContext("u1"), Filters{DepartmentID: "d-fin"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(summaries) != 2 {
		t.Errorf("List() = %d summaries, want 2", len(summaries))
	}

	if _, err := env.engine.History(ctx, requestContext("u1"), "missing"); !model.IsCode(err, model.ErrNotFound) {
		t.Errorf("History() for unknown process error = %v, want NOT_FOUND", err)
	}
	entries, err := env.engine.History(ctx, requestContext("u1"), proc.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("History() = %d entries for fresh process, want 0", len(entries))
	}
}

func TestForwardOptimisticConflict(t *testing.T) {
	env := newTestEnv(t, config.EngineConfig{})
	ctx := context.Background()
	proc := createFinanceProcess(t, env)

	// Simulate a concurrent writer bumping the version under the engine.
	stale, err := env.store.GetProcess(ctx, proc.ID)
	if err != nil {
		t.Fatalf("GetProcess() error = %v", err)
	}
	if err := env.store.UpdateProcess(ctx, stale); err != nil {
		t.Fatalf("UpdateProcess() error = %v", err)
	}
	if err := env.store.UpdateProcess(ctx, stale); !model.IsCode(err, model.ErrConflict) {
		t.Errorf("UpdateProcess() with stale version error = %v, want CONFLICT", err)
	}
}
