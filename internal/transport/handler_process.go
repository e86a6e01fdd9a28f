package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Bhavik-SSBDigital/docflow/internal/process"
	"github.com/Bhavik-SSBDigital/docflow/model"
)

func handleProcessCreate(engine *process.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var input process.CreateInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		proc, err := engine.Create(r.Context(), rctx, input)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, proc)
	}
}

func handleProcessList(engine *process.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		filters := process.Filters{
			DepartmentID: r.URL.Query().Get("department_id"),
		}
		if v := r.URL.Query().Get("completed"); v != "" {
			completed, err := strconv.ParseBool(v)
			if err != nil {
				WriteBadRequest(w, "completed must be true or false")
				return
			}
			filters.Completed = &completed
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, err := strconv.Atoi(v)
			if err != nil || limit < 1 {
				WriteBadRequest(w, "limit must be a positive integer")
				return
			}
			filters.Limit = limit
		}
		if v := r.URL.Query().Get("offset"); v != "" {
			offset, err := strconv.Atoi(v)
			if err != nil || offset < 0 {
				WriteBadRequest(w, "offset must be a non-negative integer")
				return
			}
			filters.Offset = offset
		}

		summaries, err := engine.List(r.Context(), rctx, filters)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"processes": summaries})
	}
}

func handleProcessGet(engine *process.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		processID := chi.URLParam(r, "processId")
		departmentID := r.URL.Query().Get("department_id")

		view, err := engine.Get(r.Context(), rctx, processID, departmentID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, view)
	}
}

func handleProcessHistory(engine *process.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		processID := chi.URLParam(r, "processId")

		entries, err := engine.History(r.Context(), rctx, processID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
	}
}

func handleProcessDecision(engine *process.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		processID := chi.URLParam(r, "processId")
		departmentID := r.URL.Query().Get("department_id")

		decision, err := engine.Forwardability(r.Context(), rctx, processID, departmentID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, decision)
	}
}

func handleProcessForward(engine *process.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var input process.ForwardInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		input.ProcessID = chi.URLParam(r, "processId")

		result, err := engine.Forward(r.Context(), rctx, input)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

func handleProcessRevert(engine *process.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var input process.RevertInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		input.ProcessID = chi.URLParam(r, "processId")

		if err := engine.Revert(r.Context(), rctx, input); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]bool{"completed": false})
	}
}

func handleProcessPick(engine *process.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		processID := chi.URLParam(r, "processId")

		var body struct {
			DepartmentID string `json:"department_id"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				WriteError(w, model.NewBadRequestError("invalid JSON body"))
				return
			}
		}

		if err := engine.Pick(r.Context(), rctx, processID, body.DepartmentID); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleProcessApprove(engine *process.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		processID := chi.URLParam(r, "processId")

		var body struct {
			DepartmentID string `json:"department_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		if err := engine.Approve(r.Context(), rctx, processID, body.DepartmentID); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleProcessRejectConnector(engine *process.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		processID := chi.URLParam(r, "processId")

		var body struct {
			DepartmentID string `json:"department_id"`
			Remarks      string `json:"remarks"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		if err := engine.RejectConnector(r.Context(), rctx, processID, body.DepartmentID, body.Remarks); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDocumentSign(engine *process.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		processID := chi.URLParam(r, "processId")
		documentID := chi.URLParam(r, "documentId")
		departmentID := r.URL.Query().Get("department_id")

		if err := engine.Sign(r.Context(), rctx, processID, departmentID, documentID); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDocumentRevokeSign(engine *process.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		processID := chi.URLParam(r, "processId")
		documentID := chi.URLParam(r, "documentId")
		departmentID := r.URL.Query().Get("department_id")

		if err := engine.RevokeSign(r.Context(), rctx, processID, departmentID, documentID); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDocumentReject(engine *process.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		processID := chi.URLParam(r, "processId")
		documentID := chi.URLParam(r, "documentId")

		var body struct {
			DepartmentID string `json:"department_id"`
			Reason       string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		if err := engine.Reject(r.Context(), rctx, processID, body.DepartmentID, documentID, body.Reason); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleDocumentUpload(engine *process.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		processID := chi.URLParam(r, "processId")

		var body struct {
			DepartmentID string                `json:"department_id"`
			Documents    []process.NewDocument `json:"documents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		if err := engine.Upload(r.Context(), rctx, processID, body.DepartmentID, body.Documents); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
