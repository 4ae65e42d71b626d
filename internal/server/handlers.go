package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/copyleftdev/scryflow/internal/report"
	"github.com/copyleftdev/scryflow/internal/runs"
	"github.com/copyleftdev/scryflow/internal/scenario"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunService is the part of *runs.Manager the API needs.
type RunService interface {
	Submit(run *runs.Run) error
	Get(id uuid.UUID) (*runs.Run, error)
}

type APIHandler struct {
	runs     RunService
	basePlan scenario.Plan
	logger   *zap.Logger
}

func NewAPIHandler(rs RunService, basePlan scenario.Plan, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		runs:     rs,
		basePlan: basePlan,
		logger:   logger,
	}
}

type CredentialRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Email      string `json:"email,omitempty"`
	TOTPSecret string `json:"totp_secret,omitempty"`
}

// SubmitRunRequest overrides parts of the configured plan. Every field is
// optional.
type SubmitRunRequest struct {
	Admin       *CredentialRequest `json:"admin,omitempty"`
	Staff       *CredentialRequest `json:"staff,omitempty"`
	NewPassword string             `json:"new_password,omitempty"`
	CallbackURL string             `json:"callback_url,omitempty"`
}

type SubmitRunResponse struct {
	RunID string `json:"run_id"`
}

func (h *APIHandler) HandleSubmitRun(w http.ResponseWriter, r *http.Request) {
	var req SubmitRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid request body: %v", err)
			return
		}
	}
	defer r.Body.Close()

	plan, err := h.planFor(req)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if req.CallbackURL != "" {
		if u, err := url.Parse(req.CallbackURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			h.respondError(w, http.StatusBadRequest, "Invalid callback URL %q", req.CallbackURL)
			return
		}
	}

	// Credentials in req are never logged.
	run := runs.NewRun(plan, req.CallbackURL)
	if err := h.runs.Submit(run); err != nil {
		if errors.Is(err, runs.ErrShuttingDown) {
			h.respondError(w, http.StatusServiceUnavailable, "%v", err)
			return
		}
		h.logger.Error("Error submitting run", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Failed to submit run: %v", err)
		return
	}

	h.respondJSON(w, http.StatusAccepted, SubmitRunResponse{RunID: run.ID.String()})
}

func (h *APIHandler) planFor(req SubmitRunRequest) (scenario.Plan, error) {
	plan := h.basePlan
	apply := func(role string, cr *CredentialRequest, dst *scenario.Plan, admin bool) error {
		if cr == nil {
			return nil
		}
		if cr.Username == "" || cr.Password == "" {
			return fmt.Errorf("%s username and password are required", role)
		}
		cred := &dst.Staff
		if admin {
			cred = &dst.Admin
		}
		cred.Username = cr.Username
		cred.Password = cr.Password
		cred.Email = cr.Email
		cred.TOTPSecret = cr.TOTPSecret
		return nil
	}
	if err := apply("admin", req.Admin, &plan, true); err != nil {
		return plan, err
	}
	if err := apply("staff", req.Staff, &plan, false); err != nil {
		return plan, err
	}
	if req.NewPassword != "" {
		plan.NewPassword = req.NewPassword
	}
	if plan.Admin.Username == plan.Staff.Username {
		return plan, errors.New("admin and staff must be different accounts")
	}
	if plan.NewPassword == plan.Staff.Password {
		return plan, errors.New("new password must differ from the staff password")
	}
	return plan, nil
}

func (h *APIHandler) lookup(w http.ResponseWriter, r *http.Request) (*runs.Run, bool) {
	runIDStr := chi.URLParam(r, "runID")
	runID, err := uuid.Parse(runIDStr)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid run ID format: %v", err)
		return nil, false
	}

	run, err := h.runs.Get(runID)
	if err != nil {
		if errors.Is(err, runs.ErrRunNotFound) {
			h.respondError(w, http.StatusNotFound, "Run not found")
		} else {
			h.logger.Error("Error retrieving run", zap.String("run_id", runIDStr), zap.Error(err))
			h.respondError(w, http.StatusInternalServerError, "Failed to retrieve run")
		}
		return nil, false
	}
	return run, true
}

func (h *APIHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, run)
}

// HandleGetSnapshot returns the failure snapshot of a finished run. The
// format query parameter selects simplified (default), html or png.
func (h *APIHandler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if !run.Status.Done() {
		h.respondError(w, http.StatusConflict, "Run is still %s", run.Status)
		return
	}
	if run.Verdict == nil || run.Verdict.Snapshot == nil {
		h.respondError(w, http.StatusNotFound, "Run has no snapshot")
		return
	}

	body, err := report.FormatSnapshot(run.ID.String(), run.Verdict.Snapshot, r.URL.Query().Get("format"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "%v", err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("Error writing snapshot response", zap.Error(err))
	}
}

func (h *APIHandler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Error marshalling JSON response", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Failed to marshal JSON response")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(response); err != nil {
		h.logger.Warn("Error writing JSON response", zap.Error(err))
	}
}

func (h *APIHandler) respondError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	errorMessage := fmt.Sprintf(format, args...)
	jsonResponse, err := json.Marshal(map[string]string{"error": errorMessage})
	if err != nil {
		h.logger.Error("Error marshalling JSON error response", zap.Error(err))
		jsonResponse = []byte(`{"error":"internal error"}`)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(jsonResponse); err != nil {
		h.logger.Warn("Error writing error response", zap.Error(err))
	}
}
