package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ecoproof/ecoproof/pkg/contracts"
	"github.com/ecoproof/ecoproof/pkg/dispute"
	"github.com/ecoproof/ecoproof/pkg/ledger"
)

type (
	oracleReportRequest struct {
		Reference string `json:"reference"`
	}
	verifyRequest struct {
		Reward uint64 `json:"reward"`
	}
	attestationRequest struct {
		AttestationID string `json:"attestation_id"`
	}
	challengeRequest struct {
		Evidence string `json:"evidence"`
	}
	resolveRequest struct {
		Upheld bool           `json:"upheld"`
		Slash  *dispute.Slash `json:"slash,omitempty"`
	}
)

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var claim contracts.Claim
	if !decodeJSON(w, r, &claim) {
		return
	}
	id, err := s.engine.Submit(r.Context(), s.caller(r), claim)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/actions/"+strconv.FormatUint(id, 10))
	WriteJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	after, limit, ok := page(w, r)
	if !ok {
		return
	}
	list, err := s.engine.Actions(r.Context(), after, limit)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	if list == nil {
		list = []*contracts.Action{}
	}
	WriteJSON(w, http.StatusOK, list)
}

func (s *Server) handleActionCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.ActionCount(r.Context())
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]uint64{"count": n})
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	a, err := s.engine.Action(r.Context(), id)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, a)
}

// withAction decodes the path id and the body, runs fn and answers with the
// updated action.
func withAction[T any](s *Server, fn func(ctx context.Context, caller string, id uint64, req T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uintParam(w, r, "id")
		if !ok {
			return
		}
		var req T
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := fn(r.Context(), s.caller(r), id, req); err != nil {
			WriteEngineError(w, r, err)
			return
		}
		a, err := s.engine.Action(r.Context(), id)
		if err != nil {
			WriteEngineError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, a)
	}
}

func (s *Server) handleOracleReport(w http.ResponseWriter, r *http.Request) {
	withAction(s, func(ctx context.Context, caller string, id uint64, req oracleReportRequest) error {
		return s.engine.AttachOracleReport(ctx, caller, id, req.Reference)
	})(w, r)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	withAction(s, func(ctx context.Context, caller string, id uint64, req verifyRequest) error {
		return s.engine.Verify(ctx, caller, id, req.Reward)
	})(w, r)
}

func (s *Server) handleAttestation(w http.ResponseWriter, r *http.Request) {
	withAction(s, func(ctx context.Context, caller string, id uint64, req attestationRequest) error {
		return s.engine.SetAttestation(ctx, caller, id, req.AttestationID)
	})(w, r)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	status, err := s.engine.Finalize(r.Context(), s.caller(r), id)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
}

func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	list, err := s.engine.Challenges(r.Context(), id)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	if list == nil {
		list = []*contracts.Challenge{}
	}
	WriteJSON(w, http.StatusOK, list)
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	var req challengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	index, err := s.engine.Challenge(r.Context(), s.caller(r), id, req.Evidence)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"action_id": id, "index": index})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		WriteBadRequest(w, "invalid index: must be a non-negative integer")
		return
	}
	var req resolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.ResolveChallenge(r.Context(), s.caller(r), id, index, req.Upheld, req.Slash); err != nil {
		WriteEngineError(w, r, err)
		return
	}
	list, err := s.engine.Challenges(r.Context(), id)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, list[index])
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	rec, err := s.engine.Receipt(r.Context(), id)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

func (s *Server) handleActionJournal(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.engine.Action(r.Context(), id); err != nil {
		WriteEngineError(w, r, err)
		return
	}
	entries := s.engine.Journal().ForAction(id)
	if entries == nil {
		entries = []ledger.Entry{}
	}
	WriteJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRetired(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	n, err := s.engine.Retired(r.Context(), id)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]uint64{"action_id": id, "retired": n})
}

func (s *Server) handleExportDossier(w http.ResponseWriter, r *http.Request) {
	id, ok := uintParam(w, r, "id")
	if !ok {
		return
	}
	if s.opts.Archiver == nil {
		WriteError(w, http.StatusNotImplemented, "Not Implemented", "artifact export is not configured")
		return
	}
	addr, err := s.opts.Archiver.ExportDossier(r.Context(), id)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"action_id": id, "address": addr})
}
