package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecoproof/ecoproof/pkg/contracts"
	"github.com/ecoproof/ecoproof/pkg/ledger"
	"github.com/ecoproof/ecoproof/pkg/observability"
)

type retireRequest struct {
	ActionIDs   []uint64 `json:"action_ids"`
	Amounts     []uint64 `json:"amounts"`
	Reason      string   `json:"reason"`
	Beneficiary string   `json:"beneficiary"`
}

func refParam(w http.ResponseWriter, r *http.Request) (contracts.RefID, bool) {
	id, err := contracts.ParseRefID(chi.URLParam(r, "refID"))
	if err != nil {
		WriteEngineError(w, r, err)
		return id, false
	}
	return id, true
}

func (s *Server) handleListReferences(w http.ResponseWriter, r *http.Request) {
	refs, err := s.engine.References(r.Context())
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	if refs == nil {
		refs = []contracts.Reference{}
	}
	WriteJSON(w, http.StatusOK, refs)
}

func (s *Server) handleGetReference(w http.ResponseWriter, r *http.Request) {
	id, ok := refParam(w, r)
	if !ok {
		return
	}
	ref, err := s.engine.Reference(r.Context(), id)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, ref)
}

// handleUpsertReference takes the id from the path; a body id must match it.
func (s *Server) handleUpsertReference(w http.ResponseWriter, r *http.Request) {
	id, ok := refParam(w, r)
	if !ok {
		return
	}
	var ref contracts.Reference
	if !decodeJSON(w, r, &ref) {
		return
	}
	if !ref.ID.IsZero() && ref.ID != id {
		WriteBadRequest(w, "reference id in body does not match the path")
		return
	}
	ref.ID = id
	out, err := s.engine.UpsertReference(r.Context(), s.caller(r), ref)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleRetire(w http.ResponseWriter, r *http.Request) {
	var req retireRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := s.engine.Retire(r.Context(), s.caller(r), req.ActionIDs, req.Amounts, req.Reason, req.Beneficiary)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetRetirement(w http.ResponseWriter, r *http.Request) {
	serial, ok := uintParam(w, r, "serial")
	if !ok {
		return
	}
	rec, err := s.engine.Retirement(r.Context(), serial)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

func (s *Server) handleExportRetirement(w http.ResponseWriter, r *http.Request) {
	serial, ok := uintParam(w, r, "serial")
	if !ok {
		return
	}
	if s.opts.Archiver == nil {
		WriteError(w, http.StatusNotImplemented, "Not Implemented", "artifact export is not configured")
		return
	}
	addr, err := s.opts.Archiver.ExportRetirement(r.Context(), serial)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"serial": serial, "address": addr})
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	after, limit, ok := page(w, r)
	if !ok {
		return
	}
	entries := s.engine.Journal().Since(after, limit)
	if entries == nil {
		entries = []ledger.Entry{}
	}
	WriteJSON(w, http.StatusOK, entries)
}

func (s *Server) handleVerifyJournal(w http.ResponseWriter, r *http.Request) {
	j := s.engine.Journal()
	valid, msg := j.Verify()
	status := http.StatusOK
	if !valid {
		status = http.StatusConflict
	}
	WriteJSON(w, status, map[string]any{
		"valid":   valid,
		"message": msg,
		"length":  j.Length(),
		"head":    j.Head(),
	})
}

func (s *Server) handleSLO(w http.ResponseWriter, r *http.Request) {
	if s.opts.SLO == nil {
		WriteJSON(w, http.StatusOK, []*observability.SLOStatus{})
		return
	}
	out := make([]*observability.SLOStatus, 0)
	for _, op := range s.opts.SLO.Operations() {
		st, err := s.opts.SLO.Status(op)
		if err != nil {
			WriteInternal(w, err)
			return
		}
		out = append(out, st)
	}
	WriteJSON(w, http.StatusOK, out)
}
