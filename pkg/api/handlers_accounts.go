package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

type accountRequest struct {
	Account string `json:"account"`
}

// AccountView summarizes one account's balances.
type AccountView struct {
	Account      string `json:"account"`
	Bond         uint64 `json:"bond"`
	Stake        uint64 `json:"stake"`
	TokenBalance uint64 `json:"token_balance"`
}

func (s *Server) handleBondMove(move func(ctx context.Context, caller string, amount uint64) (uint64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req amountRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		caller := s.caller(r)
		balance, err := move(r.Context(), caller, req.Amount)
		if err != nil {
			WriteEngineError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"account": caller, "balance": balance})
	}
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view := AccountView{Account: chi.URLParam(r, "account")}
	var err error
	if view.Bond, err = s.engine.BondOf(ctx, view.Account); err != nil {
		WriteEngineError(w, r, err)
		return
	}
	if view.Stake, err = s.engine.StakeOf(ctx, view.Account); err != nil {
		WriteEngineError(w, r, err)
		return
	}
	if view.TokenBalance, err = s.engine.TokenBalance(ctx, view.Account); err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.TotalSupply(r.Context())
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]uint64{"total_supply": n})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, s.engine.Config())
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var p contracts.Params
	if !decodeJSON(w, r, &p) {
		return
	}
	if err := s.engine.SetConfig(r.Context(), s.caller(r), p); err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.engine.Config())
}

func (s *Server) handleGetAdmin(w http.ResponseWriter, r *http.Request) {
	admin, err := s.engine.Admin(r.Context())
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, accountRequest{Account: admin})
}

func (s *Server) handleTransferAdmin(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.engine.TransferAdmin(r.Context(), s.caller(r), req.Account); err != nil {
		WriteEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	role, err := contracts.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	members, err := s.engine.Members(r.Context(), role)
	if err != nil {
		WriteEngineError(w, r, err)
		return
	}
	if members == nil {
		members = []string{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"role": role, "members": members})
}

func (s *Server) handleRoleChange(grant bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, err := contracts.ParseRole(chi.URLParam(r, "role"))
		if err != nil {
			WriteEngineError(w, r, err)
			return
		}
		account := chi.URLParam(r, "account")
		caller := s.caller(r)
		ctx := r.Context()
		switch {
		case role == contracts.RoleVerifier && grant:
			err = s.engine.AddVerifier(ctx, caller, account)
		case role == contracts.RoleVerifier:
			err = s.engine.RemoveVerifier(ctx, caller, account)
		case grant:
			err = s.engine.AddOracle(ctx, caller, account)
		default:
			err = s.engine.RemoveOracle(ctx, caller, account)
		}
		if err != nil {
			WriteEngineError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
