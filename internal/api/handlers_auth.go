package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/loanzzz/lending-core/internal/domain"
	"github.com/loanzzz/lending-core/internal/ledger"
)

type authRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
	Message   string `json:"message"`
}

func (s *Server) handleAuthEcash(w http.ResponseWriter, r *http.Request) {
	s.handleAuthUpsert(w, r, "ecash")
}

func (s *Server) handleAuthSolana(w http.ResponseWriter, r *http.Request) {
	s.handleAuthUpsert(w, r, "solana")
}

func (s *Server) handleAuthUpsert(w http.ResponseWriter, r *http.Request, wallet string) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "address is required"})
		return
	}
	if req.Signature != "" {
		if err := verifyWalletSignature(req.Address, req.Message, req.Signature); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "signature verification failed: " + err.Error()})
			return
		}
	}

	var u *domain.User
	err := withConflictRetry(func() error {
		return s.store.Transaction(r.Context(), func(ctx context.Context, tx ledger.DBTX) error {
			var err error
			u, err = ledger.UpsertUserByAddress(ctx, tx, wallet, req.Address)
			return err
		})
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u))
}

type linkRequest struct {
	UserID     string `json:"user_id"`
	WalletType string `json:"wallet_type"`
	Address    string `json:"address"`
}

func (s *Server) handleAuthLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Address == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and address are required"})
		return
	}
	var u *domain.User
	err := withConflictRetry(func() error {
		return s.store.Transaction(r.Context(), func(ctx context.Context, tx ledger.DBTX) error {
			if err := ledger.LinkAddress(ctx, tx, req.UserID, req.WalletType, req.Address); err != nil {
				return err
			}
			var err error
			u, err = ledger.GetUser(ctx, tx, req.UserID)
			return err
		})
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	u, err := ledger.GetUser(r.Context(), s.store.DB(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(u))
}
