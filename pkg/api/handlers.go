package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/origin-gov/governance-listener/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// handleLockups returns all lockups of one account, newest first, each with
// its transaction history.
func (s *Server) handleLockups(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		s.writeError(w, http.StatusBadRequest, "query parameter 'account' is required")

		return
	}

	if !ethcommon.IsHexAddress(account) {
		s.writeError(w, http.StatusBadRequest, "invalid account address")

		return
	}

	lockups, err := s.store.LockupsByUser(ethcommon.HexToAddress(account))
	if err != nil {
		s.logger.Errorf("failed to query lockups: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")

		return
	}

	response := make([]LockupResponse, 0, len(lockups))
	for _, lockup := range lockups {
		txs, err := s.store.TransactionsForLockup(lockup.ID)
		if err != nil {
			s.logger.Errorf("failed to query lockup transactions: %v", err)
			s.writeError(w, http.StatusInternalServerError, "internal server error")

			return
		}

		response = append(response, toLockupResponse(lockup, txs))
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleProposals returns a page of proposals, newest first.
func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := s.pagination(w, r)
	if !ok {
		return
	}

	proposals, err := s.store.ListProposals(limit, offset)
	if err != nil {
		s.logger.Errorf("failed to query proposals: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")

		return
	}

	total, err := s.store.CountProposals()
	if err != nil {
		s.logger.Errorf("failed to count proposals: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")

		return
	}

	data := make([]ProposalResponse, 0, len(proposals))
	for _, proposal := range proposals {
		data = append(data, ProposalResponse{
			ProposalID:  proposal.ProposalID,
			Description: proposal.Description,
			CreatedAt:   proposal.CreatedAt,
		})
	}

	s.writeJSON(w, http.StatusOK, PaginatedResponse{
		Data:       data,
		Pagination: Pagination{Limit: limit, Offset: offset, Total: total},
	})
}

// handleVoters returns a page of voters ranked by vote power.
func (s *Server) handleVoters(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := s.pagination(w, r)
	if !ok {
		return
	}

	voters, err := s.store.ListVotersRanked(limit, offset)
	if err != nil {
		s.logger.Errorf("failed to query voters: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")

		return
	}

	total, err := s.store.CountVoters()
	if err != nil {
		s.logger.Errorf("failed to count voters: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")

		return
	}

	data := make([]VoterResponse, 0, len(voters))
	for _, voter := range voters {
		data = append(data, VoterResponse{
			Address:        voter.Address.Hex(),
			Votes:          voter.Votes,
			FirstSeenBlock: voter.FirstSeenBlock,
		})
	}

	s.writeJSON(w, http.StatusOK, PaginatedResponse{
		Data:       data,
		Pagination: Pagination{Limit: limit, Offset: offset, Total: total},
	})
}

// handleHealth reports liveness and the current checkpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	block, found, err := s.store.GetCheckpoint()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "internal server error")

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"checkpoint_set":  found,
		"last_seen_block": block,
	})
}

func (s *Server) pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit = defaultPageSize

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")

			return 0, 0, false
		}

		limit = parsed
	}

	if limit > maxPageSize {
		limit = maxPageSize
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid offset")

			return 0, 0, false
		}

		offset = parsed
	}

	return limit, offset, true
}

func toLockupResponse(lockup *store.Lockup, txs []*store.Transaction) LockupResponse {
	txResponses := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		txResponses = append(txResponses, TransactionResponse{
			Hash:      tx.Hash.Hex(),
			Event:     tx.Event,
			CreatedAt: tx.CreatedAt,
		})
	}

	return LockupResponse{
		LockupID:     lockup.LockupID,
		User:         lockup.User.Hex(),
		Amount:       lockup.Amount,
		End:          lockup.End,
		Points:       lockup.Points,
		Active:       lockup.Active,
		Transactions: txResponses,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Errorf("failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
