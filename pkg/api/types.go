package api

// Pagination echoes the applied paging window together with the total
// number of rows matching the query.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// PaginatedResponse wraps a page of results.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// ErrorResponse is the JSON body for all error statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TransactionResponse is one on-chain transaction behind an entity change.
type TransactionResponse struct {
	Hash      string `json:"hash"`
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
}

// LockupResponse is a staking position with its transaction history.
type LockupResponse struct {
	LockupID     int64                 `json:"lockup_id"`
	User         string                `json:"user"`
	Amount       string                `json:"amount"`
	End          int64                 `json:"end"`
	Points       string                `json:"points"`
	Active       bool                  `json:"active"`
	Transactions []TransactionResponse `json:"transactions"`
}

// ProposalResponse is a governance proposal.
type ProposalResponse struct {
	ProposalID  string `json:"proposal_id"`
	Description string `json:"description"`
	CreatedAt   int64  `json:"created_at"`
}

// VoterResponse is a governance participant with their vote power.
type VoterResponse struct {
	Address        string `json:"address"`
	Votes          string `json:"votes"`
	FirstSeenBlock uint64 `json:"first_seen_block"`
}
