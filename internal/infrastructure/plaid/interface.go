package plaid

import "context"

// API is the subset of the upstream aggregation API this service consumes.
type API interface {
	CreateLinkToken(ctx context.Context, req *LinkTokenCreateRequest) (*Result, error)
	ExchangePublicToken(ctx context.Context, req *PublicTokenExchangeRequest) (*Result, error)
	GetTransactions(ctx context.Context, req *TransactionsGetRequest) (*Result, error)
}
