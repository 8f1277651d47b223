// Package link implements the frontend-facing facade over the upstream
// account-linking and transactions API.
package link

// Fixed values sent on every link token request. The upstream requires a
// user object even in update mode, when the item is already linked.
const (
	ClientName = "Plaid Demo App"
	DemoUserID = "user-123"

	// ReauthMessage is shown to the user when the item needs re-authentication.
	ReauthMessage = "Your bank account requires re-authentication. Please log in again."

	// TransactionsWindowDays is the look-back window for GetTransactions.
	TransactionsWindowDays = 30

	dateLayout = "2006-01-02"
)

var (
	linkProducts     = []string{"transactions"}
	linkCountryCodes = []string{"US"}
)

const linkLanguage = "en"

// LinkTokenRequest is the body of /api/link-token. AccessToken is accepted
// for symmetry with update mode but not forwarded.
type LinkTokenRequest struct {
	AccessToken string `json:"access_token,omitempty"`
}

// ExchangeRequest is the body of /api/exchange-token.
type ExchangeRequest struct {
	PublicToken string `json:"public_token"`
}

// UpdateLinkTokenRequest is the body of /api/link-token-update.
type UpdateLinkTokenRequest struct {
	AccessToken string `json:"access_token"`
}

// TransactionsRequest is the body of /api/transactions.
type TransactionsRequest struct {
	AccessToken string `json:"access_token"`
}

type linkTokenResponse struct {
	LinkToken string `json:"link_token"`
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
}

type validationError struct {
	Error string `json:"error"`
}

// reauthRequired is returned with 401 so the frontend can open update mode
// for the same item.
type reauthRequired struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
}

// Problem is an RFC 7807 problem document.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}
