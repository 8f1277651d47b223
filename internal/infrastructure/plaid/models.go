package plaid

// Credentials identify this application to the upstream API. They are
// injected into every request body and must never be echoed to callers.
type Credentials struct {
	ClientID string
	Secret   string
}

// Auth carries the injected credentials in a request body.
type Auth struct {
	ClientID string `json:"client_id"`
	Secret   string `json:"secret"`
}

func (a *Auth) setCredentials(c Credentials) {
	a.ClientID = c.ClientID
	a.Secret = c.Secret
}

// authenticated is implemented by every request type via the embedded Auth.
type authenticated interface {
	setCredentials(Credentials)
}

// LinkUser identifies the end user to the linking widget.
type LinkUser struct {
	ClientUserID string `json:"client_user_id"`
}

// LinkUpdate holds update-mode options.
type LinkUpdate struct {
	AccountSelectionEnabled bool `json:"account_selection_enabled"`
}

// LinkTokenCreateRequest is the body of POST /link/token/create. In update
// mode only ClientName, User and AccessToken are set; the omitempty members
// then drop out of the payload.
type LinkTokenCreateRequest struct {
	Auth
	ClientName   string      `json:"client_name"`
	User         *LinkUser   `json:"user"`
	Products     []string    `json:"products,omitempty"`
	CountryCodes []string    `json:"country_codes,omitempty"`
	Language     string      `json:"language,omitempty"`
	Update       *LinkUpdate `json:"update,omitempty"`
	AccessToken  string      `json:"access_token,omitempty"`
}

// LinkTokenCreateResponse is the subset of the link token response we read.
type LinkTokenCreateResponse struct {
	LinkToken  string `json:"link_token"`
	Expiration string `json:"expiration"`
	RequestID  string `json:"request_id"`
}

// PublicTokenExchangeRequest is the body of POST /item/public_token/exchange.
type PublicTokenExchangeRequest struct {
	Auth
	PublicToken string `json:"public_token"`
}

// PublicTokenExchangeResponse is the subset of the exchange response we read.
type PublicTokenExchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
	RequestID   string `json:"request_id"`
}

// TransactionsGetRequest is the body of POST /transactions/get. Dates are
// YYYY-MM-DD.
type TransactionsGetRequest struct {
	Auth
	AccessToken string `json:"access_token"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}
