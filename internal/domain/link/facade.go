package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"linkproxy/internal/infrastructure/plaid"
	"linkproxy/internal/shared/logger"
)

var linkTracer = otel.Tracer("linkproxy/link")

// Facade turns frontend requests into upstream calls and upstream results
// into frontend responses. It holds no per-request state.
type Facade struct {
	api plaid.API
	now func() time.Time
	log zerolog.Logger
}

type Option func(*Facade)

// WithClock overrides the wall clock used for the transactions window.
func WithClock(now func() time.Time) Option {
	return func(f *Facade) {
		f.now = now
	}
}

// NewFacade creates a Facade backed by api.
func NewFacade(api plaid.API, opts ...Option) *Facade {
	f := &Facade{
		api: api,
		now: time.Now,
		log: logger.For("link"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateLinkToken requests a link token for linking a new account.
func (f *Facade) CreateLinkToken(ctx context.Context, _ LinkTokenRequest) Response {
	ctx, span := f.startSpan(ctx, "link.CreateLinkToken")
	defer span.End()

	res, err := f.api.CreateLinkToken(ctx, &plaid.LinkTokenCreateRequest{
		ClientName:   ClientName,
		User:         &plaid.LinkUser{ClientUserID: DemoUserID},
		Products:     linkProducts,
		CountryCodes: linkCountryCodes,
		Language:     linkLanguage,
		Update:       &plaid.LinkUpdate{AccountSelectionEnabled: true},
	})
	if err != nil {
		return f.genericFailure(span, "Error creating link token", err)
	}

	var out plaid.LinkTokenCreateResponse
	if err := decodeRequired(res, &out, "link_token", func() string { return out.LinkToken }); err != nil {
		return f.genericFailure(span, "Error creating link token", err)
	}

	return jsonResponse(http.StatusOK, OutcomeSuccess, linkTokenResponse{LinkToken: out.LinkToken})
}

// ExchangePublicToken swaps a widget public token for a long-lived access token.
func (f *Facade) ExchangePublicToken(ctx context.Context, req ExchangeRequest) Response {
	if req.PublicToken == "" {
		return ValidationFailure("public_token")
	}

	ctx, span := f.startSpan(ctx, "link.ExchangePublicToken")
	defer span.End()

	res, err := f.api.ExchangePublicToken(ctx, &plaid.PublicTokenExchangeRequest{
		PublicToken: req.PublicToken,
	})
	if err != nil {
		return f.genericFailure(span, "Error exchanging token", err)
	}

	var out plaid.PublicTokenExchangeResponse
	if err := decodeRequired(res, &out, "access_token", func() string { return out.AccessToken }); err != nil {
		return f.genericFailure(span, "Error exchanging token", err)
	}

	f.log.Info().Str("item_id", out.ItemID).Msg("public token exchanged")
	return jsonResponse(http.StatusOK, OutcomeSuccess, exchangeResponse{AccessToken: out.AccessToken})
}

// CreateUpdateLinkToken requests a link token scoped to re-authenticating the
// item behind req.AccessToken. Upstream failures keep the upstream status and
// raw body so the caller can see exactly what went wrong.
func (f *Facade) CreateUpdateLinkToken(ctx context.Context, req UpdateLinkTokenRequest) Response {
	if req.AccessToken == "" {
		return ValidationFailure("access_token")
	}

	ctx, span := f.startSpan(ctx, "link.CreateUpdateLinkToken")
	defer span.End()

	res, err := f.api.CreateLinkToken(ctx, &plaid.LinkTokenCreateRequest{
		ClientName:  ClientName,
		User:        &plaid.LinkUser{ClientUserID: DemoUserID},
		AccessToken: req.AccessToken,
	})
	if err != nil {
		var upErr *plaid.UpstreamError
		if errors.As(err, &upErr) {
			recordError(span, err)
			resp := problemResponse(upErr.StatusCode, OutcomeUpstreamError, "Plaid API error: "+string(upErr.Body))
			resp.ErrorCode = upErr.ErrorCode
			return resp
		}
		return f.genericFailure(span, "Error creating update link token", err)
	}

	var out plaid.LinkTokenCreateResponse
	if err := decodeRequired(res, &out, "link_token", func() string { return out.LinkToken }); err != nil {
		return f.genericFailure(span, "Error creating update link token", err)
	}

	return jsonResponse(http.StatusOK, OutcomeSuccess, linkTokenResponse{LinkToken: out.LinkToken})
}

// GetTransactions fetches the last TransactionsWindowDays of transactions and
// passes the upstream payload through unchanged. An ITEM_LOGIN_REQUIRED
// failure becomes a 401 carrying the access token so the frontend can start
// update mode for that item.
func (f *Facade) GetTransactions(ctx context.Context, req TransactionsRequest) Response {
	if req.AccessToken == "" {
		return ValidationFailure("access_token")
	}

	ctx, span := f.startSpan(ctx, "link.GetTransactions")
	defer span.End()

	start, end := TransactionsWindow(f.now())
	span.SetAttributes(
		attribute.String("transactions.start_date", start),
		attribute.String("transactions.end_date", end),
	)

	res, err := f.api.GetTransactions(ctx, &plaid.TransactionsGetRequest{
		AccessToken: req.AccessToken,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		var upErr *plaid.UpstreamError
		if !errors.As(err, &upErr) {
			return f.genericFailure(span, "Error fetching transactions", err)
		}
		if upErr.ParseErr != nil {
			return f.genericFailure(span, "Error fetching transactions", upErr.ParseErr)
		}

		recordError(span, err)
		if upErr.ReauthRequired() {
			f.log.Info().Msg("item requires re-authentication")
			resp := jsonResponse(http.StatusUnauthorized, OutcomeReauthRequired, reauthRequired{
				Error:       plaid.ErrorCodeItemLoginRequired,
				Message:     ReauthMessage,
				AccessToken: req.AccessToken,
			})
			resp.ErrorCode = upErr.ErrorCode
			return resp
		}

		resp := problemResponse(upErr.StatusCode, OutcomeUpstreamError, string(upErr.Body))
		resp.ErrorCode = upErr.ErrorCode
		return resp
	}

	if !json.Valid(res.Body) {
		return f.genericFailure(span, "Error fetching transactions", errors.New("upstream returned invalid JSON"))
	}

	return rawJSONResponse(http.StatusOK, res.Body)
}

// TransactionsWindow returns the YYYY-MM-DD start and end dates of the
// transactions window ending on now's calendar day.
func TransactionsWindow(now time.Time) (start, end string) {
	return now.AddDate(0, 0, -TransactionsWindowDays).Format(dateLayout), now.Format(dateLayout)
}

// genericFailure maps any error to a 500 problem whose detail is
// "<prefix>: <error text>".
func (f *Facade) genericFailure(span trace.Span, prefix string, err error) Response {
	recordError(span, err)

	outcome := OutcomeTransportError
	code := ""
	var upErr *plaid.UpstreamError
	if errors.As(err, &upErr) {
		outcome = OutcomeUpstreamError
		code = upErr.ErrorCode
	}

	f.log.Warn().Err(err).Str("outcome", string(outcome)).Msg(prefix)
	resp := problemResponse(http.StatusInternalServerError, outcome, fmt.Sprintf("%s: %v", prefix, err))
	resp.ErrorCode = code
	return resp
}

func (f *Facade) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return linkTracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// decodeRequired decodes res into out and fails when the named field is empty.
func decodeRequired(res *plaid.Result, out any, field string, value func() string) error {
	if err := res.Decode(out); err != nil {
		return err
	}
	if value() == "" {
		return fmt.Errorf("upstream response missing %s", field)
	}
	return nil
}
