package instagram

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"growth_tracker/internal/domain"
)

// RefresherConfig holds the refresh-token grant endpoint and client.
type RefresherConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Refresher renews long-lived access credentials with the refresh-token
// grant. It performs a single attempt per call.
type Refresher struct {
	oauth      *oauth2.Config
	httpClient *http.Client
}

func NewRefresher(cfg RefresherConfig) *Refresher {
	return &Refresher{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Refresh exchanges refreshToken for a new access credential.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*domain.Credential, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)

	src := r.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, &domain.RefreshError{
				StatusCode: retrieveErr.Response.StatusCode,
				Body:       string(retrieveErr.Body),
				Err:        err,
			}
		}
		return nil, &domain.RefreshError{Err: err}
	}

	cred := &domain.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}
	return cred, nil
}
