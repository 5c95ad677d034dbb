// Package auth acquires the bearer token for a run with an OAuth2 password grant.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// Credentials are the resource owner and client credentials of a password grant.
type Credentials struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
}

// Error reports a failed token acquisition. It is fatal to a run.
type Error struct {
	TokenURL string
	// StatusCode is zero when the request never got a response.
	StatusCode int
	Err        error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed at %s (status %d): %v", e.TokenURL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authentication failed at %s: %v", e.TokenURL, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Authenticator obtains an access token.
type Authenticator interface {
	Token(ctx context.Context) (string, error)
}

// PasswordGrant performs the OAuth2 resource owner password credentials grant
// against a HealthSuite style IAM token endpoint.
type PasswordGrant struct {
	config     oauth2.Config
	creds      Credentials
	httpClient *http.Client
}

// Option configures a PasswordGrant.
type Option func(*PasswordGrant)

// WithHTTPClient sets the HTTP client used for the token request.
func WithHTTPClient(client *http.Client) Option {
	return func(p *PasswordGrant) {
		p.httpClient = client
	}
}

// NewPasswordGrant creates a password grant against tokenURL. The client id and
// secret are sent with HTTP Basic authentication.
func NewPasswordGrant(tokenURL string, creds Credentials, opts ...Option) *PasswordGrant {
	p := &PasswordGrant{
		config: oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		creds:      creds,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Token requests a new access token. The token is not cached or refreshed.
func (p *PasswordGrant) Token(ctx context.Context) (string, error) {
	client := &http.Client{
		Transport: &headerTransport{
			base:         p.httpClient.Transport,
			clientID:     p.creds.ClientID,
			clientSecret: p.creds.ClientSecret,
		},
		Timeout: p.httpClient.Timeout,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	tok, err := p.config.PasswordCredentialsToken(ctx, p.creds.Username, p.creds.Password)
	if err != nil {
		authErr := &Error{TokenURL: p.config.Endpoint.TokenURL, Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			authErr.StatusCode = retrieveErr.Response.StatusCode
		}
		return "", authErr
	}
	if tok.AccessToken == "" {
		return "", &Error{TokenURL: p.config.Endpoint.TokenURL, Err: errors.New("response has no access_token")}
	}
	return tok.AccessToken, nil
}

// headerTransport adds the headers the IAM token endpoint expects. The IAM
// endpoint takes the client credentials unescaped, so the Basic header written
// by oauth2 is replaced.
type headerTransport struct {
	base         http.RoundTripper
	clientID     string
	clientSecret string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-version", "2")
	req.SetBasicAuth(t.clientID, t.clientSecret)

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

var _ Authenticator = (*PasswordGrant)(nil)
