package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/anicoll/arduino-bridge/internal/pkg/config"
)

// renewalFactor leaves a fifth of the token lifetime as headroom for renewal.
const renewalFactor = 0.8

var ErrAuth = errors.New("credential exchange failed")

// AuthError carries the failed exchange for diagnostics.
type AuthError struct {
	StatusCode int
	Body       string
	Method     string
	URL        string
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s %s returned %d: %s", ErrAuth, e.Method, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: %s %s: %v", ErrAuth, e.Method, e.URL, e.Err)
}

func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAuth}
	}
	return []error{ErrAuth, e.Err}
}

// Credential is a bearer token and the point after which it should be renewed.
type Credential struct {
	Token      string
	AcquiredAt time.Time
	// Expiry is the renewal deadline measured from AcquiredAt.
	Expiry time.Duration
}

func (c Credential) RenewAt() time.Time {
	return c.AcquiredAt.Add(c.Expiry)
}

type Provider struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
	now        func() time.Time
	logger     *zap.Logger
}

type Option func(*Provider)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

func New(cfg *config.CloudConfig, opts ...Option) *Provider {
	p := &Provider{
		cfg: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
			EndpointParams: url.Values{
				"audience": {cfg.Audience},
			},
		},
		now:    time.Now,
		logger: zap.L(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Acquire exchanges the client id and secret for a token. It does not retry.
func (p *Provider) Acquire(ctx context.Context) (Credential, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}
	acquiredAt := p.now()
	tok, err := p.cfg.Token(ctx)
	if err != nil {
		return Credential{}, p.authError(err)
	}

	lifetime := lifetimeOf(tok, acquiredAt)
	if lifetime <= 0 {
		return Credential{}, &AuthError{
			Method: http.MethodPost,
			URL:    p.cfg.TokenURL,
			Err:    errors.New("token response carries no usable lifetime"),
		}
	}

	cred := Credential{
		Token:      tok.AccessToken,
		AcquiredAt: acquiredAt,
		Expiry:     time.Duration(float64(lifetime) * renewalFactor),
	}
	p.logger.Debug("acquired token", zap.Duration("lifetime", lifetime), zap.Time("renew_at", cred.RenewAt()))
	return cred, nil
}

func (p *Provider) authError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		aerr := &AuthError{
			StatusCode: rerr.Response.StatusCode,
			Body:       string(rerr.Body),
			Method:     http.MethodPost,
			URL:        p.cfg.TokenURL,
			Err:        err,
		}
		if req := rerr.Response.Request; req != nil {
			aerr.Method = req.Method
			aerr.URL = req.URL.String()
		}
		return aerr
	}
	return &AuthError{Method: http.MethodPost, URL: p.cfg.TokenURL, Err: err}
}

// lifetimeOf prefers the declared expires_in, then the token expiry, then the jwt exp claim.
func lifetimeOf(tok *oauth2.Token, acquiredAt time.Time) time.Duration {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v * float64(time.Second))
	case string:
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	if !tok.Expiry.IsZero() {
		return tok.Expiry.Sub(acquiredAt)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err != nil {
		return 0
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	return exp.Sub(acquiredAt)
}
