package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fivetwenty-io/polaris-client/internal/constants"
	polarishttp "github.com/fivetwenty-io/polaris-client/internal/http"
	"github.com/fivetwenty-io/polaris-client/pkg/polaris"
)

// State is the authentication state of a Provider.
type State int

// States.
const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateMFAPending
	StateAuthenticated
	StateExpired
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateMFAPending:
		return "MFA_PENDING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateExpired:
		return "EXPIRED"
	default:
		return "UNAUTHENTICATED"
	}
}

// ProviderConfig configures a Provider.
type ProviderConfig struct {
	// HTTP sends login requests; its base URL is the API base URL.
	HTTP   *polarishttp.Client
	Source CredentialSource
	// Store optionally persists tokens under StoreKey.
	Store    polaris.TokenStore
	StoreKey string
	// MFARememberToken is sent with the first session request.
	MFARememberToken string
	UserAgent        string
	// Timeout bounds one login, independent of the caller's context.
	Timeout time.Duration
	Logger  polaris.Logger
}

// Provider obtains, caches and renews the access token. It is safe for
// concurrent use; concurrent renewals collapse into one login.
type Provider struct {
	http        *polarishttp.Client
	source      CredentialSource
	store       polaris.TokenStore
	storeKey    string
	mfaRemember string
	userAgent   string
	timeout     time.Duration
	logger      polaris.Logger

	group singleflight.Group

	mu       sync.RWMutex
	token    *Token
	state    State
	rejected string
}

// NewProvider creates a Provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.HTTP == nil {
		return nil, polaris.NewError(polaris.KindValidation, "auth", constants.ErrNoBaseURL)
	}

	if cfg.Source == nil {
		return nil, polaris.NewError(polaris.KindValidation, "auth", constants.ErrNoCredentials)
	}

	p := &Provider{
		http:        cfg.HTTP,
		source:      cfg.Source,
		store:       cfg.Store,
		storeKey:    cfg.StoreKey,
		mfaRemember: cfg.MFARememberToken,
		userAgent:   cfg.UserAgent,
		timeout:     cfg.Timeout,
		logger:      cfg.Logger,
	}

	if p.timeout <= 0 {
		p.timeout = constants.DefaultAuthTimeout
	}

	if p.logger == nil {
		p.logger = polaris.NopLogger{}
	}

	return p, nil
}

// State returns the current state.
func (p *Provider) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.state == StateAuthenticated && !p.token.Valid() {
		return StateExpired
	}

	return p.state
}

// Token returns a usable access token, logging in when none is cached or
// the cached one expired.
func (p *Provider) Token(ctx context.Context) (string, error) {
	if tok := p.current(); tok.Valid() {
		return tok.AccessToken, nil
	}

	v, err, _ := p.group.Do("token", func() (interface{}, error) {
		if tok := p.current(); tok.Valid() {
			return tok.AccessToken, nil
		}

		return p.authenticate(ctx, true)
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// Login forces a fresh login with the configured credentials, bypassing
// the cached and stored token.
func (p *Provider) Login(ctx context.Context) (string, error) {
	v, err, _ := p.group.Do("token", func() (interface{}, error) {
		return p.authenticate(ctx, false)
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// Headers returns a fresh header set for one GraphQL request.
func (p *Provider) Headers(ctx context.Context) (http.Header, error) {
	token, err := p.Token(ctx)
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("Authorization", "Bearer "+token)

	if p.userAgent != "" {
		h.Set("User-Agent", p.userAgent)
	}

	return h, nil
}

// Invalidate drops the cached token if it is the one the server rejected.
// A token already replaced by a newer login is left alone.
func (p *Provider) Invalidate(rejected string) {
	p.mu.Lock()

	if p.token == nil || p.token.AccessToken != rejected {
		p.mu.Unlock()

		return
	}

	p.token = nil
	p.state = StateExpired
	p.rejected = rejected
	p.mu.Unlock()

	p.logger.Info("Access token rejected, will log in again", nil)
	p.forget()
}

// Logout drops the cached and stored token.
func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	p.token = nil
	p.state = StateUnauthenticated
	p.mu.Unlock()

	if p.store == nil {
		return nil
	}

	if err := p.store.Delete(ctx, p.storeKey); err != nil {
		return fmt.Errorf("failed to delete stored token: %w", err)
	}

	return nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(h http.Header) string {
	return strings.TrimPrefix(h.Get("Authorization"), "Bearer ")
}

func (p *Provider) current() *Token {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.token
}

func (p *Provider) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Provider) authenticate(ctx context.Context, useStore bool) (string, error) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	p.setState(StateAuthenticating)

	if useStore {
		if tok := p.loadStored(actx); tok != nil {
			p.accept(tok)

			return tok.AccessToken, nil
		}
	}

	creds, err := p.source.Credentials(actx)
	if err != nil {
		p.setState(StateUnauthenticated)

		return "", polaris.NewError(polaris.KindAuthentication, "credentials", err)
	}
	defer creds.Wipe()

	var access string

	switch creds.Flow {
	case FlowSession:
		access, err = p.session(actx, creds)
	case FlowServiceAccount:
		access, err = p.clientToken(actx, creds)
	case FlowStatic:
		access = creds.AccessToken
		if access == "" || access == p.rejectedToken() {
			err = polaris.NewError(polaris.KindAuthentication, creds.Flow.String(), constants.ErrStaticToken)
		}
	default:
		err = polaris.NewError(polaris.KindValidation, "credentials", constants.ErrNoCredentials)
	}

	if err != nil {
		p.setState(StateUnauthenticated)
		p.logger.Warn("Login failed", map[string]interface{}{"flow": creds.Flow.String(), "error": err.Error()})

		return "", err
	}

	tok := NewToken(access)

	p.source.Discard()
	p.accept(tok)
	p.persist(actx, tok)

	p.logger.Info("Logged in", map[string]interface{}{
		"flow":       creds.Flow.String(),
		"expires_at": tok.ExpiresAt,
	})

	return tok.AccessToken, nil
}

func (p *Provider) accept(tok *Token) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.token = tok
	p.state = StateAuthenticated
}

func (p *Provider) rejectedToken() string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.rejected
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	MFAToken    string `json:"mfa_token"`
	Message     string `json:"message"`
}

func (p *Provider) session(ctx context.Context, creds *Credentials) (string, error) {
	const op = "session"

	body := map[string]string{
		"username": creds.Username,
		"password": string(creds.Password),
	}

	if p.mfaRemember != "" {
		body["mfa_remember_token"] = p.mfaRemember
	}

	ar, err := p.post(ctx, op, p.http.BaseURL()+constants.SessionPath, body)
	if err != nil {
		return "", err
	}

	if ar.AccessToken != "" {
		return ar.AccessToken, nil
	}

	if ar.MFAToken == "" {
		return "", authFailure(op, ar.Message)
	}

	p.setState(StateMFAPending)
	p.logger.Debug("MFA challenge received, resubmitting", nil)

	body["mfa_remember_token"] = ar.MFAToken

	p.setState(StateAuthenticating)

	ar, err = p.post(ctx, op, p.http.BaseURL()+constants.SessionPath, body)
	if err != nil {
		return "", err
	}

	if ar.AccessToken == "" {
		return "", authFailure(op, ar.Message)
	}

	return ar.AccessToken, nil
}

func (p *Provider) clientToken(ctx context.Context, creds *Credentials) (string, error) {
	const op = "client_token"

	target := creds.TokenURL
	if target == "" {
		target = p.http.BaseURL() + constants.ClientTokenPath
	}

	ar, err := p.post(ctx, op, target, map[string]string{
		"client_id":     creds.ClientID,
		"client_secret": string(creds.ClientSecret),
		"name":          creds.Name,
	})
	if err != nil {
		return "", err
	}

	if ar.AccessToken == "" {
		return "", authFailure(op, ar.Message)
	}

	return ar.AccessToken, nil
}

func (p *Provider) post(ctx context.Context, op, target string, body map[string]string) (*authResponse, error) {
	resp, err := p.http.PostURL(ctx, op, target, body, nil)
	if err != nil {
		return nil, err
	}

	var ar authResponse
	if err := json.Unmarshal(resp.Body, &ar); err != nil {
		return nil, polaris.NewProtocolError(op, resp.StatusCode, "login response is not JSON", "", nil)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &polaris.Error{
			Kind:        polaris.KindAuthentication,
			Op:          op,
			StatusCode:  resp.StatusCode,
			Description: polaris.StatusDescription(resp.StatusCode),
			Message:     ar.Message,
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, polaris.NewProtocolError(op, resp.StatusCode, ar.Message, "", nil)
	}

	return &ar, nil
}

func authFailure(op, message string) error {
	if message == "" {
		message = "response carries neither access_token nor mfa_token"
	}

	return &polaris.Error{Kind: polaris.KindAuthentication, Op: op, Message: message}
}

func (p *Provider) loadStored(ctx context.Context) *Token {
	if p.store == nil {
		return nil
	}

	access, expiresAt, err := p.store.Load(ctx, p.storeKey)
	if err != nil {
		if !errors.Is(err, constants.ErrTokenNotFound) {
			p.logger.Warn("Failed to load stored token", map[string]interface{}{"error": err.Error()})
		}

		return nil
	}

	tok := &Token{AccessToken: access, ExpiresAt: expiresAt}
	if !tok.Valid() || access == p.rejectedToken() {
		return nil
	}

	p.logger.Debug("Using stored token", map[string]interface{}{"expires_at": expiresAt})

	return tok
}

func (p *Provider) persist(ctx context.Context, tok *Token) {
	if p.store == nil {
		return
	}

	if err := p.store.Save(ctx, p.storeKey, tok.AccessToken, tok.ExpiresAt); err != nil {
		p.logger.Warn("Failed to persist token", map[string]interface{}{"error": err.Error()})
	}
}

func (p *Provider) forget() {
	if p.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.ShortHTTPTimeout)
	defer cancel()

	if err := p.store.Delete(ctx, p.storeKey); err != nil {
		p.logger.Warn("Failed to delete stored token", map[string]interface{}{"error": err.Error()})
	}
}
