package ring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	defaultClientID = "ring_official_android"
	defaultScope    = "client"
	userAgent       = "RingUnlockServer-1.0"

	// Used when the vendor response carries neither expires_in nor a parsable
	// exp claim. Short on purpose: better an early refresh than a 401.
	fallbackTokenTTL = 15 * time.Minute

	twoFactorSupportHeader = "2fa-support"
	twoFactorCodeHeader    = "2fa-code"
	twoFactorPromptHeader  = "2fa-prompt-id"
	hardwareIDHeader       = "hardware_id"
)

// Client talks to the vendor's authentication and device APIs. It never
// retries internally; callers decide whether a refresh-and-retry is warranted.
type Client struct {
	oauthCfg   *oauth2.Config
	apiBaseURL string
	hardwareID string
	httpClient *http.Client
	nowTime    func() time.Time
}

// ClientOption modifies a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client (primarily for testing).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithHardwareID pins the hardware ID sent to the vendor. The vendor ties
// refresh tokens to the hardware ID, so it must stay stable across restarts
// if sessions are to survive them.
func WithHardwareID(id string) ClientOption {
	return func(c *Client) {
		c.hardwareID = id
	}
}

// WithClientID overrides the OAuth client ID used for all grants.
func WithClientID(id string) ClientOption {
	return func(c *Client) {
		c.oauthCfg.ClientID = id
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// NewClient creates a vendor client against the given auth and API base URLs.
func NewClient(authBaseURL, apiBaseURL string, options ...ClientOption) *Client {
	c := &Client{
		oauthCfg: &oauth2.Config{
			ClientID: defaultClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  strings.TrimRight(authBaseURL, "/") + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{defaultScope},
		},
		apiBaseURL: strings.TrimRight(apiBaseURL, "/"),
		hardwareID: uuid.New().String(),
		nowTime:    time.Now,
	}

	for _, opt := range options {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	// Every request to the vendor carries the user agent and hardware ID.
	c.httpClient = &http.Client{
		Timeout:   c.httpClient.Timeout,
		Transport: &headerTransport{base: c.httpClient.Transport, hardwareID: c.hardwareID},
	}

	return c
}

// headerTransport decorates outgoing requests with the headers the vendor
// requires on every call.
type headerTransport struct {
	base       http.RoundTripper
	hardwareID string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", userAgent)
	clone.Header.Set(hardwareIDHeader, t.hardwareID)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}

// oauthContext makes the oauth2 package use our decorated HTTP client.
func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// twoFactorChallenge is the body of the vendor's 412 response to a
// first-factor login when the account has two-factor auth enabled.
type twoFactorChallenge struct {
	PromptID string `json:"prompt_id"`
	TSVState string `json:"tsv_state"`
	Phone    string `json:"phone"`
}

// StartLogin performs the first-factor login call. Three outcomes:
//   - the account has two-factor auth enabled: the vendor sends a one-time
//     code out of band and a PendingLoginAttempt is returned;
//   - the account has no second factor: a complete Session is returned;
//   - the credentials are wrong: ErrInvalidCredentials.
func (c *Client) StartLogin(ctx context.Context, email, password string) (*PendingLoginAttempt, *Session, error) {
	tok, err := c.oauthCfg.PasswordCredentialsToken(c.oauthContext(ctx), email, password)
	if err == nil {
		return nil, c.sessionFromToken(tok), nil
	}

	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) || retrieveErr.Response == nil {
		return nil, nil, errors.Wrap(err, "[StartLogin] token endpoint")
	}

	switch retrieveErr.Response.StatusCode {
	case http.StatusPreconditionFailed:
		var challenge twoFactorChallenge
		if err := json.Unmarshal(retrieveErr.Body, &challenge); err != nil {
			return nil, nil, errors.Wrap(err, "[StartLogin] malformed two-factor challenge")
		}
		return &PendingLoginAttempt{
			Email:    email,
			Password: password,
			PromptID: challenge.PromptID,
		}, nil, nil
	case http.StatusBadRequest, http.StatusUnauthorized:
		return nil, nil, errors.Wrap(ErrInvalidCredentials, "[StartLogin]")
	}
	return nil, nil, errors.Wrapf(err, "[StartLogin] unexpected vendor status %d", retrieveErr.Response.StatusCode)
}

// tokenResponse is the vendor's token endpoint success body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// SubmitTwoFactorCode exchanges the out-of-band code for the first Session.
// The code and prompt ID travel in headers, which the oauth2 package cannot
// attach per grant, so this request is built by hand.
func (c *Client) SubmitTwoFactorCode(ctx context.Context, attempt *PendingLoginAttempt, code string) (*Session, error) {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {attempt.Email},
		"password":   {attempt.Password},
		"client_id":  {c.oauthCfg.ClientID},
		"scope":      {defaultScope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauthCfg.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "[SubmitTwoFactorCode] build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(twoFactorSupportHeader, "true")
	req.Header.Set(twoFactorCodeHeader, code)
	req.Header.Set(twoFactorPromptHeader, attempt.PromptID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[SubmitTwoFactorCode] token endpoint")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var tr tokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			return nil, errors.Wrap(err, "[SubmitTwoFactorCode] decode token response")
		}
		return c.sessionFromTokenResponse(tr), nil
	case resp.StatusCode == http.StatusPreconditionFailed:
		return nil, errors.Wrap(ErrCodeExpired, "[SubmitTwoFactorCode]")
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnauthorized:
		return nil, errors.Wrap(ErrInvalidCode, "[SubmitTwoFactorCode]")
	}
	return nil, errors.Wrapf(ErrInvalidCode, "[SubmitTwoFactorCode] unexpected vendor status %d", resp.StatusCode)
}

// Refresh mints a new access token from the session's refresh token. Safe to
// call before the current token has expired. The stored refresh token is
// carried over when the vendor does not rotate it.
func (c *Client) Refresh(ctx context.Context, session *Session) (*Session, error) {
	source := c.oauthCfg.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: session.RefreshToken})
	tok, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, errors.Wrapf(ErrRefreshRejected, "[Refresh] vendor status %d", retrieveErr.Response.StatusCode)
		}
		return nil, errors.Wrap(err, "[Refresh] token endpoint")
	}

	refreshed := c.sessionFromToken(tok)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = session.RefreshToken
	}
	return refreshed, nil
}

// deviceListing mirrors the vendor's device listing body. Categories are
// flattened in a fixed order so listing order stays deterministic.
type deviceListing struct {
	Doorbots           []wireDevice `json:"doorbots"`
	AuthorizedDoorbots []wireDevice `json:"authorized_doorbots"`
	StickupCams        []wireDevice `json:"stickup_cams"`
	Chimes             []wireDevice `json:"chimes"`
	Other              []wireDevice `json:"other"`
}

type wireDevice struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	LocationID  string `json:"location_id"`
}

// ListDevices fetches the vendor's device listing in one round trip. The
// result is a finite snapshot; no pagination cursor is retained.
func (c *Client) ListDevices(ctx context.Context, session *Session) ([]Device, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/clients_api/ring_devices", nil)
	if err != nil {
		return nil, errors.Wrap(err, "[ListDevices] build request")
	}
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(ErrDeviceUnreachable, "[ListDevices] "+err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errors.Wrap(ErrUnauthorized, "[ListDevices]")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrDeviceUnreachable, "[ListDevices] vendor status %d", resp.StatusCode)
	}

	var listing deviceListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, errors.Wrap(err, "[ListDevices] decode listing")
	}

	var devices []Device
	for _, category := range [][]wireDevice{
		listing.Doorbots,
		listing.AuthorizedDoorbots,
		listing.StickupCams,
		listing.Chimes,
		listing.Other,
	} {
		for _, wd := range category {
			devices = append(devices, Device{
				ID:         strconv.FormatInt(wd.ID, 10),
				Kind:       wd.Kind,
				Name:       wd.Description,
				LocationID: wd.LocationID,
			})
		}
	}
	return devices, nil
}

// unlockCommand is the RPC-style open-door payload.
type unlockCommand struct {
	CommandName string        `json:"command_name"`
	Request     unlockRequest `json:"request"`
}

type unlockRequest struct {
	JSONRPC string       `json:"jsonrpc"`
	Method  string       `json:"method"`
	Params  unlockParams `json:"params"`
}

type unlockParams struct {
	DoorID int `json:"door_id"`
}

// SendUnlockCommand issues the open-door command for the device. The vendor
// acknowledges acceptance only; there is no confirmation that the door
// physically opened.
func (c *Client) SendUnlockCommand(ctx context.Context, session *Session, device Device) error {
	payload := unlockCommand{
		CommandName: "device_rpc",
		Request: unlockRequest{
			JSONRPC: "2.0",
			Method:  "unlock_door",
			Params:  unlockParams{DoorID: 0},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "[SendUnlockCommand] marshal payload")
	}

	commandURL := fmt.Sprintf("%s/commands/v1/devices/%s/device_rpc", c.apiBaseURL, device.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, commandURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "[SendUnlockCommand] build request")
	}
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(ErrDeviceUnreachable, "[SendUnlockCommand] "+err.Error())
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.Wrap(ErrUnauthorized, "[SendUnlockCommand]")
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode >= http.StatusInternalServerError:
		return errors.Wrapf(ErrDeviceUnreachable, "[SendUnlockCommand] vendor status %d", resp.StatusCode)
	}
	return errors.Wrapf(ErrCommandFailed, "[SendUnlockCommand] vendor status %d", resp.StatusCode)
}

func (c *Client) sessionFromToken(tok *oauth2.Token) *Session {
	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = jwtExpiry(tok.AccessToken)
	}
	if expiresAt.IsZero() {
		expiresAt = c.nowTime().Add(fallbackTokenTTL)
	}
	return &Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}

func (c *Client) sessionFromTokenResponse(tr tokenResponse) *Session {
	expiresAt := time.Time{}
	if tr.ExpiresIn > 0 {
		expiresAt = c.nowTime().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	if expiresAt.IsZero() {
		expiresAt = jwtExpiry(tr.AccessToken)
	}
	if expiresAt.IsZero() {
		expiresAt = c.nowTime().Add(fallbackTokenTTL)
	}
	return &Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}

// jwtExpiry pulls the exp claim out of the access token without verifying the
// signature. The expiry is advisory only; the vendor remains the authority.
func jwtExpiry(accessToken string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
