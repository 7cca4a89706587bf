package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// APIError is a non-2xx answer from the auth server. Message holds the
// server's own text and is safe to show to the user.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("auth: %d: %s", e.Status, e.Message)
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

// Client talks to the Supabase Auth (GoTrue) REST API.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
}

func NewClient(supabaseURL, anonKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(supabaseURL, "/") + "/auth/v1",
		anonKey: anonKey,
		http:    httpClient,
	}
}

// SendMagicLink asks the server to email a sign-in link that lands on
// redirectTo with a one-time code. The code is bound to challenge.
func (c *Client) SendMagicLink(ctx context.Context, email, redirectTo, challenge string) error {
	body := map[string]any{
		"email":                 email,
		"create_user":           true,
		"code_challenge":        challenge,
		"code_challenge_method": "s256",
	}
	q := url.Values{}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return c.do(ctx, http.MethodPost, "/otp", q, body, "", nil)
}

// ExchangeCode trades the one-time code from the magic link for a session.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*Session, error) {
	var s Session
	body := map[string]string{"auth_code": code, "code_verifier": verifier}
	if err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"pkce"}}, body, "", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var s Session
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"refresh_token"}}, body, "", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Logout revokes the refresh tokens of the session behind accessToken.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", nil, nil, accessToken, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in any, bearer string, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("auth: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("auth: decode %s response: %w", path, err)
	}
	return nil
}

// decodeAPIError understands the error shapes GoTrue has used over time.
func decodeAPIError(resp *http.Response) error {
	var payload struct {
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &payload)

	apiErr := &APIError{Status: resp.StatusCode, Code: payload.ErrorCode}
	if apiErr.Code == "" {
		apiErr.Code = payload.Error
	}
	for _, m := range []string{payload.Msg, payload.Message, payload.ErrorDescription, payload.Error} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
