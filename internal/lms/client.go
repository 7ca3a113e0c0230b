package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

var (
	ErrUserNotFound = errors.New("lms user not found")
	// ErrRateLimited menandai response 429/503: boleh di-retry.
	ErrRateLimited = errors.New("lms rate limited")
)

// APIError: penolakan terminal dari LMS (4xx/5xx selain 429/503).
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lms api error (status %d): %s", e.Status, e.Message)
}

// IsRetryable: hanya rate limit yang layak dicoba ulang.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

func (c *Client) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	u := fmt.Sprintf("%s/api/v1/users?email=%s", c.BaseURL, url.QueryEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUserNotFound
	case resp.StatusCode >= 300:
		return nil, c.asError(resp)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode lms user: %w", err)
	}
	return &user, nil
}

func (c *Client) CreateUser(ctx context.Context, email, displayName string) (*User, error) {
	body := map[string]string{"email": email, "display_name": displayName}
	resp, err := c.post(ctx, "/api/v1/users", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, c.asError(resp)
	}
	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode lms user: %w", err)
	}
	return &user, nil
}

type EnrollRequest struct {
	UserEmail     string `json:"user_email"`
	ProductID     string `json:"product_id"`
	ProductType   string `json:"product_type"`
	Price         int64  `json:"price"`
	Justification string `json:"justification"`
	SendEmail     bool   `json:"send_email"`
	// duration hanya dikirim utk lms_product_type "subscription"
	Duration     int    `json:"duration,omitempty"`
	DurationUnit string `json:"duration_unit,omitempty"`
}

// Enroll: 2xx sukses; 429/503 dibungkus ErrRateLimited (retryable);
// non-2xx lain jadi *APIError terminal.
func (c *Client) Enroll(ctx context.Context, r EnrollRequest) error {
	resp, err := c.post(ctx, "/api/v1/enrollments", r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return fmt.Errorf("enroll %s: %w", r.ProductID, ErrRateLimited)
	}
	return c.asError(resp)
}

// Unenroll dipakai flow refund (di luar saga pembelian).
func (c *Client) Unenroll(ctx context.Context, userEmail, productID, productType string) error {
	u := fmt.Sprintf("%s/api/v1/enrollments?user_email=%s&product_id=%s&product_type=%s",
		c.BaseURL, url.QueryEscape(userEmail), url.QueryEscape(productID), url.QueryEscape(productType))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.asError(resp)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	return c.HTTP.Do(req)
}

func (c *Client) asError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	// coba ambil pesan terstruktur, fallback ke body mentah
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Error != "" {
			msg = payload.Error
		} else {
			msg = payload.Message
		}
	}
	if msg == "" {
		msg = string(bytes.TrimSpace(raw))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
