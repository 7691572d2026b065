// Package mpesa implements a Daraja-style mobile money gateway client:
// OAuth token management, STK push initiation, and result callback parsing.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"shambascan/internal/config"
)

// InitiateRequest carries the parameters of one STK push attempt. The phone
// number must already be in canonical international form.
type InitiateRequest struct {
	PhoneNumber      string
	Amount           float64
	AccountReference string
	TransactionDesc  string
	UserID           string
}

// InitiateResponse is the gateway's answer to an STK push attempt.
type InitiateResponse struct {
	Success           bool
	Message           string
	MerchantRequestID string
	CheckoutRequestID string
	ResponseCode      string
}

// Initiator is the payment initiation collaborator used by the confirmation
// session machinery.
type Initiator interface {
	STKPush(ctx context.Context, req InitiateRequest) (*InitiateResponse, error)
}

// Client talks to the Daraja API over HTTP.
type Client struct {
	cfg        config.MpesaConfig
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time

	now func() time.Time
}

var _ Initiator = (*Client)(nil)

// NewClient creates a gateway client from configuration.
func NewClient(cfg config.MpesaConfig, logger *zap.Logger) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("mpesa"),
		now:        time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
	ErrorMessage        string `json:"errorMessage"`
}

// STKPush asks the gateway to push a payment prompt to the subscriber's
// handset. A transport or gateway-declared failure is reported through the
// error or the Success flag respectively; the caller decides whether to
// surface or retry.
func (c *Client) STKPush(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("mpesa: fetch access token: %w", err)
	}

	timestamp := c.now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.Shortcode + c.cfg.Passkey + timestamp),
	)

	payload := stkPushPayload{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            int64(req.Amount),
		PartyA:            req.PhoneNumber,
		PartyB:            c.cfg.Shortcode,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.TransactionDesc,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("mpesa: marshal stk push payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mpesa: stk push request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mpesa: read stk push response: %w", err)
	}

	var parsed stkPushResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("mpesa: decode stk push response: %w", err)
	}

	result := &InitiateResponse{
		Success:           resp.StatusCode == http.StatusOK && parsed.ResponseCode == "0",
		MerchantRequestID: parsed.MerchantRequestID,
		CheckoutRequestID: parsed.CheckoutRequestID,
		ResponseCode:      parsed.ResponseCode,
	}

	switch {
	case result.Success && parsed.CustomerMessage != "":
		result.Message = parsed.CustomerMessage
	case parsed.ErrorMessage != "":
		result.Message = parsed.ErrorMessage
	default:
		result.Message = parsed.ResponseDescription
	}

	c.logger.Info("stk push initiated",
		zap.String("checkout_request_id", result.CheckoutRequestID),
		zap.Bool("success", result.Success),
		zap.String("response_code", result.ResponseCode))

	return result, nil
}

// accessToken returns a cached OAuth token, fetching a fresh one when the
// cache is cold or near expiry. Transient fetch failures are retried with
// exponential backoff.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Add(30*time.Second).Before(c.tokenExpiry) {
		return c.token, nil
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		token, expiresIn, err := c.fetchToken(ctx)
		if err != nil {
			c.logger.Warn("token fetch failed, will retry", zap.Error(err))
			return retry.RetryableError(err)
		}
		c.token = token
		c.tokenExpiry = c.now().Add(expiresIn)
		return nil
	})
	if err != nil {
		return "", err
	}
	return c.token, nil
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", 0, err
	}
	if parsed.AccessToken == "" {
		return "", 0, fmt.Errorf("token endpoint returned empty token")
	}

	expiresIn := time.Hour
	if parsed.ExpiresIn != "" {
		if seconds, err := time.ParseDuration(parsed.ExpiresIn + "s"); err == nil {
			expiresIn = seconds
		}
	}
	return parsed.AccessToken, expiresIn, nil
}
