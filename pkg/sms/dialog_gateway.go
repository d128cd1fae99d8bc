package sms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Gateway sends transactional SMS messages to passengers. Implementations
// return the provider transaction ID for delivery tracking.
type Gateway interface {
	SendMessage(phone, message string) (int64, error)
	Name() string
}

// DialogConfig holds credentials for the Dialog eSMS API
type DialogConfig struct {
	APIURL   string
	Username string
	Password string
	Mask     string
}

// DialogGateway sends SMS through the Dialog eSMS v2 API. The API hands out
// a bearer token with an expiry on login; every send reuses the cached token
// until shortly before it lapses.
type DialogGateway struct {
	apiURL   string
	username string
	password string
	mask     string
	client   *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewDialogGateway creates a new Dialog SMS gateway client
func NewDialogGateway(config DialogConfig) *DialogGateway {
	return &DialogGateway{
		apiURL:   config.APIURL,
		username: config.Username,
		password: config.Password,
		mask:     config.Mask,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Name identifies the gateway in the notification ledger
func (d *DialogGateway) Name() string {
	return "dialog-esms"
}

// SendMessage delivers one SMS and returns the transaction ID the campaign
// was filed under.
func (d *DialogGateway) SendMessage(phone, message string) (int64, error) {
	token, err := d.ensureToken()
	if err != nil {
		return 0, err
	}

	recipient, err := FormatPhoneForDialog(phone)
	if err != nil {
		return 0, err
	}

	// The API has no idempotency key of its own, the microsecond timestamp
	// serves as one
	transactionID := time.Now().UnixMicro()

	var result campaignResponse
	err = d.post("/sms", token, campaignRequest{
		MSISDN:        []recipientEntry{{Mobile: recipient}},
		Message:       message,
		SourceAddress: d.mask,
		TransactionID: transactionID,
	}, &result)
	if err != nil {
		return 0, err
	}
	if result.Status != "success" {
		return 0, fmt.Errorf("sms send failed: %s (error code: %s)", result.Comment, result.ErrCode)
	}

	return transactionID, nil
}

// ensureToken returns a bearer token, logging in again when the cached one is
// within five minutes of expiry. Logins are serialized so a burst of sends
// after an expiry produces one login, not many.
func (d *DialogGateway) ensureToken() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.token != "" && time.Now().Before(d.tokenExpiry.Add(-5*time.Minute)) {
		return d.token, nil
	}

	payload, err := json.Marshal(map[string]string{
		"username": d.username,
		"password": d.password,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal login request: %w", err)
	}

	resp, err := d.client.Post(d.apiURL+"/login", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("dialog login request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read login response: %w", err)
	}

	var login loginResponse
	if err := json.Unmarshal(raw, &login); err != nil {
		return "", fmt.Errorf("failed to parse login response: %w", err)
	}
	if login.Status != "success" {
		return "", fmt.Errorf("dialog login failed: %s (error code: %s)", login.Comment, login.ErrCode)
	}

	d.token = login.Token
	d.tokenExpiry = time.Now().Add(time.Duration(login.Expiration) * time.Second)
	return d.token, nil
}

// post sends an authenticated JSON request to the campaign API and decodes
// the body into out.
func (d *DialogGateway) post(path, token string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, d.apiURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// FormatPhoneForDialog converts a local or international Sri Lankan number
// to the bare 9-digit form the API expects.
func FormatPhoneForDialog(phone string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	switch {
	case strings.HasPrefix(digits, "94") && len(digits) == 11:
		digits = digits[2:]
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		digits = digits[1:]
	}

	if len(digits) != 9 {
		return "", fmt.Errorf("invalid phone number %q: expected 9 digits after normalization, got %d", phone, len(digits))
	}
	return digits, nil
}

// Wire types for the eSMS v2 API.

type loginResponse struct {
	Status     string `json:"status"`
	Comment    string `json:"comment"`
	Token      string `json:"token"`
	Expiration int    `json:"expiration"` // seconds
	ErrCode    string `json:"errCode"`
}

type recipientEntry struct {
	Mobile string `json:"mobile"`
}

type campaignRequest struct {
	MSISDN        []recipientEntry `json:"msisdn"`
	Message       string           `json:"message"`
	SourceAddress string           `json:"sourceAddress,omitempty"`
	TransactionID int64            `json:"transaction_id"`
	PaymentMethod int              `json:"payment_method,omitempty"` // 0 = wallet
}

type campaignResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Data    struct {
		CampaignID    int     `json:"campaignId"`
		CampaignCost  float64 `json:"campaignCost"`
		WalletBalance float64 `json:"walletBalance"`
	} `json:"data"`
	ErrCode string `json:"errCode"`
}
