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

	"github.com/tumapay/sacco-wallet/pkg/config"
	"github.com/tumapay/sacco-wallet/pkg/logger"
	"github.com/tumapay/sacco-wallet/pkg/phone"
)

const timestampLayout = "20060102150405"

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type STKQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

type QRResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	RequestID           string `json:"RequestID"`
	QRCode              string `json:"QRCode"`
}

type QRStatusResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
	Amount              int64  `json:"Amount"`
	PhoneNumber         string `json:"PhoneNumber"`
	ReceiptNumber       string `json:"ReceiptNumber"`
}

// Gateway is the Daraja surface the handlers depend on; the concrete client
// is injected at construction so tests can substitute a double.
type Gateway interface {
	InitiateSTKPush(ctx context.Context, rawPhone string, amount int64, accountRef string) (*STKPushResponse, error)
	QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error)
	GenerateQRCode(ctx context.Context, amount int64, reference string) (*QRResponse, error)
	QueryQRStatus(ctx context.Context, requestID string) (*QRStatusResponse, error)
}

type Client struct {
	Config config.Config

	http *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		Config: cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	url := c.Config.DarajaBaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.Config.DarajaConsumerKey, c.Config.DarajaConsumerSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &GatewayError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %v", err)
	}

	c.token = tokenResp.AccessToken
	// tokens last an hour; refresh a minute early
	c.tokenExpiry = time.Now().Add(59 * time.Minute)

	return c.token, nil
}

// password is base64(shortcode + passkey + timestamp), as Daraja requires.
func (c *Client) password(timestamp string) string {
	raw := c.Config.DarajaShortcode + c.Config.DarajaPasskey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

func (c *Client) InitiateSTKPush(ctx context.Context, rawPhone string, amount int64, accountRef string) (*STKPushResponse, error) {
	msisdn, err := phone.To254(rawPhone)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format(timestampLayout)
	payload := map[string]interface{}{
		"BusinessShortCode": c.Config.DarajaShortcode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            amount,
		"PartyA":            msisdn,
		"PartyB":            c.Config.DarajaShortcode,
		"PhoneNumber":       msisdn,
		"CallBackURL":       fmt.Sprintf("%s/api/mpesa/callback", c.Config.CallbackBaseURL),
		"AccountReference":  accountRef,
		"TransactionDesc":   "Wallet top up",
	}

	var pushResp STKPushResponse
	if err := c.post(ctx, "/mpesa/stkpush/v1/processrequest", payload, &pushResp); err != nil {
		return nil, err
	}

	if pushResp.ResponseCode != "0" {
		return nil, &GatewayError{StatusCode: http.StatusOK, Body: pushResp.ResponseDescription}
	}

	return &pushResp, nil
}

func (c *Client) QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error) {
	timestamp := time.Now().Format(timestampLayout)
	payload := map[string]interface{}{
		"BusinessShortCode": c.Config.DarajaShortcode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	var queryResp STKQueryResponse
	if err := c.post(ctx, "/mpesa/stkpushquery/v1/query", payload, &queryResp); err != nil {
		return nil, err
	}

	return &queryResp, nil
}

func (c *Client) GenerateQRCode(ctx context.Context, amount int64, reference string) (*QRResponse, error) {
	payload := map[string]interface{}{
		"MerchantName": "SACCO Wallet",
		"RefNo":        reference,
		"Amount":       amount,
		"TrxCode":      "BG",
		"CPI":          c.Config.DarajaShortcode,
		"Size":         "300",
	}

	var qrResp QRResponse
	if err := c.post(ctx, "/mpesa/qrcode/v1/generate", payload, &qrResp); err != nil {
		return nil, err
	}

	if qrResp.ResponseCode != "00" && qrResp.ResponseCode != "0" {
		return nil, &GatewayError{StatusCode: http.StatusOK, Body: qrResp.ResponseDescription}
	}

	return &qrResp, nil
}

func (c *Client) QueryQRStatus(ctx context.Context, requestID string) (*QRStatusResponse, error) {
	payload := map[string]interface{}{
		"RequestID": requestID,
		"CPI":       c.Config.DarajaShortcode,
	}

	var statusResp QRStatusResponse
	if err := c.post(ctx, "/mpesa/qrcode/v1/query", payload, &statusResp); err != nil {
		return nil, err
	}

	return &statusResp, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.Config.DarajaBaseURL+path, bytes.NewReader(jsonPayload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		logger.Error("Daraja error", logger.Fields{
			"status_code": resp.StatusCode,
			"path":        path,
			"body":        string(respBody),
		})
		return &GatewayError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse daraja response: %v", err)
	}

	return nil
}
