package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CertificateIssuer marks the licensing application approved and certified
// once a payment settles. Issued exactly once per payment transaction; the
// settlement flow owns that guarantee.
type CertificateIssuer interface {
	IssueCertificate(ctx context.Context, in IssueCertificateInput) (*IssueCertificateResult, error)
}

// IssueCertificateInput carries the settled-payment facts the workflow engine needs
type IssueCertificateInput struct {
	ApplicationID uint   `json:"application_id"`
	DeptRefNo     string `json:"dept_ref_no"`
	GatewayTxnID  string `json:"gateway_txn_id"`
	BankRefNo     string `json:"bank_ref_no"`
	Amount        string `json:"amount"`
	PaymentDate   string `json:"payment_date"`
}

// IssueCertificateResult is the workflow engine's acknowledgement
type IssueCertificateResult struct {
	CertificateNo string `json:"certificate_no"`
	IssuedAt      string `json:"issued_at"`
}

// WorkflowClient calls the licensing workflow engine over HTTP
type WorkflowClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewWorkflowClient creates the workflow engine client
func NewWorkflowClient(baseURL, apiKey string, timeout time.Duration) *WorkflowClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WorkflowClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
		Timeout:    timeout,
	}
}

func (c *WorkflowClient) Name() string { return "workflow" }

type workflowEnvelope struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message"`
	Data    *IssueCertificateResult `json:"data"`
}

// IssueCertificate posts the certified-payment event to the workflow engine
func (c *WorkflowClient) IssueCertificate(ctx context.Context, in IssueCertificateInput) (*IssueCertificateResult, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	url := c.BaseURL + "/internal/applications/certify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("workflow: certify returned status %d", resp.StatusCode)
	}

	var env workflowEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}
	if !env.Success || env.Data == nil {
		return nil, fmt.Errorf("workflow: certify rejected: %s", env.Message)
	}

	return env.Data, nil
}
