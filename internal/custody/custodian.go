package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"lv-securities/internal/types"

	"github.com/shopspring/decimal"
)

// TransferRequest is the outbound "move legal title" call for one trade.
type TransferRequest struct {
	TransferID  string          `json:"transfer_id"`
	TradeID     string          `json:"trade_id"`
	ProductID   string          `json:"product_id"`
	Qty         decimal.Decimal `json:"qty"`
	FromAccount string          `json:"from_account"`
	ToAccount   string          `json:"to_account"`
}

// Receipt is the custodian's acknowledgement of a submitted transfer.
type Receipt struct {
	Reference string           `json:"reference"`
	Fee       *decimal.Decimal `json:"fee,omitempty"`
}

// StatusReport is the custodian's view of a transfer's progress.
type StatusReport struct {
	Reference string               `json:"reference"`
	Status    types.TransferStatus `json:"status"`
	Reason    string               `json:"reason,omitempty"`
}

// Custodian is the external share-register integration.
type Custodian interface {
	SubmitTransfer(ctx context.Context, req TransferRequest) (Receipt, error)
	TransferStatus(ctx context.Context, reference string) (StatusReport, error)
}

// HTTPCustodian talks to the custodian REST API.
type HTTPCustodian struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPCustodian(baseURL, apiKey string, timeout time.Duration) *HTTPCustodian {
	return &HTTPCustodian{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPCustodian) SubmitTransfer(ctx context.Context, req TransferRequest) (Receipt, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Receipt{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Receipt{}, fmt.Errorf("custodian submit: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Receipt{}, fmt.Errorf("custodian submit: status %d: %s", resp.StatusCode, msg)
	}
	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return Receipt{}, fmt.Errorf("custodian submit: decode response: %w", err)
	}
	if receipt.Reference == "" {
		return Receipt{}, fmt.Errorf("custodian submit: empty reference")
	}
	return receipt, nil
}

func (c *HTTPCustodian) TransferStatus(ctx context.Context, reference string) (StatusReport, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/transfers/"+reference, nil)
	if err != nil {
		return StatusReport{}, err
	}
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return StatusReport{}, fmt.Errorf("custodian status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return StatusReport{}, fmt.Errorf("custodian status: status %d: %s", resp.StatusCode, msg)
	}
	var report StatusReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return StatusReport{}, fmt.Errorf("custodian status: decode response: %w", err)
	}
	return report, nil
}
