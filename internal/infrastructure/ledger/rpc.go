// Package ledger implements the token-ledger query contract against a
// Solana-style JSON-RPC node. Every amount crossing the package boundary is a
// ui amount (human-readable decimal), never raw base units.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tokengate/gatekeeper/internal/api/metrics"
	"github.com/tokengate/gatekeeper/internal/core/domain"
	"github.com/tokengate/gatekeeper/internal/core/ports"
)

const defaultRequestTimeout = 15 * time.Second

// Client is a LedgerClient speaking JSON-RPC 2.0 over HTTP.
type Client struct {
	url        string
	httpClient *http.Client
	log        zerolog.Logger
}

var _ ports.LedgerClient = (*Client)(nil)

// NewClient builds a Client for the given RPC endpoint. timeout bounds each
// individual call; <= 0 uses the default.
func NewClient(url string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// ── Wire types ────────────────────────────────────────────────────────────────

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type uiTokenAmount struct {
	UIAmount *float64 `json:"uiAmount"`
	Decimals int      `json:"decimals"`
	Amount   string   `json:"amount"`
}

type tokenSupplyResult struct {
	Value uiTokenAmount `json:"value"`
}

type tokenAccountsResult struct {
	Value []struct {
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						TokenAmount uiTokenAmount `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
}

type signatureInfo struct {
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Err       any    `json:"err"`
}

type tokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner"`
	UITokenAmount uiTokenAmount `json:"uiTokenAmount"`
}

type transactionResult struct {
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Meta      *struct {
		PreTokenBalances  []tokenBalance `json:"preTokenBalances"`
		PostTokenBalances []tokenBalance `json:"postTokenBalances"`
	} `json:"meta"`
}

// ── LedgerClient implementation ───────────────────────────────────────────────

// GetSupply returns the mint's total ui supply.
func (c *Client) GetSupply(ctx context.Context, mint string) (float64, error) {
	var result tokenSupplyResult
	if err := c.call(ctx, "getTokenSupply", []any{mint}, &result); err != nil {
		return 0, err
	}
	if result.Value.UIAmount == nil {
		return 0, fmt.Errorf("getTokenSupply: mint %s has no ui amount", mint)
	}
	return *result.Value.UIAmount, nil
}

// GetBalance sums the wallet's token accounts for the mint. A wallet with no
// token account simply holds zero.
func (c *Client) GetBalance(ctx context.Context, wallet, mint string) (float64, error) {
	params := []any{
		wallet,
		map[string]any{"mint": mint},
		map[string]any{"encoding": "jsonParsed"},
	}
	var result tokenAccountsResult
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return 0, err
	}

	var total float64
	for _, acc := range result.Value {
		if amount := acc.Account.Data.Parsed.Info.TokenAmount.UIAmount; amount != nil {
			total += *amount
		}
	}
	return total, nil
}

// ListRecentSignatures returns up to limit signatures for the wallet,
// newest-first. The node already returns them in that order; the explicit
// slot-descending sort makes the contract hold regardless of node behaviour.
func (c *Client) ListRecentSignatures(ctx context.Context, wallet string, limit int) ([]string, error) {
	params := []any{wallet, map[string]any{"limit": limit}}
	var infos []signatureInfo
	if err := c.call(ctx, "getSignaturesForAddress", params, &infos); err != nil {
		return nil, err
	}

	sort.SliceStable(infos, func(i, j int) bool { return infos[i].Slot > infos[j].Slot })

	signatures := make([]string, 0, len(infos))
	for _, info := range infos {
		signatures = append(signatures, info.Signature)
	}
	return signatures, nil
}

// GetTransferDeltas resolves one signature into the holder's and treasury's
// balance movement of the mint, read from the transaction's pre/post token
// balance snapshots. Transactions whose metadata or required snapshots are
// missing yield domain.ErrTransferUnreadable so callers skip them.
func (c *Client) GetTransferDeltas(ctx context.Context, signature, wallet, treasury, mint string) (*ports.TransferDeltas, error) {
	params := []any{
		signature,
		map[string]any{"encoding": "jsonParsed", "maxSupportedTransactionVersion": 0},
	}
	var tx transactionResult
	if err := c.call(ctx, "getTransaction", params, &tx); err != nil {
		return nil, err
	}

	if tx.Meta == nil {
		return nil, fmt.Errorf("%w: no metadata for %s", domain.ErrTransferUnreadable, signature)
	}

	holderPre, okHolderPre := balanceFor(tx.Meta.PreTokenBalances, wallet, mint)
	holderPost, okHolderPost := balanceFor(tx.Meta.PostTokenBalances, wallet, mint)
	treasuryPost, okTreasuryPost := balanceFor(tx.Meta.PostTokenBalances, treasury, mint)
	// A treasury may have held none of the token before this transfer.
	treasuryPre, _ := balanceFor(tx.Meta.PreTokenBalances, treasury, mint)

	if !okHolderPre || !okHolderPost || !okTreasuryPost {
		return nil, fmt.Errorf("%w: %s missing balance snapshots (holder pre=%t post=%t treasury post=%t)",
			domain.ErrTransferUnreadable, signature, okHolderPre, okHolderPost, okTreasuryPost)
	}

	var blockTime time.Time
	if tx.BlockTime != nil {
		blockTime = time.Unix(*tx.BlockTime, 0).UTC()
	}

	return &ports.TransferDeltas{
		Signature:     signature,
		Slot:          tx.Slot,
		BlockTime:     blockTime,
		UserDelta:     holderPre - holderPost,
		TreasuryDelta: treasuryPost - treasuryPre,
	}, nil
}

// balanceFor finds the ui balance snapshot for an owner+mint pair.
func balanceFor(balances []tokenBalance, owner, mint string) (float64, bool) {
	for _, b := range balances {
		if b.Owner == owner && b.Mint == mint {
			if b.UITokenAmount.UIAmount == nil {
				return 0, false
			}
			return *b.UITokenAmount.UIAmount, true
		}
	}
	return 0, false
}

// call performs one JSON-RPC round trip and decodes result into out.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.LedgerRequestsTotal.WithLabelValues(method, "error").Inc()
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.LedgerRequestsTotal.WithLabelValues(method, "error").Inc()
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		metrics.LedgerRequestsTotal.WithLabelValues(method, "error").Inc()
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		metrics.LedgerRequestsTotal.WithLabelValues(method, "error").Inc()
		return fmt.Errorf("%s: %w", method, rpcResp.Error)
	}
	if len(rpcResp.Result) == 0 || string(rpcResp.Result) == "null" {
		// getTransaction returns null for unknown or pruned signatures.
		metrics.LedgerRequestsTotal.WithLabelValues(method, "ok").Inc()
		return fmt.Errorf("%w: %s returned no result", domain.ErrTransferUnreadable, method)
	}

	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		metrics.LedgerRequestsTotal.WithLabelValues(method, "error").Inc()
		return fmt.Errorf("%s: unmarshal result: %w", method, err)
	}
	metrics.LedgerRequestsTotal.WithLabelValues(method, "ok").Inc()
	return nil
}
