package chain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
	"github.com/custody-service/custody_service/internal/infrastructure/config"
)

const (
	tronAddressPrefix = 0x41
	tronTimeout       = 30 * time.Second

	// Token transfers burn a near-constant amount of energy and bandwidth,
	// so the fee is computed from fixed resource prices instead of an
	// estimation call.
	tokenTransferEnergy    = 14000
	energyPriceSun         = 420
	bandwidthFeeSun        = 100000
	sunPerTRX              = 1_000_000
	tokenTransferFeeLimit  = tokenTransferEnergy*energyPriceSun + bandwidthFeeSun
)

// TronClient serves the TRC20 network over the fullnode HTTP API. Scan
// positions are millisecond timestamps, which is what the contract event
// query indexes on.
type TronClient struct {
	cfg        config.NetworkConfig
	lookback   time.Duration
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewTronClient creates a client for the configured fullnode endpoint
func NewTronClient(cfg config.NetworkConfig, scanCfg config.ScanConfig, logger *zap.Logger) (*TronClient, error) {
	if cfg.RPC == "" {
		return nil, fmt.Errorf("no fullnode endpoint configured for TRC20")
	}

	st := gobreaker.Settings{
		Name:        "TronFullnode",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &TronClient{
		cfg:        cfg,
		lookback:   time.Duration(scanCfg.LookbackMinutes) * time.Minute,
		baseURL:    strings.TrimRight(cfg.RPC, "/"),
		httpClient: &http.Client{Timeout: tronTimeout},
		breaker:    gobreaker.NewCircuitBreaker(st),
		// Public fullnodes throttle aggressively; 10 req/s keeps the
		// scanner and sweeper under the shared quota.
		limiter: rate.NewLimiter(rate.Limit(10), 10),
		logger:  logger,
	}, nil
}

// Network returns the network tag this client serves
func (c *TronClient) Network() entities.Network {
	return entities.NetworkTRC20
}

// ScanRange pins the window to the trailing lookback period. A cursor
// inside the period is pulled back to its start, so recent ranges are
// re-scanned every cycle and ledger dedup absorbs the replays.
func (c *TronClient) ScanRange(ctx context.Context, cursor int64) (int64, int64, error) {
	now := time.Now().UnixMilli()
	floor := now - c.lookback.Milliseconds()

	start := cursor
	if start <= 0 || start > floor {
		start = floor
	}

	return start, now, nil
}

type tronEventPage struct {
	Data []struct {
		TransactionID  string            `json:"transaction_id"`
		BlockTimestamp int64             `json:"block_timestamp"`
		EventName      string            `json:"event_name"`
		Result         map[string]string `json:"result"`
	} `json:"data"`
	Meta struct {
		Fingerprint string `json:"fingerprint"`
	} `json:"meta"`
}

// TransferEvents returns token transfers within [start, end] millisecond
// timestamps, following the fingerprint pagination until exhausted.
func (c *TronClient) TransferEvents(ctx context.Context, start, end int64) ([]TransferEvent, error) {
	var events []TransferEvent
	fingerprint := ""

	for {
		url := fmt.Sprintf(
			"%s/v1/contracts/%s/events?event_name=Transfer&min_block_timestamp=%d&max_block_timestamp=%d&limit=200",
			c.baseURL, c.cfg.TokenContract, start, end,
		)
		if fingerprint != "" {
			url += "&fingerprint=" + fingerprint
		}

		var page tronEventPage
		if err := c.get(ctx, url, &page); err != nil {
			return nil, err
		}

		for _, ev := range page.Data {
			value, ok := new(big.Int).SetString(ev.Result["value"], 10)
			if !ok {
				continue
			}
			from, err := hexToBase58(ev.Result["from"])
			if err != nil {
				continue
			}
			to, err := hexToBase58(ev.Result["to"])
			if err != nil {
				continue
			}
			events = append(events, TransferEvent{
				TxHash:   ev.TransactionID,
				From:     from,
				To:       to,
				Amount:   decimal.NewFromBigInt(value, -c.cfg.TokenDecimals),
				Position: ev.BlockTimestamp,
			})
		}

		if page.Meta.Fingerprint == "" || len(page.Data) == 0 {
			return events, nil
		}
		fingerprint = page.Meta.Fingerprint
	}
}

// NativeBalance returns an address's TRX balance
func (c *TronClient) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	hexAddr, err := base58ToHex(address)
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Balance int64 `json:"balance"`
	}
	err = c.post(ctx, "/wallet/getaccount", map[string]interface{}{"address": hexAddr}, &resp)
	if err != nil {
		return decimal.Zero, err
	}

	return decimal.New(resp.Balance, -c.cfg.NativeDecimals), nil
}

// TokenBalance returns an address's token balance via a constant
// balanceOf call.
func (c *TronClient) TokenBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	hexAddr, err := base58ToHex(address)
	if err != nil {
		return decimal.Zero, err
	}
	contract, err := base58ToHex(c.cfg.TokenContract)
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		ConstantResult []string `json:"constant_result"`
	}
	err = c.post(ctx, "/wallet/triggerconstantcontract", map[string]interface{}{
		"owner_address":     hexAddr,
		"contract_address":  contract,
		"function_selector": "balanceOf(address)",
		"parameter":         padAddressParameter(hexAddr),
	}, &resp)
	if err != nil {
		return decimal.Zero, err
	}
	if len(resp.ConstantResult) == 0 {
		return decimal.Zero, fmt.Errorf("%w: empty balanceOf result", domainerrors.ErrProviderUnavailable)
	}

	raw, ok := new(big.Int).SetString(resp.ConstantResult[0], 16)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: malformed balanceOf result", domainerrors.ErrProviderUnavailable)
	}

	return decimal.NewFromBigInt(raw, -c.cfg.TokenDecimals), nil
}

// EstimateTokenFee returns the fixed TRX cost of a token transfer
func (c *TronClient) EstimateTokenFee(ctx context.Context) (decimal.Decimal, error) {
	return decimal.New(tokenTransferFeeLimit, 0).Div(decimal.New(sunPerTRX, 0)), nil
}

type tronTransaction struct {
	TxID      string          `json:"txID"`
	RawData   json.RawMessage `json:"raw_data"`
	RawHex    string          `json:"raw_data_hex"`
	Signature []string        `json:"signature,omitempty"`
}

// SendNative signs and broadcasts a TRX transfer
func (c *TronClient) SendNative(ctx context.Context, privateKeyHex, to string, amount decimal.Decimal) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid signing key: %w", err)
	}

	ownerHex := hex.EncodeToString(append([]byte{tronAddressPrefix}, crypto.PubkeyToAddress(key.PublicKey).Bytes()...))
	toHex, err := base58ToHex(to)
	if err != nil {
		return "", err
	}

	var tx tronTransaction
	err = c.post(ctx, "/wallet/createtransaction", map[string]interface{}{
		"owner_address": ownerHex,
		"to_address":    toHex,
		"amount":        amount.Shift(c.cfg.NativeDecimals).IntPart(),
	}, &tx)
	if err != nil {
		return "", err
	}
	if tx.TxID == "" {
		return "", fmt.Errorf("%w: fullnode returned no transaction", domainerrors.ErrBroadcastFailed)
	}

	return c.signAndBroadcast(ctx, &tx, key)
}

// SendToken signs and broadcasts a token transfer
func (c *TronClient) SendToken(ctx context.Context, privateKeyHex, to string, amount decimal.Decimal) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid signing key: %w", err)
	}

	ownerHex := hex.EncodeToString(append([]byte{tronAddressPrefix}, crypto.PubkeyToAddress(key.PublicKey).Bytes()...))
	toHex, err := base58ToHex(to)
	if err != nil {
		return "", err
	}
	contract, err := base58ToHex(c.cfg.TokenContract)
	if err != nil {
		return "", err
	}

	raw := amount.Shift(c.cfg.TokenDecimals).BigInt()
	parameter := padAddressParameter(toHex) + fmt.Sprintf("%064x", raw)

	var resp struct {
		Transaction tronTransaction `json:"transaction"`
		Result      struct {
			Result  bool   `json:"result"`
			Message string `json:"message"`
		} `json:"result"`
	}
	err = c.post(ctx, "/wallet/triggersmartcontract", map[string]interface{}{
		"owner_address":     ownerHex,
		"contract_address":  contract,
		"function_selector": "transfer(address,uint256)",
		"parameter":         parameter,
		"fee_limit":         tokenTransferFeeLimit,
		"call_value":        0,
	}, &resp)
	if err != nil {
		return "", err
	}
	if !resp.Result.Result || resp.Transaction.TxID == "" {
		return "", fmt.Errorf("%w: %s", domainerrors.ErrBroadcastFailed, resp.Result.Message)
	}

	return c.signAndBroadcast(ctx, &resp.Transaction, key)
}

// signAndBroadcast signs the transaction id with the account key and submits
// the signed transaction. The txID is already the sha256 of raw_data, so it
// is signed directly.
func (c *TronClient) signAndBroadcast(ctx context.Context, tx *tronTransaction, key *ecdsa.PrivateKey) (string, error) {
	digest, err := hex.DecodeString(tx.TxID)
	if err != nil || len(digest) != 32 {
		return "", fmt.Errorf("%w: malformed transaction id", domainerrors.ErrBroadcastFailed)
	}

	signature, err := crypto.Sign(digest, key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}
	tx.Signature = []string{hex.EncodeToString(signature)}

	var resp struct {
		Result  bool   `json:"result"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/wallet/broadcasttransaction", tx, &resp); err != nil {
		return "", err
	}
	if !resp.Result {
		c.logger.Error("transaction broadcast rejected",
			zap.String("code", resp.Code),
			zap.String("tx_id", tx.TxID),
		)
		return "", fmt.Errorf("%w: %s", domainerrors.ErrBroadcastFailed, resp.Code)
	}

	return tx.TxID, nil
}

func (c *TronClient) get(ctx context.Context, url string, out interface{}) error {
	return c.do(ctx, http.MethodGet, url, nil, out)
}

func (c *TronClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.baseURL+path, payload, out)
}

func (c *TronClient) do(ctx context.Context, method, url string, body []byte, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fullnode returned status %d: %s", resp.StatusCode, string(data))
		}

		return nil, json.Unmarshal(data, out)
	})
	if err != nil {
		c.logger.Warn("fullnode request failed", zap.Error(err), zap.String("url", url))
		return fmt.Errorf("%w: %v", domainerrors.ErrProviderUnavailable, err)
	}

	return nil
}

// base58ToHex converts a T-address to its 41-prefixed hex form
func base58ToHex(address string) (string, error) {
	payload, version, err := base58.CheckDecode(address)
	if err != nil || version != tronAddressPrefix || len(payload) != 20 {
		return "", fmt.Errorf("invalid tron address %q", address)
	}
	return hex.EncodeToString(append([]byte{tronAddressPrefix}, payload...)), nil
}

// hexToBase58 converts an event-log hex address (0x or 41 prefixed) to a
// T-address.
func hexToBase58(hexAddr string) (string, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(hexAddr, "0x"), "0X")
	raw, err := hex.DecodeString(h)
	if err != nil {
		return "", fmt.Errorf("invalid hex address %q", hexAddr)
	}
	if len(raw) == 21 && raw[0] == tronAddressPrefix {
		raw = raw[1:]
	}
	if len(raw) != 20 {
		return "", fmt.Errorf("invalid hex address %q", hexAddr)
	}
	return base58.CheckEncode(raw, tronAddressPrefix), nil
}

// padAddressParameter left-pads a 41-prefixed hex address to a 32-byte
// ABI word, dropping the network prefix.
func padAddressParameter(hexAddr string) string {
	body := strings.TrimPrefix(hexAddr, "41")
	return strings.Repeat("0", 64-len(body)) + body
}
