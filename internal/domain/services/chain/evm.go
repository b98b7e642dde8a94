package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
	"github.com/custody-service/custody_service/internal/infrastructure/config"
)

const nativeTransferGas = 21000

// transferTopic is keccak256("Transfer(address,address,uint256)")
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// gasPriceMultiplier pads the suggested gas price so broadcasts survive
// moderate fee spikes. 110 / 100 = 1.1x.
var (
	gasPriceNumerator   = big.NewInt(110)
	gasPriceDenominator = big.NewInt(100)
)

// EVMClient serves one EVM-compatible network over JSON-RPC. Scan positions
// are block numbers.
type EVMClient struct {
	network    entities.Network
	cfg        config.NetworkConfig
	blockWin   int64
	eth        *ethclient.Client
	chainID    *big.Int
	token      common.Address
	logger     *zap.Logger
}

// NewEVMClient dials the configured RPC endpoint for one EVM network
func NewEVMClient(network entities.Network, cfg config.NetworkConfig, scanCfg config.ScanConfig, logger *zap.Logger) (*EVMClient, error) {
	if !network.IsEVM() {
		return nil, domainerrors.ErrUnsupportedNetwork
	}
	if cfg.RPC == "" {
		return nil, fmt.Errorf("no rpc endpoint configured for %s", network)
	}

	eth, err := ethclient.Dial(cfg.RPC)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s rpc: %w", network, err)
	}

	return &EVMClient{
		network:  network,
		cfg:      cfg,
		blockWin: scanCfg.BlockWindow,
		eth:      eth,
		chainID:  big.NewInt(cfg.ChainID),
		token:    common.HexToAddress(cfg.TokenContract),
		logger:   logger,
	}, nil
}

// Network returns the network tag this client serves
func (c *EVMClient) Network() entities.Network {
	return c.network
}

// ScanRange clamps the cursor behind the head by the confirmation margin,
// then takes at most one block window. The cursor therefore trails the head
// permanently, which is what gives deposits their confirmation depth.
func (c *EVMClient) ScanRange(ctx context.Context, cursor int64) (int64, int64, error) {
	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", domainerrors.ErrProviderUnavailable, err)
	}

	start, end := clampScanWindow(int64(head), cursor, c.cfg.ConfirmationMargin, c.blockWin)
	return start, end, nil
}

func clampScanWindow(head, cursor, margin, window int64) (int64, int64) {
	safeHead := head - margin
	if safeHead < 0 {
		safeHead = 0
	}

	start := cursor
	if start <= 0 || start > safeHead {
		start = safeHead
	}

	end := start + window
	if end > head {
		end = head
	}
	if end < start {
		end = start
	}

	return start, end
}

// TransferEvents returns token transfers within [start, end] blocks
func (c *EVMClient) TransferEvents(ctx context.Context, start, end int64) ([]TransferEvent, error) {
	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(start),
		ToBlock:   big.NewInt(end),
		Addresses: []common.Address{c.token},
		Topics:    [][]common.Hash{{transferTopic}},
	}

	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrProviderUnavailable, err)
	}

	events := make([]TransferEvent, 0, len(logs))
	for _, log := range logs {
		if len(log.Topics) < 3 || log.Removed {
			continue
		}
		amount := new(big.Int).SetBytes(log.Data)
		events = append(events, TransferEvent{
			TxHash:   log.TxHash.Hex(),
			From:     common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
			To:       common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
			Amount:   decimal.NewFromBigInt(amount, -c.cfg.TokenDecimals),
			Position: int64(log.BlockNumber),
		})
	}

	return events, nil
}

// NativeBalance returns an address's native coin balance
func (c *EVMClient) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	bal, err := c.eth.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domainerrors.ErrProviderUnavailable, err)
	}
	return decimal.NewFromBigInt(bal, -c.cfg.NativeDecimals), nil
}

// TokenBalance returns an address's token balance via balanceOf
func (c *EVMClient) TokenBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	data := balanceOfCalldata(common.HexToAddress(address))
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domainerrors.ErrProviderUnavailable, err)
	}
	return decimal.NewFromBigInt(new(big.Int).SetBytes(out), -c.cfg.TokenDecimals), nil
}

// EstimateTokenFee returns the padded native cost of a token transfer
func (c *EVMClient) EstimateTokenFee(ctx context.Context) (decimal.Decimal, error) {
	gasPrice, err := c.paddedGasPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	wei := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(c.cfg.GasLimit))
	return decimal.NewFromBigInt(wei, -c.cfg.NativeDecimals), nil
}

// SendNative signs and broadcasts a native coin transfer
func (c *EVMClient) SendNative(ctx context.Context, privateKeyHex, to string, amount decimal.Decimal) (string, error) {
	value := amount.Shift(c.cfg.NativeDecimals).BigInt()
	return c.send(ctx, privateKeyHex, common.HexToAddress(to), value, nativeTransferGas, nil)
}

// SendToken signs and broadcasts a token transfer
func (c *EVMClient) SendToken(ctx context.Context, privateKeyHex, to string, amount decimal.Decimal) (string, error) {
	raw := amount.Shift(c.cfg.TokenDecimals).BigInt()
	data := transferCalldata(common.HexToAddress(to), raw)
	return c.send(ctx, privateKeyHex, c.token, big.NewInt(0), c.cfg.GasLimit, data)
}

func (c *EVMClient) send(ctx context.Context, privateKeyHex string, to common.Address, value *big.Int, gasLimit uint64, data []byte) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid signing key: %w", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domainerrors.ErrProviderUnavailable, err)
	}

	gasPrice, err := c.paddedGasPrice(ctx)
	if err != nil {
		return "", err
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		c.logger.Error("transaction broadcast rejected",
			zap.Error(err),
			zap.String("network", string(c.network)),
			zap.String("from", from.Hex()),
			zap.String("to", to.Hex()),
		)
		return "", fmt.Errorf("%w: %v", domainerrors.ErrBroadcastFailed, err)
	}

	return signed.Hash().Hex(), nil
}

func (c *EVMClient) paddedGasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrProviderUnavailable, err)
	}
	padded := new(big.Int).Mul(gasPrice, gasPriceNumerator)
	return padded.Div(padded, gasPriceDenominator), nil
}

// transferCalldata encodes transfer(address,uint256)
func transferCalldata(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 4+32+32)
	copy(data[0:4], []byte{0xa9, 0x05, 0x9c, 0xbb})
	copy(data[4+12:4+32], to.Bytes())
	amount.FillBytes(data[4+32 : 4+64])
	return data
}

// balanceOfCalldata encodes balanceOf(address)
func balanceOfCalldata(owner common.Address) []byte {
	data := make([]byte, 4+32)
	copy(data[0:4], []byte{0x70, 0xa0, 0x82, 0x31})
	copy(data[4+12:4+32], owner.Bytes())
	return data
}
