package sweep_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
	"github.com/custody-service/custody_service/internal/domain/services/chain"
	"github.com/custody-service/custody_service/internal/domain/services/sweep"
	"github.com/custody-service/custody_service/pkg/crypto"
	"github.com/custody-service/custody_service/pkg/logger"
)

const testEncryptionKey = "sweep-test-key"

type tokenSend struct {
	key    string
	to     string
	amount decimal.Decimal
}

type nativeSend struct {
	to     string
	amount decimal.Decimal
}

type fakeChainClient struct {
	network       entities.Network
	tokenBalances map[string]decimal.Decimal
	nativeBalance map[string]decimal.Decimal
	fee           decimal.Decimal

	tokenSends  []tokenSend
	nativeSends []nativeSend
}

func (f *fakeChainClient) Network() entities.Network { return f.network }

func (f *fakeChainClient) ScanRange(ctx context.Context, cursor int64) (int64, int64, error) {
	return 0, 0, nil
}

func (f *fakeChainClient) TransferEvents(ctx context.Context, start, end int64) ([]chain.TransferEvent, error) {
	return nil, nil
}

func (f *fakeChainClient) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	return f.nativeBalance[address], nil
}

func (f *fakeChainClient) TokenBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	return f.tokenBalances[address], nil
}

func (f *fakeChainClient) EstimateTokenFee(ctx context.Context) (decimal.Decimal, error) {
	return f.fee, nil
}

func (f *fakeChainClient) SendNative(ctx context.Context, privateKeyHex, to string, amount decimal.Decimal) (string, error) {
	f.nativeSends = append(f.nativeSends, nativeSend{to: to, amount: amount})
	return "0xgas", nil
}

func (f *fakeChainClient) SendToken(ctx context.Context, privateKeyHex, to string, amount decimal.Decimal) (string, error) {
	f.tokenSends = append(f.tokenSends, tokenSend{key: privateKeyHex, to: to, amount: amount})
	return "0xsweep", nil
}

type fakeWalletStore struct {
	wallets []*entities.Wallet
}

func (f *fakeWalletStore) ListWalletsWithMinBalance(ctx context.Context, network entities.Network, min decimal.Decimal) ([]*entities.Wallet, error) {
	return f.wallets, nil
}

type fakeMasterStore struct {
	master   *entities.MasterWalletNetwork
	credited decimal.Decimal
}

func (f *fakeMasterStore) GetNetwork(ctx context.Context, walletType entities.MasterWalletType, network entities.Network) (*entities.MasterWalletNetwork, error) {
	return f.master, nil
}

func (f *fakeMasterStore) CreditBalance(ctx context.Context, networkID uuid.UUID, amount decimal.Decimal) error {
	f.credited = f.credited.Add(amount)
	return nil
}

type fakeLedger struct {
	entries []*entities.LedgerEntry
	seen    map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{seen: make(map[string]bool)}
}

func (f *fakeLedger) Insert(ctx context.Context, entry *entities.LedgerEntry) error {
	if f.seen[entry.TxID] {
		return domainerrors.ErrDuplicateTransaction
	}
	f.seen[entry.TxID] = true
	f.entries = append(f.entries, entry)
	return nil
}

type directTxRunner struct{}

func (directTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func encrypt(t *testing.T, plaintext string) string {
	t.Helper()
	out, err := crypto.Encrypt(plaintext, testEncryptionKey)
	require.NoError(t, err)
	return out
}

func newWallet(t *testing.T, address string) *entities.Wallet {
	t.Helper()
	return &entities.Wallet{
		ID:                  uuid.New(),
		AccountID:           uuid.New(),
		Network:             entities.NetworkERC20,
		Address:             address,
		PrivateKeyEncrypted: encrypt(t, "0xdepositkey"),
	}
}

func newSweepFixture(t *testing.T, client *fakeChainClient, wallets ...*entities.Wallet) (*sweep.Service, *fakeMasterStore, *fakeLedger) {
	t.Helper()
	master := &fakeMasterStore{master: &entities.MasterWalletNetwork{
		ID:                  uuid.New(),
		Network:             entities.NetworkERC20,
		Address:             "0xmaster",
		PrivateKeyEncrypted: encrypt(t, "0xmasterkey"),
	}}
	ledger := newFakeLedger()

	svc := sweep.NewService(
		chain.NewRegistry(client),
		&fakeWalletStore{wallets: wallets},
		master,
		ledger,
		directTxRunner{},
		sweep.Config{
			MinCollect: decimal.NewFromInt(10),
			MaxFeeNative: map[entities.Network]decimal.Decimal{
				entities.NetworkERC20: decimal.NewFromFloat(0.01),
			},
		},
		testEncryptionKey,
		logger.New("error", "development"),
	)
	return svc, master, ledger
}

func TestCollectSweepsOnChainBalance(t *testing.T) {
	client := &fakeChainClient{
		network:       entities.NetworkERC20,
		tokenBalances: map[string]decimal.Decimal{"0xdeposit": decimal.NewFromInt(150)},
		nativeBalance: map[string]decimal.Decimal{"0xdeposit": decimal.NewFromFloat(0.02)},
		fee:           decimal.NewFromFloat(0.005),
	}

	svc, master, _ := newSweepFixture(t, client, newWallet(t, "0xdeposit"))
	require.NoError(t, svc.Collect(context.Background(), entities.NetworkERC20))

	require.Len(t, client.tokenSends, 1)
	send := client.tokenSends[0]
	assert.Equal(t, "0xmaster", send.to)
	assert.True(t, send.amount.Equal(decimal.NewFromInt(150)), "sweeps the full on-chain balance")
	assert.Equal(t, "0xdepositkey", send.key, "signs with the deposit address key")
	assert.Empty(t, client.nativeSends, "no top-up when gas is sufficient")
	assert.True(t, master.credited.Equal(decimal.NewFromInt(150)))
}

func TestCollectRecordsSweepLedgerEntry(t *testing.T) {
	client := &fakeChainClient{
		network:       entities.NetworkERC20,
		tokenBalances: map[string]decimal.Decimal{"0xdeposit": decimal.NewFromInt(150)},
		nativeBalance: map[string]decimal.Decimal{"0xdeposit": decimal.NewFromFloat(0.02)},
		fee:           decimal.NewFromFloat(0.005),
	}

	svc, master, ledger := newSweepFixture(t, client, newWallet(t, "0xdeposit"))
	require.NoError(t, svc.Collect(context.Background(), entities.NetworkERC20))

	// Every sweep lands in the append-only record set alongside the master
	// credit, keyed on the chain hash.
	require.Len(t, ledger.entries, 1)
	entry := ledger.entries[0]
	assert.Equal(t, "0xsweep", entry.TxID)
	assert.Equal(t, entities.TransactionTypeSweep, entry.Type)
	assert.Equal(t, entities.TransactionStatusSuccess, entry.Status)
	assert.Equal(t, "0xdeposit", entry.FromAddress)
	assert.Equal(t, "0xmaster", entry.ToAddress)
	assert.True(t, entry.Amount.Equal(decimal.NewFromInt(150)))
	assert.True(t, master.credited.Equal(entry.Amount))
}

func TestCollectTopsUpGasWhenShort(t *testing.T) {
	client := &fakeChainClient{
		network:       entities.NetworkERC20,
		tokenBalances: map[string]decimal.Decimal{"0xdeposit": decimal.NewFromInt(50)},
		nativeBalance: map[string]decimal.Decimal{"0xdeposit": decimal.NewFromFloat(0.001)},
		fee:           decimal.NewFromFloat(0.005),
	}

	svc, _, _ := newSweepFixture(t, client, newWallet(t, "0xdeposit"))
	require.NoError(t, svc.Collect(context.Background(), entities.NetworkERC20))

	require.Len(t, client.nativeSends, 1)
	topUp := client.nativeSends[0]
	assert.Equal(t, "0xdeposit", topUp.to)
	assert.True(t, topUp.amount.Equal(decimal.NewFromFloat(0.004)), "tops up only the shortfall, got %s", topUp.amount)
	require.Len(t, client.tokenSends, 1)
}

func TestCollectSkipsWhenFeeAboveCap(t *testing.T) {
	client := &fakeChainClient{
		network:       entities.NetworkERC20,
		tokenBalances: map[string]decimal.Decimal{"0xdeposit": decimal.NewFromInt(50)},
		nativeBalance: map[string]decimal.Decimal{"0xdeposit": decimal.NewFromInt(1)},
		fee:           decimal.NewFromFloat(0.5),
	}

	svc, master, _ := newSweepFixture(t, client, newWallet(t, "0xdeposit"))
	require.NoError(t, svc.Collect(context.Background(), entities.NetworkERC20))

	assert.Empty(t, client.tokenSends)
	assert.True(t, master.credited.IsZero())
}

func TestCollectSkipsBalancesBelowThreshold(t *testing.T) {
	// The ledger said this wallet qualifies, but on chain it holds less
	// than the collection threshold.
	client := &fakeChainClient{
		network:       entities.NetworkERC20,
		tokenBalances: map[string]decimal.Decimal{"0xdeposit": decimal.NewFromInt(5)},
		nativeBalance: map[string]decimal.Decimal{"0xdeposit": decimal.NewFromInt(1)},
		fee:           decimal.NewFromFloat(0.005),
	}

	svc, _, _ := newSweepFixture(t, client, newWallet(t, "0xdeposit"))
	require.NoError(t, svc.Collect(context.Background(), entities.NetworkERC20))
	assert.Empty(t, client.tokenSends)
}

func TestCollectIsolatesFailingWallets(t *testing.T) {
	// First wallet's key is garbage and fails decryption; the second
	// still sweeps.
	bad := newWallet(t, "0xbad")
	bad.PrivateKeyEncrypted = "not-ciphertext"
	good := newWallet(t, "0xgood")

	client := &fakeChainClient{
		network: entities.NetworkERC20,
		tokenBalances: map[string]decimal.Decimal{
			"0xbad":  decimal.NewFromInt(40),
			"0xgood": decimal.NewFromInt(60),
		},
		nativeBalance: map[string]decimal.Decimal{
			"0xbad":  decimal.NewFromInt(1),
			"0xgood": decimal.NewFromInt(1),
		},
		fee: decimal.NewFromFloat(0.005),
	}

	svc, master, _ := newSweepFixture(t, client, bad, good)
	require.NoError(t, svc.Collect(context.Background(), entities.NetworkERC20))

	require.Len(t, client.tokenSends, 1)
	assert.True(t, client.tokenSends[0].amount.Equal(decimal.NewFromInt(60)))
	assert.True(t, master.credited.Equal(decimal.NewFromInt(60)))
}
