package chain

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/custody-service/custody_service/internal/infrastructure/config"
)

// Mainnet USDT contract and its 41-prefixed hex form.
const (
	usdtBase58 = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	usdtHex    = "41a614f803b6fd780986a42c78ec9c7f77e6ded13c"
)

func newTestTronClient(t *testing.T) *TronClient {
	t.Helper()
	client, err := NewTronClient(config.NetworkConfig{
		RPC:            "http://localhost:8090",
		TokenContract:  usdtBase58,
		TokenDecimals:  6,
		NativeDecimals: 6,
	}, config.ScanConfig{LookbackMinutes: 20}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestNewTronClientRequiresEndpoint(t *testing.T) {
	_, err := NewTronClient(config.NetworkConfig{}, config.ScanConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestBase58ToHex(t *testing.T) {
	got, err := base58ToHex(usdtBase58)
	require.NoError(t, err)
	assert.Equal(t, usdtHex, got)

	_, err = base58ToHex("not-an-address")
	assert.Error(t, err)

	// A bitcoin address carries the wrong version byte.
	_, err = base58ToHex("1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2")
	assert.Error(t, err)
}

func TestHexToBase58(t *testing.T) {
	got, err := hexToBase58(usdtHex)
	require.NoError(t, err)
	assert.Equal(t, usdtBase58, got)

	// Event logs deliver the 20-byte body with a 0x prefix.
	got, err = hexToBase58("0x" + strings.TrimPrefix(usdtHex, "41"))
	require.NoError(t, err)
	assert.Equal(t, usdtBase58, got)

	_, err = hexToBase58("41deadbeef")
	assert.Error(t, err)
}

func TestPadAddressParameter(t *testing.T) {
	param := padAddressParameter(usdtHex)
	assert.Len(t, param, 64)
	assert.True(t, strings.HasSuffix(param, strings.TrimPrefix(usdtHex, "41")))
	assert.True(t, strings.HasPrefix(param, "000000000000000000000000"))
}

func TestTronScanRangePinsToLookback(t *testing.T) {
	client := newTestTronClient(t)
	ctx := context.Background()
	lookbackMs := (20 * time.Minute).Milliseconds()

	// A zero cursor starts at the lookback floor.
	start, end, err := client.ScanRange(ctx, 0)
	require.NoError(t, err)
	now := time.Now().UnixMilli()
	assert.InDelta(t, now-lookbackMs, start, 2000)
	assert.InDelta(t, now, end, 2000)

	// A cursor inside the lookback window is pulled back to the floor so
	// recent ranges are re-scanned.
	recent := now - 1000
	start, _, err = client.ScanRange(ctx, recent)
	require.NoError(t, err)
	assert.Less(t, start, recent)
	assert.InDelta(t, now-lookbackMs, start, 2000)

	// A cursor older than the floor is kept as-is.
	old := now - lookbackMs - 5000
	start, _, err = client.ScanRange(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, old, start)
}

func TestTronEstimateTokenFee(t *testing.T) {
	client := newTestTronClient(t)

	fee, err := client.EstimateTokenFee(context.Background())
	require.NoError(t, err)

	// 14000 energy at 420 sun plus the bandwidth fee, in TRX.
	want := decimal.NewFromFloat(5.98)
	assert.True(t, fee.Equal(want), "fee %s", fee)
}
