package otc_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
	"github.com/custody-service/custody_service/internal/domain/services/otc"
	"github.com/custody-service/custody_service/pkg/logger"
)

type fakeOrderStore struct {
	orders map[uuid.UUID]*entities.OtcOrder
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[uuid.UUID]*entities.OtcOrder)}
}

func (f *fakeOrderStore) Create(ctx context.Context, order *entities.OtcOrder) error {
	order.ID = uuid.New()
	order.CreatedAt = time.Now()
	cp := *order
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeOrderStore) GetByID(ctx context.Context, id uuid.UUID) (*entities.OtcOrder, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, domainerrors.NotFoundError("order")
	}
	cp := *order
	return &cp, nil
}

func (f *fakeOrderStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.OtcOrderStatus) error {
	order, ok := f.orders[id]
	if !ok || order.Status != from {
		return domainerrors.ErrInvalidOrderState
	}
	order.Status = to
	return nil
}

func (f *fakeOrderStore) MarkFiatDeposited(ctx context.Context, id uuid.UUID) error {
	order, ok := f.orders[id]
	if !ok || order.FiatDeposited {
		return domainerrors.ErrInvalidOrderState
	}
	order.FiatDeposited = true
	return nil
}

func (f *fakeOrderStore) UpdateFill(ctx context.Context, id uuid.UUID, price, fiatAmount decimal.Decimal) error {
	order, ok := f.orders[id]
	if !ok {
		return domainerrors.NotFoundError("order")
	}
	order.Price = price
	order.FiatAmount = fiatAmount
	return nil
}

func (f *fakeOrderStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*entities.OtcOrder, error) {
	var out []*entities.OtcOrder
	for _, order := range f.orders {
		if order.UserID == userID {
			cp := *order
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) ListProcessingPreOrders(ctx context.Context) ([]*entities.OtcOrder, error) {
	var out []*entities.OtcOrder
	for _, order := range f.orders {
		if order.IsPreOrder && order.Status == entities.OtcOrderStatusProcessing {
			cp := *order
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) ListExpired(ctx context.Context, now time.Time) ([]*entities.OtcOrder, error) {
	var out []*entities.OtcOrder
	for _, order := range f.orders {
		if order.IsExpired(now) && !order.Status.IsTerminal() {
			cp := *order
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeBalanceStore struct {
	fiat     map[uuid.UUID]decimal.Decimal
	locked   map[uuid.UUID]decimal.Decimal
	balances map[uuid.UUID]decimal.Decimal
}

func newFakeBalanceStore() *fakeBalanceStore {
	return &fakeBalanceStore{
		fiat:     make(map[uuid.UUID]decimal.Decimal),
		locked:   make(map[uuid.UUID]decimal.Decimal),
		balances: make(map[uuid.UUID]decimal.Decimal),
	}
}

func (f *fakeBalanceStore) CreditBalance(ctx context.Context, accountID uuid.UUID, network entities.Network, amount decimal.Decimal) error {
	f.balances[accountID] = f.balances[accountID].Add(amount)
	return nil
}

func (f *fakeBalanceStore) DebitBalanceIfSufficient(ctx context.Context, accountID uuid.UUID, network entities.Network, amount decimal.Decimal) error {
	if f.balances[accountID].LessThan(amount) {
		return domainerrors.ErrInsufficientBalance
	}
	f.balances[accountID] = f.balances[accountID].Sub(amount)
	return nil
}

func (f *fakeBalanceStore) CreditFiat(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	f.fiat[accountID] = f.fiat[accountID].Add(amount)
	return nil
}

func (f *fakeBalanceStore) DebitFiatIfSufficient(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	if f.fiat[accountID].LessThan(amount) {
		return domainerrors.ErrInsufficientBalance
	}
	f.fiat[accountID] = f.fiat[accountID].Sub(amount)
	return nil
}

func (f *fakeBalanceStore) LockFiat(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	if f.fiat[accountID].LessThan(amount) {
		return domainerrors.ErrInsufficientBalance
	}
	f.fiat[accountID] = f.fiat[accountID].Sub(amount)
	f.locked[accountID] = f.locked[accountID].Add(amount)
	return nil
}

func (f *fakeBalanceStore) UnlockFiat(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	if f.locked[accountID].LessThan(amount) {
		return domainerrors.ErrInsufficientBalance
	}
	f.locked[accountID] = f.locked[accountID].Sub(amount)
	f.fiat[accountID] = f.fiat[accountID].Add(amount)
	return nil
}

func (f *fakeBalanceStore) SettleLockedFiat(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) error {
	if f.locked[accountID].LessThan(amount) {
		return domainerrors.ErrInsufficientBalance
	}
	f.locked[accountID] = f.locked[accountID].Sub(amount)
	return nil
}

type fakeReserveStore struct {
	networkID uuid.UUID
	balance   decimal.Decimal
	fiat      decimal.Decimal
}

func (f *fakeReserveStore) GetNetwork(ctx context.Context, walletType entities.MasterWalletType, network entities.Network) (*entities.MasterWalletNetwork, error) {
	return &entities.MasterWalletNetwork{ID: f.networkID, Network: network, Balance: f.balance}, nil
}

func (f *fakeReserveStore) CreditBalance(ctx context.Context, networkID uuid.UUID, amount decimal.Decimal) error {
	f.balance = f.balance.Add(amount)
	return nil
}

func (f *fakeReserveStore) DebitBalanceIfSufficient(ctx context.Context, networkID uuid.UUID, amount decimal.Decimal) error {
	if f.balance.LessThan(amount) {
		return domainerrors.ErrInsufficientBalance
	}
	f.balance = f.balance.Sub(amount)
	return nil
}

func (f *fakeReserveStore) CreditFiat(ctx context.Context, walletType entities.MasterWalletType, amount decimal.Decimal) error {
	f.fiat = f.fiat.Add(amount)
	return nil
}

func (f *fakeReserveStore) DebitFiatIfSufficient(ctx context.Context, walletType entities.MasterWalletType, amount decimal.Decimal) error {
	if f.fiat.LessThan(amount) {
		return domainerrors.ErrInsufficientBalance
	}
	f.fiat = f.fiat.Sub(amount)
	return nil
}

type fakeRateSource struct {
	price decimal.Decimal
}

func (f *fakeRateSource) Current(ctx context.Context, asset string) (*entities.Rate, error) {
	return &entities.Rate{Asset: asset, Price: f.price, UpdatedAt: time.Now()}, nil
}

type fakeAccountReader struct {
	accounts map[uuid.UUID]*entities.Account
}

func (f *fakeAccountReader) GetByID(ctx context.Context, id uuid.UUID) (*entities.Account, error) {
	account, ok := f.accounts[id]
	if !ok {
		return nil, domainerrors.NotFoundError("account")
	}
	return account, nil
}

type fakeOrderHistory struct {
	volume decimal.Decimal
	failed int
}

func (f *fakeOrderHistory) SumFiatVolumeSince(ctx context.Context, userID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	return f.volume, nil
}

func (f *fakeOrderHistory) CountFailedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	return f.failed, nil
}

type directTxRunner struct{}

func (directTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	service  *otc.Service
	orders   *fakeOrderStore
	balances *fakeBalanceStore
	reserve  *fakeReserveStore
	rates    *fakeRateSource
	history  *fakeOrderHistory
	userID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	userID := uuid.New()
	orders := newFakeOrderStore()
	balances := newFakeBalanceStore()
	reserve := &fakeReserveStore{
		networkID: uuid.New(),
		balance:   decimal.NewFromInt(1_000_000),
		fiat:      decimal.NewFromInt(1_000_000),
	}
	rates := &fakeRateSource{price: decimal.NewFromInt(100)}
	accounts := &fakeAccountReader{accounts: map[uuid.UUID]*entities.Account{
		userID: {ID: userID, TwoFAEnabled: true, KYCStatus: entities.KYCStatusApproved},
	}}
	history := &fakeOrderHistory{volume: decimal.Zero}

	pricer := otc.NewPricer(rates, "USDT", decimal.NewFromInt(1), 5*time.Minute,
		decimal.NewFromInt(100), decimal.NewFromInt(100000))
	gate := otc.NewGate(accounts, history, otc.GateConfig{
		MaxSingleOrderFiat: decimal.NewFromInt(50000),
		MaxDailyVolumeFiat: decimal.NewFromInt(100000),
		MaxFailedPerHour:   5,
	})

	service := otc.NewService(orders, balances, reserve, pricer, gate, directTxRunner{}, otc.Config{
		MinOrderAmount:    decimal.NewFromInt(100),
		MaxOrderAmount:    decimal.NewFromInt(100000),
		SlippageTolerance: decimal.NewFromFloat(0.01),
		MatchTolerance:    decimal.NewFromFloat(0.001),
		PreOrderExpiry:    72 * time.Hour,
		FiatCurrency:      "USD",
	}, logger.New("error", "development"))

	return &fixture{
		service:  service,
		orders:   orders,
		balances: balances,
		reserve:  reserve,
		rates:    rates,
		history:  history,
		userID:   userID,
	}
}

// buyPrice is the spread-adjusted buy price for the fixture's 1% spread
// over a market price of 100.
func buyPrice() decimal.Decimal {
	return decimal.NewFromInt(101)
}

// preOrderPrice is a limit price inside the 1% slippage tolerance but
// outside the 0.1% match tolerance, so a pre-order placed at it parks
// instead of settling on the spot.
func preOrderPrice() decimal.Decimal {
	return decimal.NewFromFloat(100.5)
}

func TestQuoteAppliesSpread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buy, err := f.service.Quote(ctx, entities.OtcOrderTypeBuy, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, buy.Price.Equal(decimal.NewFromInt(101)), "buy price %s", buy.Price)
	assert.True(t, buy.FiatAmount.Equal(decimal.NewFromInt(10100)))

	sell, err := f.service.Quote(ctx, entities.OtcOrderTypeSell, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, sell.Price.Equal(decimal.NewFromInt(99)), "sell price %s", sell.Price)
}

func TestQuoteRejectsAmountOutsideRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Quote(ctx, entities.OtcOrderTypeBuy, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)

	_, err = f.service.Quote(ctx, entities.OtcOrderTypeBuy, decimal.NewFromInt(200000))
	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
}

func TestPlaceInstantBuySettlesAllLegs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.balances.fiat[f.userID] = decimal.NewFromInt(20000)

	order, err := f.service.PlaceOrder(ctx, otc.PlaceOrderRequest{
		UserID:  f.userID,
		Type:    entities.OtcOrderTypeBuy,
		Network: entities.NetworkERC20,
		Amount:  decimal.NewFromInt(100),
		Price:   buyPrice(),
	})
	require.NoError(t, err)
	assert.Equal(t, entities.OtcOrderStatusCompleted, order.Status)

	// 100 units at 101: user pays 10100 fiat, receives 100 on-ledger.
	assert.True(t, f.balances.fiat[f.userID].Equal(decimal.NewFromInt(9900)))
	assert.True(t, f.balances.balances[f.userID].Equal(decimal.NewFromInt(100)))
	assert.True(t, f.reserve.balance.Equal(decimal.NewFromInt(999900)))
	assert.True(t, f.reserve.fiat.Equal(decimal.NewFromInt(1010100)))
}

func TestPlaceInstantSellSettlesAllLegs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.balances.balances[f.userID] = decimal.NewFromInt(500)

	order, err := f.service.PlaceOrder(ctx, otc.PlaceOrderRequest{
		UserID:  f.userID,
		Type:    entities.OtcOrderTypeSell,
		Network: entities.NetworkBEP20,
		Amount:  decimal.NewFromInt(200),
		Price:   decimal.NewFromInt(99),
	})
	require.NoError(t, err)
	assert.Equal(t, entities.OtcOrderStatusCompleted, order.Status)

	// 200 units at 99: user hands over 200, receives 19800 fiat.
	assert.True(t, f.balances.balances[f.userID].Equal(decimal.NewFromInt(300)))
	assert.True(t, f.balances.fiat[f.userID].Equal(decimal.NewFromInt(19800)))
	assert.True(t, f.reserve.balance.Equal(decimal.NewFromInt(1000200)))
}

func TestPlaceInstantBuyInsufficientFiatFailsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.balances.fiat[f.userID] = decimal.NewFromInt(50)

	order, err := f.service.PlaceOrder(ctx, otc.PlaceOrderRequest{
		UserID:  f.userID,
		Type:    entities.OtcOrderTypeBuy,
		Network: entities.NetworkERC20,
		Amount:  decimal.NewFromInt(100),
		Price:   buyPrice(),
	})
	require.ErrorIs(t, err, domainerrors.ErrInsufficientBalance)
	require.NotNil(t, order)
	assert.Equal(t, entities.OtcOrderStatusFailed, order.Status)

	// Nothing moved.
	assert.True(t, f.balances.fiat[f.userID].Equal(decimal.NewFromInt(50)))
	assert.True(t, f.balances.balances[f.userID].IsZero())
}

func TestPlaceOrderRejectsStalePrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.balances.fiat[f.userID] = decimal.NewFromInt(20000)

	// Quoted at 101, market since moved to 110: drift is far past 1%.
	f.rates.price = decimal.NewFromInt(110)

	_, err := f.service.PlaceOrder(ctx, otc.PlaceOrderRequest{
		UserID:  f.userID,
		Type:    entities.OtcOrderTypeBuy,
		Network: entities.NetworkERC20,
		Amount:  decimal.NewFromInt(100),
		Price:   buyPrice(),
	})
	assert.ErrorIs(t, err, domainerrors.ErrQuoteExpired)
}

func TestPlaceOrderRejectsMissingPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.PlaceOrder(ctx, otc.PlaceOrderRequest{
		UserID:  f.userID,
		Type:    entities.OtcOrderTypeBuy,
		Network: entities.NetworkERC20,
		Amount:  decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, domainerrors.ErrQuoteExpired)
}

func TestGateBlocksUnverifiedAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noKYC := uuid.New()
	accounts := &fakeAccountReader{accounts: map[uuid.UUID]*entities.Account{
		noKYC: {ID: noKYC, TwoFAEnabled: true, KYCStatus: entities.KYCStatusPending},
	}}
	gate := otc.NewGate(accounts, f.history, otc.GateConfig{
		MaxSingleOrderFiat: decimal.NewFromInt(50000),
		MaxDailyVolumeFiat: decimal.NewFromInt(100000),
		MaxFailedPerHour:   5,
	})

	err := gate.Check(ctx, noKYC, decimal.NewFromInt(1000))
	assert.ErrorIs(t, err, domainerrors.ErrSecurityRequirements)
}

func TestGateEnforcesLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.balances.fiat[f.userID] = decimal.NewFromInt(1_000_000)

	// Single-order cap: 600 units at 101 is over 50k fiat.
	_, err := f.service.PlaceOrder(ctx, otc.PlaceOrderRequest{
		UserID:  f.userID,
		Type:    entities.OtcOrderTypeBuy,
		Network: entities.NetworkERC20,
		Amount:  decimal.NewFromInt(600),
		Price:   buyPrice(),
	})
	assert.ErrorIs(t, err, domainerrors.ErrOrderLimitExceeded)

	// Daily volume cap counts prior orders.
	f.history.volume = decimal.NewFromInt(95000)
	_, err = f.service.PlaceOrder(ctx, otc.PlaceOrderRequest{
		UserID:  f.userID,
		Type:    entities.OtcOrderTypeBuy,
		Network: entities.NetworkERC20,
		Amount:  decimal.NewFromInt(100),
		Price:   buyPrice(),
	})
	assert.ErrorIs(t, err, domainerrors.ErrOrderLimitExceeded)

	// Too many recent failures rate-limits further orders.
	f.history.volume = decimal.Zero
	f.history.failed = 5
	_, err = f.service.PlaceOrder(ctx, otc.PlaceOrderRequest{
		UserID:  f.userID,
		Type:    entities.OtcOrderTypeBuy,
		Network: entities.NetworkERC20,
		Amount:  decimal.NewFromInt(100),
		Price:   buyPrice(),
	})
	assert.ErrorIs(t, err, domainerrors.ErrRateLimit)
}

func TestPreOrderLocksFiat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.balances.fiat[f.userID] = decimal.NewFromInt(20000)

	order, err := f.service.PlaceOrder(ctx, otc.PlaceOrderRequest{
		UserID:   f.userID,
		Type:     entities.OtcOrderTypeBuy,
		Network:  entities.NetworkERC20,
		Amount:   decimal.NewFromInt(100),
		Price:    preOrderPrice(),
		PreOrder: true,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.OtcOrderStatusProcessing, order.Status)
	assert.True(t, order.IsPreOrder)
	require.NotNil(t, order.ExpiresAt)

	locked := order.FiatAmount
	assert.True(t, f.balances.locked[f.userID].Equal(locked))
	assert.True(t, f.balances.fiat[f.userID].Equal(decimal.NewFromInt(20000).Sub(locked)))
}

func TestPreOrderMustBeBuy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.balances.balances[f.userID] = decimal.NewFromInt(500)

	_, err := f.service.PlaceOrder(ctx, otc.PlaceOrderRequest{
		UserID:   f.userID,
		Type:     entities.OtcOrderTypeSell,
		Network:  entities.NetworkERC20,
		Amount:   decimal.NewFromInt(100),
		Price:    decimal.NewFromInt(99),
		PreOrder: true,
	})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)
}

func TestCancelPreOrderRefundsLockedFiat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.balances.fiat[f.userID] = decimal.NewFromInt(20000)

	order, err := f.service.PlaceOrder(ctx, otc.PlaceOrderRequest{
		UserID:   f.userID,
		Type:     entities.OtcOrderTypeBuy,
		Network:  entities.NetworkERC20,
		Amount:   decimal.NewFromInt(100),
		Price:    preOrderPrice(),
		PreOrder: true,
	})
	require.NoError(t, err)

	require.NoError(t, f.service.CancelOrder(ctx, f.userID, order.ID))

	stored, err := f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OtcOrderStatusCancelled, stored.Status)
	assert.True(t, f.balances.locked[f.userID].IsZero())
	assert.True(t, f.balances.fiat[f.userID].Equal(decimal.NewFromInt(20000)))
}

func TestCancelOrderByOtherUserLooksLikeNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.balances.fiat[f.userID] = decimal.NewFromInt(20000)

	order, err := f.service.PlaceOrder(ctx, otc.PlaceOrderRequest{
		UserID:   f.userID,
		Type:     entities.OtcOrderTypeBuy,
		Network:  entities.NetworkERC20,
		Amount:   decimal.NewFromInt(100),
		Price:    preOrderPrice(),
		PreOrder: true,
	})
	require.NoError(t, err)

	err = f.service.CancelOrder(ctx, uuid.New(), order.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestProcessPreOrdersFillsOnPriceMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.balances.fiat[f.userID] = decimal.NewFromInt(20000)

	order, err := f.service.PlaceOrder(ctx, otc.PlaceOrderRequest{
		UserID:   f.userID,
		Type:     entities.OtcOrderTypeBuy,
		Network:  entities.NetworkERC20,
		Amount:   decimal.NewFromInt(100),
		Price:    preOrderPrice(),
		PreOrder: true,
	})
	require.NoError(t, err)

	// Market drops until the buy price reaches the requested 100.5.
	f.rates.price = decimal.NewFromFloat(99.5)
	require.NoError(t, f.service.ProcessPreOrders(ctx))

	stored, err := f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OtcOrderStatusCompleted, stored.Status)
	assert.True(t, stored.FiatDeposited)
	assert.True(t, f.balances.locked[f.userID].IsZero())
	assert.True(t, f.balances.balances[f.userID].Equal(decimal.NewFromInt(100)))
	assert.True(t, f.reserve.fiat.Equal(decimal.NewFromInt(1_000_000).Add(order.FiatAmount)))
}

func TestPreOrderAtMarketPriceSettlesImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.balances.fiat[f.userID] = decimal.NewFromInt(20000)

	// The requested price is already on market, so there is nothing to
	// wait for: the order settles on placement instead of parking.
	order, err := f.service.PlaceOrder(ctx, otc.PlaceOrderRequest{
		UserID:   f.userID,
		Type:     entities.OtcOrderTypeBuy,
		Network:  entities.NetworkERC20,
		Amount:   decimal.NewFromInt(100),
		Price:    buyPrice(),
		PreOrder: true,
	})
	require.NoError(t, err)
	assert.Equal(t, entities.OtcOrderStatusCompleted, order.Status)
	assert.True(t, order.IsPreOrder)

	// Settled like an instant order: fiat debited, nothing locked.
	assert.True(t, f.balances.fiat[f.userID].Equal(decimal.NewFromInt(9900)))
	assert.True(t, f.balances.locked[f.userID].IsZero())
	assert.True(t, f.balances.balances[f.userID].Equal(decimal.NewFromInt(100)))
	assert.True(t, f.reserve.fiat.Equal(decimal.NewFromInt(1_010_100)))
}

func TestProcessPreOrdersSkipsUnmatchedPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.balances.fiat[f.userID] = decimal.NewFromInt(20000)

	order, err := f.service.PlaceOrder(ctx, otc.PlaceOrderRequest{
		UserID:   f.userID,
		Type:     entities.OtcOrderTypeBuy,
		Network:  entities.NetworkERC20,
		Amount:   decimal.NewFromInt(100),
		Price:    preOrderPrice(),
		PreOrder: true,
	})
	require.NoError(t, err)

	// Market has moved well past the 0.1% match tolerance.
	f.rates.price = decimal.NewFromInt(105)
	require.NoError(t, f.service.ProcessPreOrders(ctx))

	stored, err := f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OtcOrderStatusProcessing, stored.Status)
	assert.False(t, f.balances.locked[f.userID].IsZero())
}

func TestExpireOrdersRefundsLockedFiat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.balances.fiat[f.userID] = decimal.NewFromInt(20000)

	order, err := f.service.PlaceOrder(ctx, otc.PlaceOrderRequest{
		UserID:   f.userID,
		Type:     entities.OtcOrderTypeBuy,
		Network:  entities.NetworkERC20,
		Amount:   decimal.NewFromInt(100),
		Price:    preOrderPrice(),
		PreOrder: true,
	})
	require.NoError(t, err)

	// Force the order past its expiry.
	past := time.Now().Add(-time.Hour)
	f.orders.orders[order.ID].ExpiresAt = &past

	require.NoError(t, f.service.ExpireOrders(ctx))

	stored, err := f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.OtcOrderStatusCancelled, stored.Status)
	assert.True(t, f.balances.locked[f.userID].IsZero())
	assert.True(t, f.balances.fiat[f.userID].Equal(decimal.NewFromInt(20000)))
}

func TestWithinTolerance(t *testing.T) {
	tol := decimal.NewFromFloat(0.01)
	current := decimal.NewFromInt(100)

	assert.True(t, otc.WithinTolerance(decimal.NewFromInt(100), current, tol))
	assert.True(t, otc.WithinTolerance(decimal.NewFromInt(101), current, tol))
	assert.True(t, otc.WithinTolerance(decimal.NewFromInt(99), current, tol))
	assert.False(t, otc.WithinTolerance(decimal.NewFromFloat(101.5), current, tol))
	assert.False(t, otc.WithinTolerance(decimal.NewFromInt(100), decimal.Zero, tol))
}
