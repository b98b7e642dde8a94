package depositscan

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custody-service/custody_service/internal/domain/entities"
)

// AddressSource lists the custodial deposit addresses on a network.
type AddressSource interface {
	ListWalletAddresses(ctx context.Context, network entities.Network) (map[string]uuid.UUID, error)
}

// MasterAddressSource lists the master wallet addresses on a network.
type MasterAddressSource interface {
	ListNetworkAddresses(ctx context.Context, network entities.Network) (map[string]uuid.UUID, error)
}

// Owner is the resolved owner of a deposit address: a user account, or one
// of the master wallet's network rows for funds sent straight to treasury.
type Owner struct {
	AccountID uuid.UUID
	MasterID  uuid.UUID
}

// IsMaster reports whether the address belongs to the master wallet
func (o Owner) IsMaster() bool { return o.MasterID != uuid.Nil }

type snapshot struct {
	addresses map[string]Owner
	expires   time.Time
}

// AddressCache maps deposit addresses to their owners with a short TTL.
// Lookups run against an immutable snapshot, so scans never block on a
// reload and a reload never mutates a map a reader holds.
type AddressCache struct {
	source  AddressSource
	masters MasterAddressSource
	ttl     time.Duration

	mu        sync.RWMutex
	snapshots map[entities.Network]*snapshot
}

// NewAddressCache creates a cache over the given sources
func NewAddressCache(source AddressSource, masters MasterAddressSource, ttl time.Duration) *AddressCache {
	return &AddressCache{
		source:    source,
		masters:   masters,
		ttl:       ttl,
		snapshots: make(map[entities.Network]*snapshot),
	}
}

// Lookup resolves an address to its owner. Addresses compare
// case-insensitively; EVM checksums and lowercase forms are the same key.
func (c *AddressCache) Lookup(ctx context.Context, network entities.Network, address string) (Owner, bool, error) {
	snap, err := c.current(ctx, network)
	if err != nil {
		return Owner{}, false, err
	}

	owner, ok := snap.addresses[strings.ToLower(address)]
	return owner, ok, nil
}

func (c *AddressCache) current(ctx context.Context, network entities.Network) (*snapshot, error) {
	c.mu.RLock()
	snap, ok := c.snapshots[network]
	c.mu.RUnlock()

	if ok && time.Now().Before(snap.expires) {
		return snap, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock
	if snap, ok := c.snapshots[network]; ok && time.Now().Before(snap.expires) {
		return snap, nil
	}

	wallets, err := c.source.ListWalletAddresses(ctx, network)
	if err != nil {
		return nil, err
	}
	masters, err := c.masters.ListNetworkAddresses(ctx, network)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]Owner, len(wallets)+len(masters))
	for address, accountID := range wallets {
		merged[strings.ToLower(address)] = Owner{AccountID: accountID}
	}
	for address, masterID := range masters {
		merged[strings.ToLower(address)] = Owner{MasterID: masterID}
	}

	fresh := &snapshot{
		addresses: merged,
		expires:   time.Now().Add(c.ttl),
	}
	c.snapshots[network] = fresh
	return fresh, nil
}
