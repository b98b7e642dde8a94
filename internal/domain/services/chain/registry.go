package chain

import (
	"github.com/custody-service/custody_service/internal/domain/entities"
	domainerrors "github.com/custody-service/custody_service/internal/domain/errors"
)

// Registry holds the configured chain clients keyed by network.
type Registry struct {
	clients map[entities.Network]Client
}

// NewRegistry creates a registry from the given clients
func NewRegistry(clients ...Client) *Registry {
	m := make(map[entities.Network]Client, len(clients))
	for _, c := range clients {
		m[c.Network()] = c
	}
	return &Registry{clients: m}
}

// Get returns the client for a network, or ErrUnsupportedNetwork
func (r *Registry) Get(network entities.Network) (Client, error) {
	c, ok := r.clients[network]
	if !ok {
		return nil, domainerrors.ErrUnsupportedNetwork
	}
	return c, nil
}

// Networks returns the networks with a configured client
func (r *Registry) Networks() []entities.Network {
	networks := make([]entities.Network, 0, len(r.clients))
	for n := range r.clients {
		networks = append(networks, n)
	}
	return networks
}
