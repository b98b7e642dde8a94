package entities

import "fmt"

// Network identifies one of the supported blockchain networks.
type Network string

const (
	NetworkERC20 Network = "ERC20"
	NetworkBEP20 Network = "BEP20"
	NetworkTRC20 Network = "TRC20"
)

// AllNetworks returns every supported network in a stable order.
func AllNetworks() []Network {
	return []Network{NetworkBEP20, NetworkERC20, NetworkTRC20}
}

// IsEVM returns true for the EVM-compatible chains. TRC20 is an
// account-model chain with a timestamp-based event query API.
func (n Network) IsEVM() bool {
	return n == NetworkERC20 || n == NetworkBEP20
}

// Validate checks that the network is one we support.
func (n Network) Validate() error {
	switch n {
	case NetworkERC20, NetworkBEP20, NetworkTRC20:
		return nil
	default:
		return fmt.Errorf("unsupported network: %s", n)
	}
}
