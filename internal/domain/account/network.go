package account

import (
	"github.com/shopspring/decimal"

	"tradinglab/pkg/errors"
)

// NetworkState represents the connection state of the whole network
type NetworkState string

const (
	NetworkIdle          NetworkState = "idle"
	NetworkConnecting    NetworkState = "connecting"
	NetworkSynchronizing NetworkState = "synchronizing"
	NetworkActive        NetworkState = "active"
	NetworkError         NetworkState = "error"
	NetworkMaintenance   NetworkState = "maintenance"
)

// Valid checks if network state is valid
func (s NetworkState) Valid() bool {
	switch s {
	case NetworkIdle, NetworkConnecting, NetworkSynchronizing,
		NetworkActive, NetworkError, NetworkMaintenance:
		return true
	}
	return false
}

// Network is the core-plus-satellites aggregate for one onboarding session.
// The network owns its accounts; satellites have no back-pointer to the core.
type Network struct {
	Core       *Account
	Satellites []*Account // connection order, display only
	State      NetworkState
}

// NewNetwork creates an empty network
func NewNetwork() *Network {
	return &Network{State: NetworkIdle}
}

// SetCore installs the core account. A still-connected core cannot be
// replaced; a disconnected one can, for users who restart account connection.
func (n *Network) SetCore(acc *Account) error {
	if acc == nil {
		return errors.ErrInvalidInput
	}
	if n.Core != nil && n.Core.Connected {
		return errors.Wrapf(errors.ErrDuplicateCore, "core %s is still connected", n.Core.ID)
	}

	acc.Role = RoleCore
	n.Core = acc
	return nil
}

// AddSatellite appends a satellite account in connection order
func (n *Network) AddSatellite(acc *Account) error {
	if acc == nil {
		return errors.ErrInvalidInput
	}
	if n.Core == nil {
		return errors.ErrNoCoreAccount
	}
	if n.Core.ID == acc.ID {
		return errors.Wrapf(errors.ErrDuplicateAccount, "account %s is the core", acc.ID)
	}
	for _, s := range n.Satellites {
		if s.ID == acc.ID {
			return errors.Wrapf(errors.ErrDuplicateAccount, "account %s already a satellite", acc.ID)
		}
	}

	acc.Role = RoleSatellite
	n.Satellites = append(n.Satellites, acc)
	return nil
}

// RemoveSatellite removes a satellite by id. No-op when absent.
func (n *Network) RemoveSatellite(id string) {
	for i, s := range n.Satellites {
		if s.ID == id {
			n.Satellites = append(n.Satellites[:i], n.Satellites[i+1:]...)
			return
		}
	}
}

// TotalPower sums buying power across connected accounts only
func (n *Network) TotalPower() decimal.Decimal {
	total := n.Core.Power()
	for _, s := range n.Satellites {
		total = total.Add(s.Power())
	}
	return total
}

// FullySynchronized reports whether the core and every satellite is connected
func (n *Network) FullySynchronized() bool {
	if n.Core == nil || !n.Core.Connected {
		return false
	}
	for _, s := range n.Satellites {
		if !s.Connected {
			return false
		}
	}
	return true
}

// ActiveAccounts counts connected accounts
func (n *Network) ActiveAccounts() int {
	count := 0
	if n.Core != nil && n.Core.Connected {
		count++
	}
	for _, s := range n.Satellites {
		if s.Connected {
			count++
		}
	}
	return count
}

// Accounts returns core first, then satellites in connection order
func (n *Network) Accounts() []*Account {
	if n.Core == nil {
		return nil
	}
	out := make([]*Account, 0, 1+len(n.Satellites))
	out = append(out, n.Core)
	out = append(out, n.Satellites...)
	return out
}

// Lookup finds an account by id anywhere in the network
func (n *Network) Lookup(id string) (*Account, bool) {
	if n.Core != nil && n.Core.ID == id {
		return n.Core, true
	}
	for _, s := range n.Satellites {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// Reset drops every account and returns the network to idle.
// Removing only the core is not supported; the network resets as a whole.
func (n *Network) Reset() {
	n.Core = nil
	n.Satellites = nil
	n.State = NetworkIdle
}
