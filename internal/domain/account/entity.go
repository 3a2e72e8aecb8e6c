package account

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a connected broker trading account
type Account struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"user_id"`
	Broker      string          `db:"broker" json:"broker"` // tradovate, interactive_brokers, ...
	Environment Environment     `db:"environment" json:"environment"`
	Nickname    string          `db:"nickname" json:"nickname"`
	Balance     decimal.Decimal `db:"balance" json:"balance"` // buying power reported by the broker
	Connected   bool            `db:"connected" json:"connected"`
	Role        Role            `db:"role" json:"role"`
	ConnectedAt time.Time       `db:"connected_at" json:"connected_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Environment defines the trading environment of an account
type Environment string

const (
	EnvironmentDemo Environment = "demo"
	EnvironmentLive Environment = "live"
)

// Valid checks if environment is valid
func (e Environment) Valid() bool {
	return e == EnvironmentDemo || e == EnvironmentLive
}

// String returns string representation
func (e Environment) String() string {
	return string(e)
}

// Role defines an account's position in the network topology
type Role string

const (
	// RoleCore is the primary, first-connected account. Exactly one per network.
	RoleCore Role = "core"
	// RoleSatellite mirrors the core's strategy activity
	RoleSatellite Role = "satellite"
)

// Valid checks if role is valid
func (r Role) Valid() bool {
	return r == RoleCore || r == RoleSatellite
}

// String returns string representation
func (r Role) String() string {
	return string(r)
}

// Power returns the account's contribution to network power.
// Disconnected accounts contribute zero.
func (a *Account) Power() decimal.Decimal {
	if a == nil || !a.Connected {
		return decimal.Zero
	}
	return a.Balance
}
