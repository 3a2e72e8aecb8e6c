package account_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradinglab/internal/domain/account"
	"tradinglab/pkg/errors"
)

func connectedAccount(id string, balance int64) *account.Account {
	return &account.Account{
		ID:          id,
		UserID:      "user-1",
		Broker:      "tradovate",
		Environment: account.EnvironmentDemo,
		Balance:     decimal.NewFromInt(balance),
		Connected:   true,
	}
}

func TestSetCore(t *testing.T) {
	t.Run("sets core on empty network", func(t *testing.T) {
		n := account.NewNetwork()
		err := n.SetCore(connectedAccount("A1", 1000))
		require.NoError(t, err)
		assert.Equal(t, account.RoleCore, n.Core.Role)
	})

	t.Run("rejects second connected core", func(t *testing.T) {
		n := account.NewNetwork()
		require.NoError(t, n.SetCore(connectedAccount("A1", 1000)))

		err := n.SetCore(connectedAccount("A2", 500))
		assert.ErrorIs(t, err, errors.ErrDuplicateCore)
		assert.Equal(t, "A1", n.Core.ID)
	})

	t.Run("replaces disconnected core", func(t *testing.T) {
		n := account.NewNetwork()
		core := connectedAccount("A1", 1000)
		require.NoError(t, n.SetCore(core))
		core.Connected = false

		err := n.SetCore(connectedAccount("A2", 500))
		require.NoError(t, err)
		assert.Equal(t, "A2", n.Core.ID)
	})
}

func TestAddSatellite(t *testing.T) {
	t.Run("fails without core and leaves network empty", func(t *testing.T) {
		n := account.NewNetwork()
		err := n.AddSatellite(connectedAccount("S1", 500))
		assert.ErrorIs(t, err, errors.ErrNoCoreAccount)
		assert.Nil(t, n.Core)
		assert.Empty(t, n.Satellites)
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		n := account.NewNetwork()
		require.NoError(t, n.SetCore(connectedAccount("A1", 1000)))
		require.NoError(t, n.AddSatellite(connectedAccount("S1", 500)))

		assert.ErrorIs(t, n.AddSatellite(connectedAccount("S1", 500)), errors.ErrDuplicateAccount)
		assert.ErrorIs(t, n.AddSatellite(connectedAccount("A1", 1000)), errors.ErrDuplicateAccount)
	})

	t.Run("preserves connection order", func(t *testing.T) {
		n := account.NewNetwork()
		require.NoError(t, n.SetCore(connectedAccount("A1", 1000)))
		require.NoError(t, n.AddSatellite(connectedAccount("S1", 500)))
		require.NoError(t, n.AddSatellite(connectedAccount("S2", 250)))

		accounts := n.Accounts()
		require.Len(t, accounts, 3)
		assert.Equal(t, "A1", accounts[0].ID)
		assert.Equal(t, "S1", accounts[1].ID)
		assert.Equal(t, "S2", accounts[2].ID)
	})
}

func TestRemoveSatellite(t *testing.T) {
	n := account.NewNetwork()
	require.NoError(t, n.SetCore(connectedAccount("A1", 1000)))
	require.NoError(t, n.AddSatellite(connectedAccount("S1", 500)))
	require.NoError(t, n.AddSatellite(connectedAccount("S2", 250)))

	n.RemoveSatellite("S1")
	assert.Len(t, n.Satellites, 1)
	assert.Equal(t, "S2", n.Satellites[0].ID)

	// unknown id is a no-op
	n.RemoveSatellite("S9")
	assert.Len(t, n.Satellites, 1)
}

func TestTotalPower(t *testing.T) {
	n := account.NewNetwork()
	assert.True(t, n.TotalPower().IsZero())

	require.NoError(t, n.SetCore(connectedAccount("A1", 1000)))
	sat := connectedAccount("S1", 500)
	require.NoError(t, n.AddSatellite(sat))

	assert.True(t, n.TotalPower().Equal(decimal.NewFromInt(1500)))

	// disconnecting never increases power
	before := n.TotalPower()
	sat.Connected = false
	after := n.TotalPower()
	assert.True(t, after.LessThanOrEqual(before))
	assert.True(t, after.Equal(decimal.NewFromInt(1000)))
}

func TestFullySynchronized(t *testing.T) {
	n := account.NewNetwork()
	assert.False(t, n.FullySynchronized())

	require.NoError(t, n.SetCore(connectedAccount("A1", 1000)))
	assert.True(t, n.FullySynchronized())

	sat := connectedAccount("S1", 500)
	require.NoError(t, n.AddSatellite(sat))
	assert.True(t, n.FullySynchronized())
	assert.Equal(t, 2, n.ActiveAccounts())

	sat.Connected = false
	assert.False(t, n.FullySynchronized())
	assert.Equal(t, 1, n.ActiveAccounts())
}

func TestNetworkReset(t *testing.T) {
	n := account.NewNetwork()
	require.NoError(t, n.SetCore(connectedAccount("A1", 1000)))
	require.NoError(t, n.AddSatellite(connectedAccount("S1", 500)))
	n.State = account.NetworkActive

	n.Reset()
	assert.Nil(t, n.Core)
	assert.Empty(t, n.Satellites)
	assert.Equal(t, account.NetworkIdle, n.State)
}

func TestLookup(t *testing.T) {
	n := account.NewNetwork()
	require.NoError(t, n.SetCore(connectedAccount("A1", 1000)))
	require.NoError(t, n.AddSatellite(connectedAccount("S1", 500)))

	acc, ok := n.Lookup("S1")
	require.True(t, ok)
	assert.Equal(t, account.RoleSatellite, acc.Role)

	_, ok = n.Lookup("nope")
	assert.False(t, ok)
}
