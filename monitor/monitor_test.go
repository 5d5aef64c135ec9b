package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oberon01/tonertrack-v2/discovery"
	"github.com/Oberon01/tonertrack-v2/store"
)

func newTestMonitor(t *testing.T) (*Monitor, *store.Repository) {
	t.Helper()
	repo, err := store.Open(t.TempDir(), nil)
	require.NoError(t, err)
	return New(repo, nil, nil, nil), repo
}

func TestCreateValidatesAndDefaults(t *testing.T) {
	m, _ := newTestMonitor(t)

	_, err := m.Create("not-an-ip", "X", "")
	assert.ErrorIs(t, err, store.ErrInvalidAddress)

	rec, err := m.Create("10.0.0.5", "", "")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", rec.DisplayName)
	assert.Equal(t, "public", rec.Community)
	assert.False(t, rec.NameLocked, "manual create does not lock the name")

	_, err = m.Create("10.0.0.5", "Again", "")
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestUpdateRenameLocksName(t *testing.T) {
	m, _ := newTestMonitor(t)
	_, err := m.Create("10.0.0.5", "Front Desk", "")
	require.NoError(t, err)

	loc := "HQ Floor 1"
	rec, err := m.Update("10.0.0.5", UpdateFields{Location: &loc})
	require.NoError(t, err)
	assert.False(t, rec.NameLocked, "location edits do not lock the name")
	assert.Equal(t, "HQ Floor 1", rec.Location)

	name := "Accounting Printer"
	rec, err = m.Update("10.0.0.5", UpdateFields{Name: &name})
	require.NoError(t, err)
	assert.True(t, rec.NameLocked)
	assert.Equal(t, "Accounting Printer", rec.DisplayName)

	// setting the same name again changes nothing
	rec, err = m.Update("10.0.0.5", UpdateFields{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Accounting Printer", rec.DisplayName)
}

func TestLockedNameSurvivesDiscovery(t *testing.T) {
	m, repo := newTestMonitor(t)
	_, err := m.Create("10.0.0.5", "Front Desk", "")
	require.NoError(t, err)

	name := "Accounting Printer"
	_, err = m.Update("10.0.0.5", UpdateFields{Name: &name})
	require.NoError(t, err)

	_, err = discovery.SyncDiscovered(repo, []discovery.Discovered{
		{Address: "10.0.0.5", Name: "Advertised Name", Location: "HQ"},
	}, nil)
	require.NoError(t, err)

	rec, err := m.Get("10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "Accounting Printer", rec.DisplayName)
	assert.Equal(t, "HQ", rec.Location)
}

func TestDeleteRemovesRecord(t *testing.T) {
	m, _ := newTestMonitor(t)
	_, err := m.Create("10.0.0.5", "X", "")
	require.NoError(t, err)

	require.NoError(t, m.Delete("10.0.0.5"))
	_, err = m.Get("10.0.0.5")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, m.Delete("10.0.0.5"), store.ErrNotFound)
}

func TestUpdateUnknownAddress(t *testing.T) {
	m, _ := newTestMonitor(t)
	name := "X"
	_, err := m.Update("10.9.9.9", UpdateFields{Name: &name})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
