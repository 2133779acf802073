package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/wingman-cli/internal/mocks"
)

func registrySession(t *testing.T, name string) (*Session, *mocks.MockDriver) {
	t.Helper()
	driver := &mocks.MockDriver{}
	driver.On("Close").Return(nil).Once()
	s, err := New(name, testConfig(t), "", driver, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s, driver
}

func TestRegistryAddRejectsDuplicateName(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	first, _ := registrySession(t, "primary")
	second, secondDriver := registrySession(t, "primary")

	require.NoError(t, r.Add(first))
	err := r.Add(second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `session "primary" already exists`)

	require.NoError(t, r.CloseAll())
	require.NoError(t, second.Close())
	secondDriver.AssertExpectations(t)
}

func TestRegistryGetUnknownSession(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	_, err := r.Get("ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `session "ghost" not found`)
}

func TestRegistryRemoveClosesSession(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	s, driver := registrySession(t, "primary")
	require.NoError(t, r.Add(s))

	require.NoError(t, r.Remove("primary"))
	driver.AssertExpectations(t)

	err := r.Remove("primary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRegistryListSortedByName(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		s, _ := registrySession(t, name)
		require.NoError(t, r.Add(s))
	}
	t.Cleanup(func() { _ = r.CloseAll() })

	var names []string
	for _, s := range r.List() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, names)
}

func TestRegistryCloseAllClosesEverySession(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	one, oneDriver := registrySession(t, "one")
	two, twoDriver := registrySession(t, "two")
	require.NoError(t, r.Add(one))
	require.NoError(t, r.Add(two))

	require.NoError(t, r.CloseAll())
	oneDriver.AssertExpectations(t)
	twoDriver.AssertExpectations(t)
	assert.Empty(t, r.List())

	_, err := r.Get("one")
	require.Error(t, err)
}
