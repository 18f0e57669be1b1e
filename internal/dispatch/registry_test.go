package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(ctx context.Context, req *Request) (any, error) {
	return map[string]any{"ok": true}, nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	err := r.Register(&Endpoint{
		Route:     "/things",
		Methods:   []string{"GET", "POST"},
		RateLimit: 60,
		Handler:   okHandler,
	})
	require.NoError(t, err)

	ep, ok := r.Lookup("/things")
	require.True(t, ok)
	assert.Equal(t, "/things", ep.Route)
	assert.True(t, ep.AllowsMethod("GET"))
	assert.False(t, ep.AllowsMethod("DELETE"))
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&Endpoint{Handler: okHandler}))
	assert.Error(t, r.Register(&Endpoint{Route: "/x"}))
	assert.Error(t, r.Register(&Endpoint{Route: "/x", Handler: okHandler, RateLimit: -1}))
}

func TestRegistry_RejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	require.NoError(t, r.Register(&Endpoint{Route: "/x", Handler: okHandler}))
	assert.Error(t, r.Register(&Endpoint{Route: "/x", Handler: okHandler}))
}

func TestRegistry_Routes(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	require.NoError(t, r.Register(&Endpoint{Route: "/b", Handler: okHandler}))
	require.NoError(t, r.Register(&Endpoint{Route: "/a", Handler: okHandler}))

	assert.Equal(t, []string{"/a", "/b"}, r.Routes())
	assert.Len(t, r.Endpoints(), 2)
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r := NewRegistry()
	defer r.Close()

	_, ok := r.Lookup("/missing")
	assert.False(t, ok)
}
