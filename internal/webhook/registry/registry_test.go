package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerbird-app/captain-hook-sub004/internal/webhook/domain"
)

type stubLister struct {
	providers []*domain.Provider
	err       error
}

func (s *stubLister) ListAll(_ context.Context) ([]*domain.Provider, error) {
	return s.providers, s.err
}

func noopHandler() domain.Handler {
	return domain.HandlerFunc(
		func(context.Context, *domain.IncomingEvent, map[string]any, domain.Metadata) error { return nil },
	)
}

func TestProviderRegistry(t *testing.T) {
	t.Run("Success_LoadAndGet", func(t *testing.T) {
		registry := NewProviderRegistry()
		lister := &stubLister{providers: []*domain.Provider{
			{Name: "stripe", Token: "tok", Active: true},
			{Name: "square", Token: "tok2", Active: true},
		}}

		require.NoError(t, registry.Load(context.Background(), lister))

		provider, err := registry.Get("stripe")
		require.NoError(t, err)
		assert.Equal(t, "tok", provider.Token)

		names := []string{}
		for _, p := range registry.List() {
			names = append(names, p.Name)
		}
		assert.Equal(t, []string{"square", "stripe"}, names)
	})

	t.Run("Success_GetReturnsCopy", func(t *testing.T) {
		registry := NewProviderRegistry()
		registry.Put(&domain.Provider{Name: "stripe", Active: true})

		provider, err := registry.Get("stripe")
		require.NoError(t, err)
		provider.Active = false

		again, err := registry.Get("stripe")
		require.NoError(t, err)
		assert.True(t, again.Active)
	})

	t.Run("Error_UnknownProvider", func(t *testing.T) {
		registry := NewProviderRegistry()

		_, err := registry.Get("missing")
		assert.ErrorIs(t, err, domain.ErrProviderNotFound)
	})

	t.Run("Error_ListerFails", func(t *testing.T) {
		registry := NewProviderRegistry()
		registry.Put(&domain.Provider{Name: "stripe"})

		err := registry.Load(context.Background(), &stubLister{err: errors.New("db down")})
		require.Error(t, err)

		_, err = registry.Get("stripe")
		assert.NoError(t, err)
	})
}

func TestHandlerRegistry(t *testing.T) {
	t.Run("Success_BindingsOrderedByPriorityThenName", func(t *testing.T) {
		registry := NewHandlerRegistry()
		for _, name := range []string{"zeta", "alpha", "beta"} {
			require.NoError(t, registry.Register(name, noopHandler()))
		}

		require.NoError(t, registry.Bind(domain.HandlerBinding{
			Provider: "stripe", EventType: "charge.succeeded", Name: "zeta", Priority: 10,
		}))
		require.NoError(t, registry.Bind(domain.HandlerBinding{
			Provider: "stripe", EventType: "charge.succeeded", Name: "beta", Priority: 20,
		}))
		require.NoError(t, registry.Bind(domain.HandlerBinding{
			Provider: "stripe", EventType: "charge.succeeded", Name: "alpha", Priority: 10,
		}))

		bindings := registry.Bindings("stripe", "charge.succeeded")
		require.Len(t, bindings, 3)
		assert.Equal(t, "alpha", bindings[0].Name)
		assert.Equal(t, "zeta", bindings[1].Name)
		assert.Equal(t, "beta", bindings[2].Name)
		for _, b := range bindings {
			assert.NotNil(t, b.Handler)
		}
	})

	t.Run("Success_ExactMatchOnly", func(t *testing.T) {
		registry := NewHandlerRegistry()
		require.NoError(t, registry.Register("log", noopHandler()))
		require.NoError(t, registry.Bind(domain.HandlerBinding{
			Provider: "stripe", EventType: "charge.succeeded", Name: "log",
		}))

		assert.Empty(t, registry.Bindings("stripe", "charge"))
		assert.Empty(t, registry.Bindings("square", "charge.succeeded"))

		binding, ok := registry.Binding("stripe", "charge.succeeded", "log")
		require.True(t, ok)
		assert.Equal(t, "log", binding.Name)

		_, ok = registry.Binding("stripe", "charge.succeeded", "relay")
		assert.False(t, ok)
	})

	t.Run("Error_UnknownHandlerName", func(t *testing.T) {
		registry := NewHandlerRegistry()

		err := registry.Bind(domain.HandlerBinding{Provider: "stripe", EventType: "x", Name: "missing"})
		assert.ErrorIs(t, err, ErrUnknownHandler)
	})

	t.Run("Error_DuplicateRegistration", func(t *testing.T) {
		registry := NewHandlerRegistry()
		require.NoError(t, registry.Register("log", noopHandler()))

		assert.ErrorIs(t, registry.Register("log", noopHandler()), ErrDuplicateHandler)

		binding := domain.HandlerBinding{Provider: "stripe", EventType: "x", Name: "log"}
		require.NoError(t, registry.Bind(binding))
		assert.ErrorIs(t, registry.Bind(binding), ErrDuplicateHandler)
	})

	t.Run("Success_ResetBindingsKeepsHandlers", func(t *testing.T) {
		registry := NewHandlerRegistry()
		require.NoError(t, registry.Register("log", noopHandler()))
		require.NoError(t, registry.Bind(domain.HandlerBinding{Provider: "stripe", EventType: "x", Name: "log"}))

		registry.ResetBindings()

		assert.Empty(t, registry.Bindings("stripe", "x"))
		_, ok := registry.Handler("log")
		assert.True(t, ok)
	})
}

func TestEndpointRegistry(t *testing.T) {
	registry := NewEndpointRegistry()
	registry.Replace([]*domain.Endpoint{
		{Name: "billing", EventTypes: []string{"charge.succeeded"}},
		{Name: "audit", EventTypes: []string{"*"}},
		{Name: "crm", EventTypes: []string{"customer.created"}},
	})

	endpoint, err := registry.Get("billing")
	require.NoError(t, err)
	assert.Equal(t, "billing", endpoint.Name)

	_, err = registry.Get("missing")
	assert.ErrorIs(t, err, domain.ErrEndpointNotFound)

	subscribers := registry.Subscribers("charge.succeeded")
	require.Len(t, subscribers, 2)
	assert.Equal(t, "audit", subscribers[0].Name)
	assert.Equal(t, "billing", subscribers[1].Name)

	assert.Len(t, registry.List(), 3)
}
