package zippopotam

import (
	"context"
	"fmt"
	"testing"

	"github.com/couchcryptid/hazard-advisory-service/internal/domain"
	"github.com/couchcryptid/hazard-advisory-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLookup struct {
	calls map[string]int
	err   error
}

func newCountingLookup() *countingLookup {
	return &countingLookup{calls: make(map[string]int)}
}

func (m *countingLookup) LookupPostalCode(_ context.Context, code string) (domain.Location, error) {
	m.calls[code]++
	if m.err != nil {
		return domain.Location{}, m.err
	}
	return domain.Location{Latitude: 30, Longitude: -97, PostalCode: code}, nil
}

func TestCachedGeocoder_Hit(t *testing.T) {
	inner := newCountingLookup()
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedGeocoder(inner, 10, metrics)

	first, err := cached.LookupPostalCode(context.Background(), "78701")
	require.NoError(t, err)
	second, err := cached.LookupPostalCode(context.Background(), " 78701 ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls["78701"], "should only call inner once")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("miss")))
}

func TestCachedGeocoder_ErrorsNotCached(t *testing.T) {
	inner := newCountingLookup()
	inner.err = fmt.Errorf("%w: not found", domain.ErrInvalidCode)
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	for range 2 {
		_, err := cached.LookupPostalCode(context.Background(), "99999")
		require.ErrorIs(t, err, domain.ErrInvalidCode)
	}

	assert.Equal(t, 2, inner.calls["99999"])
	assert.Equal(t, 0, cached.Len())
}

func TestCachedGeocoder_EvictsLeastRecentlyUsed(t *testing.T) {
	inner := newCountingLookup()
	cached := NewCachedGeocoder(inner, 2, observability.NewMetricsForTesting())
	ctx := context.Background()

	for _, code := range []string{"10001", "10002", "10001", "10003"} {
		_, err := cached.LookupPostalCode(ctx, code)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cached.Len())

	// 10002 was least recently used when 10003 arrived.
	_, err := cached.LookupPostalCode(ctx, "10002")
	require.NoError(t, err)
	_, err = cached.LookupPostalCode(ctx, "10001")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls["10002"])
	assert.Equal(t, 2, inner.calls["10001"], "10001 was evicted when 10002 returned")
	assert.Equal(t, 1, inner.calls["10003"])
}
