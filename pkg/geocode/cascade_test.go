package geocode

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pickup-cli/internal/resilience"
)

type fakeProvider struct {
	name  string
	res   *Result
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Geocode(context.Context, string) (*Result, error) {
	f.calls++
	return f.res, f.err
}

func TestCascade_FirstMatchWins(t *testing.T) {
	a := &fakeProvider{name: "a", res: &Result{Source: "a"}}
	b := &fakeProvider{name: "b", res: &Result{Latitude: 52, Longitude: 5, Source: "b", Matched: true}}
	c := &fakeProvider{name: "c", res: &Result{Latitude: 1, Longitude: 1, Source: "c", Matched: true}}

	ll, err := NewCascadeClient(a, b, c).Geocode(context.Background(), "Utrecht")
	require.NoError(t, err)
	assert.InDelta(t, 52.0, ll.Lat, 1e-9)
	assert.Equal(t, 0, c.calls)
}

func TestCascade_ErrorFallsThrough(t *testing.T) {
	a := &fakeProvider{name: "a", err: resilience.NewTransientError(errors.New("503"), 503)}
	b := &fakeProvider{name: "b", res: &Result{Latitude: 52, Longitude: 5, Matched: true}}

	ll, err := NewCascadeClient(a, b).Geocode(context.Background(), "Utrecht")
	require.NoError(t, err)
	assert.InDelta(t, 5.0, ll.Lon, 1e-9)
}

func TestCascade_AllMissIsNotFound(t *testing.T) {
	a := &fakeProvider{name: "a", res: &Result{}}
	b := &fakeProvider{name: "b", err: errors.New("boom")}

	_, err := NewCascadeClient(a, b).Geocode(context.Background(), "Atlantis")
	require.Error(t, err)
	assert.True(t, resilience.IsNotFound(err))
}

func TestCascade_AllErrorReturnsLastError(t *testing.T) {
	boom := errors.New("boom")
	a := &fakeProvider{name: "a", err: errors.New("first")}
	b := &fakeProvider{name: "b", err: boom}

	_, err := NewCascadeClient(a, b).Geocode(context.Background(), "Utrecht")
	assert.ErrorIs(t, err, boom)
	assert.False(t, resilience.IsNotFound(err))
}

func TestCascade_Memoizes(t *testing.T) {
	a := &fakeProvider{name: "a", res: &Result{Latitude: 52, Longitude: 5, Matched: true}}
	c := NewCascadeClient(a)

	_, err := c.Geocode(context.Background(), "Utrecht")
	require.NoError(t, err)
	_, err = c.Geocode(context.Background(), "  utrecht ")
	require.NoError(t, err)
	assert.Equal(t, 1, a.calls)
}
