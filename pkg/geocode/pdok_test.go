package geocode

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pickup-cli/internal/resilience"
)

func TestPDOK_Match(t *testing.T) {
	srv := newStubServer(t, http.StatusOK, `{"response":{"numFound":1,"docs":[
		{"type":"gemeente","weergavenaam":"Gemeente Utrecht","centroide_ll":"POINT(5.07475 52.09113)"}]}}`)
	p := NewPDOK(WithHTTPClient(newRewriteClient(srv.URL, PDOKURL)), WithLimiter(newTestLimiter()))

	res, err := p.Geocode(context.Background(), "Utrecht")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.InDelta(t, 52.09113, res.Latitude, 1e-9)
	assert.InDelta(t, 5.07475, res.Longitude, 1e-9)
	assert.Equal(t, "Gemeente Utrecht", res.DisplayName)
	assert.Equal(t, "type:gemeente", srv.last().URL.Query().Get("fq"))
}

func TestPDOK_NoMatch(t *testing.T) {
	srv := newStubServer(t, http.StatusOK, `{"response":{"numFound":0,"docs":[]}}`)
	p := NewPDOK(WithBaseURL(srv.URL), WithLimiter(newTestLimiter()))
	res, err := p.Geocode(context.Background(), "Atlantis")
	require.NoError(t, err)
	assert.False(t, res.Matched)
}

func TestPDOK_BadCentroid(t *testing.T) {
	srv := newStubServer(t, http.StatusOK, `{"response":{"numFound":1,"docs":[{"centroide_ll":"garbage"}]}}`)
	p := NewPDOK(WithBaseURL(srv.URL), WithLimiter(newTestLimiter()))
	_, err := p.Geocode(context.Background(), "Utrecht")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestPDOK_GatewayTimeout(t *testing.T) {
	srv := newStubServer(t, http.StatusGatewayTimeout, ``)
	p := NewPDOK(WithBaseURL(srv.URL), WithLimiter(newTestLimiter()))
	_, err := p.Geocode(context.Background(), "Utrecht")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}
