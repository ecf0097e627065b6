package remote

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/pokedexos/dexcache/pkg/errors"
	"github.com/pokedexos/dexcache/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBase      = "https://api.example.test/v2"
	bulbasaurBody = `{"id": 1, "name": "bulbasaur",
		"types": [{"slot": 1, "type": {"name": "grass"}}, {"slot": 2, "type": {"name": "poison"}}],
		"height": 7, "weight": 69,
		"sprites": {"front_default": "https://sprites.example.test/1.png"}}`
)

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)
	return NewClient(Config{BaseURL: testBase + "/", Timeout: time.Second, ProbeTimeout: time.Second}, hc, nil)
}

func TestClient_FetchByID(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder("GET", testBase+"/pokemon/1", httpmock.NewStringResponder(http.StatusOK, bulbasaurBody))

	p, err := c.Fetch(context.Background(), record.ByID(1))
	require.NoError(t, err)
	assert.Equal(t, 1, p.ID)
	assert.Equal(t, "bulbasaur", p.Name)
	assert.Equal(t, []string{"grass", "poison"}, p.Categories())
	assert.Equal(t, "https://sprites.example.test/1.png", p.AssetURL())
}

func TestClient_FetchMemoizesUnderIDAndName(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder("GET", testBase+"/pokemon/bulbasaur", httpmock.NewStringResponder(http.StatusOK, bulbasaurBody))

	_, err := c.Fetch(context.Background(), record.ByName("Bulbasaur"))
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), record.ByID(1))
	require.NoError(t, err)

	assert.Equal(t, 1, httpmock.GetTotalCallCount())

	c.Forget()
	_, err = c.Fetch(context.Background(), record.ByName("bulbasaur"))
	require.NoError(t, err)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())
}

func TestClient_FetchNotFoundIsNegativelyCached(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder("GET", testBase+"/pokemon/missingno", httpmock.NewStringResponder(http.StatusNotFound, "Not Found"))

	for range 3 {
		_, err := c.Fetch(context.Background(), record.ByName("missingno"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrNotFoundRemotely))
		assert.False(t, errors.Is(err, errors.ErrTransport))
	}
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestClient_FetchTransportFailures(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
	}{
		{"server error", httpmock.NewStringResponder(http.StatusInternalServerError, "boom")},
		{"malformed body", httpmock.NewStringResponder(http.StatusOK, `{"id": `)},
		{"invalid payload", httpmock.NewStringResponder(http.StatusOK, `{"id": 3, "name": "venusaur"}`)},
		{"network error", httpmock.NewErrorResponder(fmt.Errorf("dial tcp: no route to host"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newMockedClient(t)
			httpmock.RegisterResponder("GET", testBase+"/pokemon/3", tt.responder)

			_, err := c.Fetch(context.Background(), record.ByID(3))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrTransport))
			assert.False(t, errors.Is(err, errors.ErrNotFoundRemotely))
		})
	}
}

func TestClient_FetchEmptyIdentifier(t *testing.T) {
	c := newMockedClient(t)
	_, err := c.Fetch(context.Background(), record.ParseIdentifier("  "))
	assert.True(t, errors.Is(err, errors.ErrNotFoundRemotely))
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestClient_FetchEscapesNameAsOnePathSegment(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder("GET", testBase+"/pokemon/pikachu", httpmock.NewStringResponder(http.StatusOK, bulbasaurBody))

	var paths []string
	httpmock.RegisterNoResponder(func(req *http.Request) (*http.Response, error) {
		paths = append(paths, req.URL.EscapedPath())
		return httpmock.NewStringResponse(http.StatusNotFound, "Not Found"), nil
	})

	for _, raw := range []string{"pikachu?x=1", "pikachu#frag", "ditto/../1"} {
		_, err := c.Fetch(context.Background(), record.ParseIdentifier(raw))
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, errors.ErrNotFoundRemotely), raw)
	}

	assert.Equal(t, []string{
		"/v2/pokemon/pikachu%3Fx=1",
		"/v2/pokemon/pikachu%23frag",
		"/v2/pokemon/ditto%2F..%2F1",
	}, paths)
	assert.Equal(t, 0, httpmock.GetCallCountInfo()["GET "+testBase+"/pokemon/pikachu"])
}

func TestClient_Probe(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder("GET", testBase+"/pokemon/1", httpmock.NewStringResponder(http.StatusOK, bulbasaurBody))
	require.NoError(t, c.Probe(context.Background()))

	httpmock.RegisterResponder("GET", testBase+"/pokemon/1", httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))
	assert.True(t, errors.Is(c.Probe(context.Background()), errors.ErrTransport))

	httpmock.RegisterResponder("GET", testBase+"/pokemon/1", httpmock.NewErrorResponder(fmt.Errorf("offline")))
	assert.Error(t, c.Probe(context.Background()))
}

func TestClient_ProbeIsTimeBounded(t *testing.T) {
	hc := &http.Client{}
	httpmock.ActivateNonDefault(hc)
	t.Cleanup(httpmock.DeactivateAndReset)
	c := NewClient(Config{BaseURL: testBase, ProbeTimeout: 50 * time.Millisecond}, hc, nil)

	httpmock.RegisterResponder("GET", testBase+"/pokemon/1", func(req *http.Request) (*http.Response, error) {
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(5 * time.Second):
			return httpmock.NewStringResponse(http.StatusOK, bulbasaurBody), nil
		}
	})

	start := time.Now()
	err := c.Probe(context.Background())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
