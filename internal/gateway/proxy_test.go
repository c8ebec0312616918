// internal/gateway/proxy_test.go
package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permit-intake/internal/common/logger"
)

type fakeStream struct {
	hits int
}

func (f *fakeStream) HandleStream(w http.ResponseWriter, r *http.Request) {
	f.hits++
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func TestGateway_RoutesMediaStreamLocally(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("media stream must not be proxied, got %s", r.URL.Path)
	}))
	defer upstream.Close()

	stream := &fakeStream{}
	gw, err := New(stream, upstream.URL, logger.NewTestLogger(t))
	require.NoError(t, err)

	server := httptest.NewServer(gw.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/media-stream")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 1, stream.hits)
}

func TestGateway_ProxiesEverythingElse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, r.URL.Path)
	}))
	defer upstream.Close()

	gw, err := New(&fakeStream{}, upstream.URL, logger.NewTestLogger(t))
	require.NoError(t, err)

	server := httptest.NewServer(gw.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/applications")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "/api/applications", string(body))
}

func TestGateway_HealthzIsLocal(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("healthz must not be proxied")
	}))
	defer upstream.Close()

	gw, err := New(&fakeStream{}, upstream.URL, logger.NewTestLogger(t))
	require.NoError(t, err)

	server := httptest.NewServer(gw.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestGateway_BadGatewayOnDeadUpstream(t *testing.T) {
	gw, err := New(&fakeStream{}, "http://127.0.0.1:1", logger.NewTestLogger(t))
	require.NoError(t, err)

	server := httptest.NewServer(gw.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/session/sess-1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestGateway_RejectsBadUpstreamURL(t *testing.T) {
	_, err := New(&fakeStream{}, "://not-a-url", logger.NewTestLogger(t))
	assert.Error(t, err)
}
