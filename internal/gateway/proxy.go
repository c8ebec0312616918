// Package gateway is the telephony-facing process: it terminates the media
// stream WebSocket locally and reverse-proxies every other request to the
// main API, so the provider only ever needs one public endpoint.
package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httputil"
	"net/url"

	"permit-intake/internal/common/logger"
)

// StreamHandler is the media-stream endpoint, implemented by the voice
// orchestrator.
type StreamHandler interface {
	HandleStream(w http.ResponseWriter, r *http.Request)
}

type Gateway struct {
	stream StreamHandler
	proxy  *httputil.ReverseProxy
	logger logger.Logger
}

func New(stream StreamHandler, upstreamURL string, log logger.Logger) (*Gateway, error) {
	upstream, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error("upstream proxy failed", map[string]interface{}{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		w.WriteHeader(http.StatusBadGateway)
	}

	return &Gateway{stream: stream, proxy: proxy, logger: log}, nil
}

func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/media-stream", g.stream.HandleStream)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.Handle("/", g.proxy)
	return mux
}
