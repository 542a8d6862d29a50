// Package http serves the latest readings as JSON.
package http

import (
	"context"
	"errors"
	"net"
	nethttp "net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ericogr/sct013-to-mqtt/pkg/sensor"
)

// DefaultListen is used when no listen address is configured.
const DefaultListen = ":8013"

type HTTPOutput struct {
	srv      *nethttp.Server
	listener net.Listener

	mu     sync.RWMutex
	latest map[int]sensor.Reading
	order  []int
}

// NewHTTP starts serving on listen.
func NewHTTP(listen string) (*HTTPOutput, error) {
	if listen == "" {
		listen = DefaultListen
	}
	l, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}
	h := newHTTP()
	h.listener = l
	h.srv = &nethttp.Server{Handler: h.routes()}

	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := h.srv.Serve(l); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			logrus.Errorf("http server: %v", err)
		}
	}()
	return h, nil
}

func newHTTP() *HTTPOutput {
	return &HTTPOutput{latest: make(map[int]sensor.Reading)}
}

// Addr returns the address the server listens on.
func (h *HTTPOutput) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

func (h *HTTPOutput) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/readings", h.getReadings)
	router.GET("/readings/:channel", h.getReading)
	return router
}

func (h *HTTPOutput) getReadings(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]sensor.Reading, 0, len(h.order))
	for _, ch := range h.order {
		out = append(out, h.latest[ch])
	}
	c.IndentedJSON(nethttp.StatusOK, out)
}

func (h *HTTPOutput) getReading(c *gin.Context) {
	ch, err := strconv.Atoi(c.Param("channel"))
	if err != nil {
		c.IndentedJSON(nethttp.StatusBadRequest, gin.H{"error": "invalid channel"})
		return
	}
	h.mu.RLock()
	r, ok := h.latest[ch]
	h.mu.RUnlock()
	if !ok {
		c.IndentedJSON(nethttp.StatusNotFound, gin.H{"error": "no reading for channel " + strconv.Itoa(ch)})
		return
	}
	c.IndentedJSON(nethttp.StatusOK, r)
}

func (h *HTTPOutput) Publish(readings []sensor.Reading) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range readings {
		if _, ok := h.latest[r.Channel]; !ok {
			h.order = append(h.order, r.Channel)
		}
		h.latest[r.Channel] = r
	}
	return nil
}

func (h *HTTPOutput) Close() error {
	if h.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.srv.Shutdown(ctx)
}
