package http

import (
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericogr/sct013-to-mqtt/pkg/sensor"
)

func get(t *testing.T, h *HTTPOutput, path string) (int, []byte) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(nethttp.MethodGet, path, nil)
	h.routes().ServeHTTP(w, req)
	return w.Code, w.Body.Bytes()
}

func TestReadingsEndpoints(t *testing.T) {
	h := newHTTP()
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)

	code, body := get(t, h, "/readings")
	assert.Equal(t, nethttp.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body))

	require.NoError(t, h.Publish([]sensor.Reading{
		{Channel: 2, Current: 1.5, Timestamp: ts},
		{Channel: 0, Current: 0, Suppressed: true, Timestamp: ts},
	}))
	require.NoError(t, h.Publish([]sensor.Reading{{Channel: 2, Current: 3.0, Timestamp: ts}}))

	code, body = get(t, h, "/readings")
	assert.Equal(t, nethttp.StatusOK, code)
	var all []sensor.Reading
	require.NoError(t, json.Unmarshal(body, &all))
	require.Len(t, all, 2)
	assert.Equal(t, 2, all[0].Channel)
	assert.Equal(t, 3.0, all[0].Current)
	assert.True(t, all[1].Suppressed)

	code, body = get(t, h, "/readings/2")
	assert.Equal(t, nethttp.StatusOK, code)
	var one sensor.Reading
	require.NoError(t, json.Unmarshal(body, &one))
	assert.Equal(t, 3.0, one.Current)
	assert.Equal(t, ts, one.Timestamp)

	code, _ = get(t, h, "/readings/7")
	assert.Equal(t, nethttp.StatusNotFound, code)
	code, _ = get(t, h, "/readings/x")
	assert.Equal(t, nethttp.StatusBadRequest, code)
}

func TestNewHTTPServes(t *testing.T) {
	h, err := NewHTTP("127.0.0.1:0")
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Publish([]sensor.Reading{{Channel: 0, Current: 4.2}}))

	resp, err := nethttp.Get("http://" + h.Addr() + "/readings/0")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Contains(t, string(b), `"current": 4.2`)
}
