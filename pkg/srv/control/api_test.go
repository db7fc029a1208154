/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jinr.ru/greenlab/go-router/pkg/router"
	"jinr.ru/greenlab/go-router/pkg/srv"
)

func startClock(t *testing.T, s *ControlServer) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Clock(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func doRequest(t *testing.T, h http.Handler, method, url, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestApiStatus(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))
	rec := doRequest(t, s.api.Handler(), "GET", "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	st := srv.Snapshot{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, s.Status(), st)
}

func TestApiFrameAndDrain(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))
	startClock(t, s)
	h := s.api.Handler()

	rec := doRequest(t, h, "POST", "/api/frame", `{"destination": 0, "payload": "aa55"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := SubmitResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "08aa55f7", resp.Bytes)

	require.Eventually(t, func() bool {
		return s.Status().Valid[0]
	}, 2*time.Second, time.Millisecond)

	rec = doRequest(t, h, "POST", "/api/drain/0", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	drained := DrainResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &drained))
	assert.Equal(t, DrainResponse{Channel: 0, Data: "aa55"}, drained)
}

func TestApiDrainMax(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))
	startClock(t, s)
	h := s.api.Handler()

	rec := doRequest(t, h, "POST", "/api/frame", `{"destination": 2, "payload": "010203"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool {
		return s.Status().Occupancy[2] == 3
	}, 2*time.Second, time.Millisecond)

	rec = doRequest(t, h, "POST", "/api/drain/2?max=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	drained := DrainResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &drained))
	assert.Equal(t, "0102", drained.Data)
}

func TestApiFrameWithParity(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))
	startClock(t, s)
	h := s.api.Handler()

	rec := doRequest(t, h, "POST", "/api/frame", `{"destination": 1, "payload": "42", "parity": "00"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := SubmitResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "054200", resp.Bytes)

	require.Eventually(t, func() bool {
		return s.Status().Error
	}, 2*time.Second, time.Millisecond)

	rec = doRequest(t, h, "GET", "/api/events?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []*srv.EventRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, router.EventParityError, events[0].Kind)
}

func TestApiStreamAndReset(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Router.StrobePolicy = "stall"
	s := newTestServer(t, cfg)
	startClock(t, s)
	h := s.api.Handler()

	// header of a 2 byte frame to channel 0, the rest never arrives
	rec := doRequest(t, h, "POST", "/api/stream", `{"data": "08aa"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Eventually(t, func() bool {
		return s.Status().State == router.StateReceiving.String()
	}, 2*time.Second, time.Millisecond)

	rec = doRequest(t, h, "POST", "/api/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := srv.Snapshot{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, router.StateIdle.String(), st.State)
	assert.False(t, st.Busy)
}

func TestApiBadRequests(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))
	h := s.api.Handler()

	for _, tc := range []struct {
		method, url, body string
		code              int
	}{
		{"POST", "/api/frame", `{"destination": 4, "payload": ""}`, http.StatusBadRequest},
		{"POST", "/api/frame", `{"destination": -1, "payload": ""}`, http.StatusBadRequest},
		{"POST", "/api/frame", `{"destination": 0, "payload": "zz"}`, http.StatusBadRequest},
		{"POST", "/api/frame", `{"destination": 0, "payload": "00", "parity": "0102"}`, http.StatusBadRequest},
		{"POST", "/api/frame", `{"destination": 0, "payload": "` + strings.Repeat("00", 64) + `"}`, http.StatusBadRequest},
		{"POST", "/api/frame", `not json`, http.StatusBadRequest},
		{"POST", "/api/stream", `{"data": ""}`, http.StatusBadRequest},
		{"POST", "/api/drain/0?max=many", "", http.StatusBadRequest},
		{"POST", "/api/drain/3", "", http.StatusNotFound},
		{"GET", "/api/events?limit=all", "", http.StatusBadRequest},
		{"GET", "/api/frame", "", http.StatusMethodNotAllowed},
	} {
		rec := doRequest(t, h, tc.method, tc.url, tc.body)
		assert.Equal(t, tc.code, rec.Code, "%s %s %s", tc.method, tc.url, tc.body)
	}
}

func TestApiQueueFull(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.InputQueue = 1
	s := newTestServer(t, cfg)
	h := s.api.Handler()

	rec := doRequest(t, h, "POST", "/api/stream", `{"data": "0000", "gap": true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec = doRequest(t, h, "POST", "/api/stream", `{"data": "0000", "gap": true}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSwaggerSpec(t *testing.T) {
	doc, err := SwaggerSpec()
	require.NoError(t, err)
	assert.Equal(t, "2.0", doc.Version())
	assert.Equal(t, "go-router API", doc.Spec().Info.Title)
	for _, path := range []string{"/status", "/frame", "/stream", "/drain/{channel}", "/reset", "/events"} {
		assert.Contains(t, doc.Spec().Paths.Paths, path)
	}
}

func TestApiDocs(t *testing.T) {
	s := newTestServer(t, newTestConfig(t))
	h := s.api.Handler()

	rec := doRequest(t, h, "GET", "/swagger.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, string(swaggerJSON), rec.Body.String())

	rec = doRequest(t, h, "GET", "/docs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/swagger.json")
}

func TestApiFrameFourBitLength(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Router.LengthBits = 4
	s := newTestServer(t, cfg)
	h := s.api.Handler()

	rec := doRequest(t, h, "POST", "/api/frame", `{"destination": 0, "payload": "`+strings.Repeat("11", 16)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "maximum 15")

	rec = doRequest(t, h, "POST", "/api/frame", `{"destination": 0, "payload": "`+strings.Repeat("11", 15)+`"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
