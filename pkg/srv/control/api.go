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

// go-router API
//
// # RESTful APIs to interact with go-router server
//
// Schemes: http
// Host: localhost:8010
// Version: 1.0.0
//
//	Consumes:
//	- application/json
//
//	Produces:
//	- application/json
//
// swagger:meta
package control

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"jinr.ru/greenlab/go-router/pkg/config"
	"jinr.ru/greenlab/go-router/pkg/layers"
	"jinr.ru/greenlab/go-router/pkg/log"
	"jinr.ru/greenlab/go-router/pkg/srv"
	"jinr.ru/greenlab/go-router/pkg/srv/control/ifc"
)

// FrameRequest describes one frame to encode and queue.
// Payload and Parity are hexadecimal, Parity is computed when omitted.
type FrameRequest struct {
	Destination int     `json:"destination"`
	Payload     string  `json:"payload"`
	Parity      *string `json:"parity,omitempty"`
}

// StreamRequest queues raw bytes, they are not required to form whole frames
type StreamRequest struct {
	Data string `json:"data"`
	Gap  bool   `json:"gap"`
}

// SubmitResponse returns the bytes that were queued
type SubmitResponse struct {
	Bytes  string `json:"bytes"`
	Queued int    `json:"queued"`
}

type DrainResponse struct {
	Channel int    `json:"channel"`
	Data    string `json:"data"`
}

type ApiServer struct {
	context.Context
	*config.Config
	*mux.Router
	ctrl ifc.ControlServer
}

var _ ifc.ApiServer = &ApiServer{}

func NewApiServer(ctx context.Context, cfg *config.Config, ctrl ifc.ControlServer) (*ApiServer, error) {
	log.Info("Initializing API server with address: %s port: %d", cfg.IP, cfg.ApiPort)
	doc, err := SwaggerSpec()
	if err != nil {
		return nil, err
	}
	log.Debug("API description: %s %s", doc.Spec().Info.Title, doc.Version())

	s := &ApiServer{
		Context: ctx,
		Config:  cfg,
		ctrl:    ctrl,
	}
	s.configureRouter()
	return s, nil
}

// Run starts the HTTP server
func (s *ApiServer) Run() error {
	log.Info("Starting API server: address: %s port: %d", s.Config.IP, s.Config.ApiPort)
	httpServer := &http.Server{
		Handler: s.Handler(),
		Addr:    fmt.Sprintf("%s:%d", s.Config.IP, s.Config.ApiPort),
	}
	go func() {
		<-s.Context.Done()
		httpServer.Close()
	}()
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Handler returns the router wrapped with access logging and panic recovery
func (s *ApiServer) Handler() http.Handler {
	logged := handlers.CombinedLoggingHandler(log.Writer(log.DebugLevel), s.Router)
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(logged)
}

func (s *ApiServer) configureRouter() {
	s.Router = mux.NewRouter()
	s.Router.HandleFunc("/swagger.json", s.handleSwagger()).Methods("GET")
	s.Router.Handle("/docs", docsHandler()).Methods("GET")
	subRouter := s.Router.PathPrefix("/api").Subrouter()
	// swagger:operation GET /status status
	// ---
	// summary: router flags, state and buffer occupancy
	subRouter.HandleFunc("/status", s.handleStatus()).Methods("GET")
	// swagger:operation POST /frame frame
	// ---
	// summary: encode a frame and queue it for the router
	subRouter.HandleFunc("/frame", s.handleFrame()).Methods("POST")
	// swagger:operation POST /stream stream
	// ---
	// summary: queue raw bytes for the router
	subRouter.HandleFunc("/stream", s.handleStream()).Methods("POST")
	// swagger:operation POST /drain/{channel} drain
	// ---
	// summary: pop bytes from a channel buffer
	subRouter.HandleFunc("/drain/{channel:[0-2]}", s.handleDrain()).Methods("POST")
	subRouter.HandleFunc("/reset", s.handleReset()).Methods("POST")
	subRouter.HandleFunc("/events", s.handleEvents()).Methods("GET")
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Error while encoding response: %s", err)
	}
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	return hex.DecodeString(s)
}

func (s *ApiServer) submit(w http.ResponseWriter, burst srv.Burst) {
	if err := s.ctrl.Submit(burst); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, &SubmitResponse{
		Bytes:  hex.EncodeToString(burst.Data),
		Queued: s.ctrl.Status().Queued,
	})
}

func (s *ApiServer) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.ctrl.Status())
	}
}

func (s *ApiServer) handleFrame() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := &FrameRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Debug("Handling frame request: destination: %d payload: %s", req.Destination, req.Payload)

		if req.Destination < 0 || req.Destination > layers.MaxDestination {
			http.Error(w, fmt.Sprintf("Destination %d out of range 0..%d", req.Destination, layers.MaxDestination),
				http.StatusBadRequest)
			return
		}
		payload, err := decodeHex(req.Payload)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if max := s.ctrl.MaxPayload(); len(payload) > max {
			http.Error(w, fmt.Sprintf("Payload of %d bytes does not fit the length field: maximum %d", len(payload), max),
				http.StatusBadRequest)
			return
		}

		var data []byte
		if req.Parity == nil {
			data, err = layers.EncodeFrame(uint8(req.Destination), payload)
		} else {
			p, perr := decodeHex(*req.Parity)
			if perr != nil || len(p) != 1 {
				http.Error(w, fmt.Sprintf("Wrong parity %q: must be one hexadecimal byte", *req.Parity),
					http.StatusBadRequest)
				return
			}
			data, err = layers.EncodeFrameWithParity(uint8(req.Destination), payload, p[0])
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.submit(w, srv.Burst{Data: data, Gap: true, Source: SourceApi})
	}
}

func (s *ApiServer) handleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := &StreamRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, err := decodeHex(req.Data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(data) == 0 {
			http.Error(w, "Empty stream", http.StatusBadRequest)
			return
		}
		s.submit(w, srv.Burst{Data: data, Gap: req.Gap, Source: SourceApi})
	}
}

func (s *ApiServer) handleDrain() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		channel, err := strconv.Atoi(vars["channel"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		max := 0
		if raw := r.URL.Query().Get("max"); raw != "" {
			max, err = strconv.Atoi(raw)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		log.Debug("Handling drain request: channel: %d max: %d", channel, max)

		data, err := s.ctrl.Drain(r.Context(), channel, max)
		if err != nil {
			http.Error(w, err.Error(), http.StatusGatewayTimeout)
			return
		}
		writeJSON(w, http.StatusOK, &DrainResponse{Channel: channel, Data: hex.EncodeToString(data)})
	}
}

func (s *ApiServer) handleReset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug("Handling reset request")
		if err := s.ctrl.Reset(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusGatewayTimeout)
			return
		}
		writeJSON(w, http.StatusOK, s.ctrl.Status())
	}
}

func (s *ApiServer) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := DefaultEventsLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			var err error
			limit, err = strconv.Atoi(raw)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		events, err := s.ctrl.Events(limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if events == nil {
			events = []*srv.EventRecord{}
		}
		writeJSON(w, http.StatusOK, events)
	}
}
