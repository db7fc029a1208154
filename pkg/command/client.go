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

package command

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/imroc/req"

	"jinr.ru/greenlab/go-router/pkg/command/ifc"
	"jinr.ru/greenlab/go-router/pkg/config"
	"jinr.ru/greenlab/go-router/pkg/srv"
	"jinr.ru/greenlab/go-router/pkg/srv/control"
)

type ApiClient struct {
	*config.Config
	ApiPrefix string
}

var _ ifc.ApiClient = &ApiClient{}

func NewApiClient(cfg *config.Config) *ApiClient {
	return &ApiClient{
		Config:    cfg,
		ApiPrefix: fmt.Sprintf("http://%s:%d/api", cfg.IP, cfg.ApiPort),
	}
}

func (c *ApiClient) url(format string, v ...interface{}) string {
	return c.ApiPrefix + fmt.Sprintf(format, v...)
}

// check turns a non successful response into an error carrying the response body
func check(r *req.Resp, expected int) error {
	if r.Response().StatusCode == expected {
		return nil
	}
	msg := strings.TrimSpace(r.String())
	if msg == "" {
		return errors.New(r.Response().Status)
	}
	return fmt.Errorf("%s: %s", r.Response().Status, msg)
}

// Status sends request to get router flags and buffer occupancy
func (c *ApiClient) Status() (*srv.Snapshot, error) {
	r, err := req.Get(c.url("/status"))
	if err != nil {
		return nil, err
	}
	if err := check(r, http.StatusOK); err != nil {
		return nil, err
	}
	st := &srv.Snapshot{}
	if err := r.ToJSON(st); err != nil {
		return nil, err
	}
	return st, nil
}

func (c *ApiClient) submit(url string, body interface{}) (*control.SubmitResponse, error) {
	r, err := req.Post(url, req.BodyJSON(body))
	if err != nil {
		return nil, err
	}
	if err := check(r, http.StatusAccepted); err != nil {
		return nil, err
	}
	resp := &control.SubmitResponse{}
	if err := r.ToJSON(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SendFrame sends request to encode a frame and queue it for the router
func (c *ApiClient) SendFrame(destination int, payload []byte, parity *byte) (*control.SubmitResponse, error) {
	frame := &control.FrameRequest{
		Destination: destination,
		Payload:     hex.EncodeToString(payload),
	}
	if parity != nil {
		p := hex.EncodeToString([]byte{*parity})
		frame.Parity = &p
	}
	return c.submit(c.url("/frame"), frame)
}

// SendStream sends request to queue raw bytes for the router
func (c *ApiClient) SendStream(data []byte, gap bool) (*control.SubmitResponse, error) {
	stream := &control.StreamRequest{
		Data: hex.EncodeToString(data),
		Gap:  gap,
	}
	return c.submit(c.url("/stream"), stream)
}

// Drain sends request to pop up to max bytes from a channel, max <= 0 empties the channel
func (c *ApiClient) Drain(channel, max int) ([]byte, error) {
	r, err := req.Post(c.url("/drain/%d?max=%d", channel, max))
	if err != nil {
		return nil, err
	}
	if err := check(r, http.StatusOK); err != nil {
		return nil, err
	}
	resp := &control.DrainResponse{}
	if err := r.ToJSON(resp); err != nil {
		return nil, err
	}
	return hex.DecodeString(resp.Data)
}

// Reset sends request to assert the router reset for one cycle
func (c *ApiClient) Reset() (*srv.Snapshot, error) {
	r, err := req.Post(c.url("/reset"))
	if err != nil {
		return nil, err
	}
	if err := check(r, http.StatusOK); err != nil {
		return nil, err
	}
	st := &srv.Snapshot{}
	if err := r.ToJSON(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Events sends request to get the most recent router events, oldest first
func (c *ApiClient) Events(limit int) ([]*srv.EventRecord, error) {
	r, err := req.Get(c.url("/events?limit=%d", limit))
	if err != nil {
		return nil, err
	}
	if err := check(r, http.StatusOK); err != nil {
		return nil, err
	}
	var events []*srv.EventRecord
	if err := r.ToJSON(&events); err != nil {
		return nil, err
	}
	return events, nil
}
