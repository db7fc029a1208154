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
	_ "embed"
	"encoding/json"
	"net/http"

	"github.com/go-openapi/loads"
	"github.com/go-openapi/runtime/middleware"
)

//go:embed swagger.json
var swaggerJSON []byte

// SwaggerSpec returns the analyzed description of the HTTP API
func SwaggerSpec() (*loads.Document, error) {
	return loads.Analyzed(json.RawMessage(swaggerJSON), "")
}

func (s *ApiServer) handleSwagger() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(swaggerJSON)
	}
}

// docsHandler serves the ReDoc page for the API description at /docs
func docsHandler() http.Handler {
	opts := middleware.RedocOpts{
		SpecURL: "/swagger.json",
		Path:    "docs",
		Title:   "go-router API",
	}
	return middleware.Redoc(opts, http.NotFoundHandler())
}
