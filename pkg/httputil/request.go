/*
Copyright The Coxswain Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package httputil

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// maxRequestBody caps request bodies. Campaign submissions carry raw
// manifests and values documents, so the limit is generous.
const maxRequestBody = 4 << 20

// Decode reads a JSON request body into v.
func Decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v); err != nil {
		return errors.Wrap(err, "decoding request body")
	}
	return nil
}

// ReadBody returns the raw request body, capped at the package limit.
func ReadBody(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return nil, errors.Wrap(err, "reading request body")
	}
	return raw, nil
}
