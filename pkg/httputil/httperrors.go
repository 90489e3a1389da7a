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
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Logger receives the package's error logging. Defaults to the standard
// logrus logger.
var Logger logrus.FieldLogger = logrus.StandardLogger()

// ErrorBody is the envelope every failed request answers with.
type ErrorBody struct {
	Error string `json:"error"`
}

// Error writes a JSON error envelope with the given status code.
func Error(w http.ResponseWriter, r *http.Request, status int, msg string, v ...interface{}) {
	rendered := fmt.Sprintf(msg, v...)
	if status >= http.StatusInternalServerError {
		Logger.WithFields(logrus.Fields{
			"method": r.Method,
			"url":    r.URL.String(),
			"status": status,
		}).Error(rendered)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorBody{Error: rendered})
}

// BadRequest writes a 400 error to the client.
func BadRequest(w http.ResponseWriter, r *http.Request, msg string, v ...interface{}) {
	Error(w, r, http.StatusBadRequest, msg, v...)
}

// NotFound writes a 404 error to the client.
func NotFound(w http.ResponseWriter, r *http.Request, msg string, v ...interface{}) {
	Error(w, r, http.StatusNotFound, msg, v...)
}

// Conflict writes a 409 error to the client.
func Conflict(w http.ResponseWriter, r *http.Request, msg string, v ...interface{}) {
	Error(w, r, http.StatusConflict, msg, v...)
}

// Fatal writes a 500 error to the client and logs the message.
//
// Additional arguments are passed into the formatter as params to msg.
func Fatal(w http.ResponseWriter, r *http.Request, msg string, v ...interface{}) {
	Error(w, r, http.StatusInternalServerError, msg, v...)
}
