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

// Package client talks to the coxswain controller's queue surface. It is
// what coxctl and other programmatic callers use to submit campaigns,
// inspect the queue, and steer the scheduler.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/coxswain-io/coxswain/internal/version"
)

// DefaultHTTPTimeout is the default HTTP timeout.
var DefaultHTTPTimeout = time.Second * 10

// DefaultHTTPProtocol is the default HTTP protocol (http, https).
var DefaultHTTPProtocol = "http"

// maxErrorBody caps how much of a reply we read back when digging for an
// error message.
const maxErrorBody = 4096

// Ack is the message envelope simple mutations answer with.
type Ack struct {
	Message string `json:"message"`
}

// Client is a coxswain controller client.
type Client struct {
	// Timeout on HTTP connections.
	HTTPTimeout time.Duration
	// Transport carries every request. Defaults to http.DefaultTransport.
	Transport http.RoundTripper

	// Base URL for the controller.
	baseURL *url.URL
	log     logrus.FieldLogger
}

// NewClient creates a new controller client. Host may be a bare host,
// host:port pair, or URL.
func NewClient(host string) (*Client, error) {
	u, err := DefaultServerURL(host)
	if err != nil {
		return nil, err
	}

	return &Client{
		HTTPTimeout: DefaultHTTPTimeout,
		Transport:   http.DefaultTransport,
		baseURL:     u,
		log:         logrus.StandardLogger(),
	}, nil
}

// SetTransport sets a custom Transport. Defaults to http.DefaultTransport.
func (c *Client) SetTransport(tr http.RoundTripper) *Client {
	c.Transport = tr
	return c
}

// SetTimeout sets a timeout for HTTP connections.
func (c *Client) SetTimeout(seconds int) *Client {
	c.HTTPTimeout = time.Duration(seconds) * time.Second
	return c
}

// SetLogger routes the client's debug logging. Defaults to the standard
// logrus logger.
func (c *Client) SetLogger(log logrus.FieldLogger) *Client {
	c.log = log
	return c
}

// url resolves a path relative to the controller base URL.
func (c *Client) url(rawurl string) (string, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", err
	}
	return c.baseURL.ResolveReference(u).String(), nil
}

func (c *Client) agent() string {
	return version.GetUserAgent()
}

// call runs one JSON request against the controller and decodes the reply
// into dest when dest is non-nil.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, in, dest interface{}) error {
	var (
		body        io.Reader
		contentType string
	)
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, query, contentType, body, dest)
}

// do is the low-level primitive behind every call. It resolves the path,
// sends the request, maps non-2xx replies to an HTTPError carrying the
// server's message, and unmarshals the body into dest when dest is non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader, dest interface{}) error {
	u, err := c.url(path)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", path)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return errors.Wrapf(err, "building %s %s request", method, path)
	}
	req.Header.Set("User-Agent", c.agent())
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.log.WithFields(logrus.Fields{
		"method": method,
		"url":    u,
	}).Debug("controller request")

	client := &http.Client{
		Timeout:   c.HTTPTimeout,
		Transport: c.Transport,
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "calling %s %s", method, path)
	}
	defer resp.Body.Close()

	s := resp.StatusCode
	if s < http.StatusOK || s >= http.StatusMultipleChoices {
		return &HTTPError{
			StatusCode: s,
			Message:    serverMessage(resp),
			URL:        req.URL,
		}
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return errors.Wrapf(err, "parsing %s %s response", method, path)
	}
	return nil
}

// serverMessage digs the controller's error envelope out of a failed reply,
// falling back to the raw body and then the HTTP status line.
func serverMessage(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return resp.Status
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return resp.Status
}

// DefaultServerURL converts a host, host:port, or URL string to the base
// URL to use with a Client.
func DefaultServerURL(host string) (*url.URL, error) {
	if host == "" {
		return nil, fmt.Errorf("host must be a URL or a host:port pair")
	}
	base := host
	hostURL, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	if hostURL.Scheme == "" {
		hostURL, err = url.Parse(DefaultHTTPProtocol + "://" + base)
		if err != nil {
			return nil, err
		}
	}
	if len(hostURL.Path) > 0 && !strings.HasSuffix(hostURL.Path, "/") {
		hostURL.Path = hostURL.Path + "/"
	}

	return hostURL, nil
}

// HTTPError is an error caused by an unexpected HTTP status code.
//
// The StatusCode will not necessarily be a 4xx or 5xx. Any unexpected code
// may be returned.
type HTTPError struct {
	StatusCode int
	Message    string
	URL        *url.URL
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return e.Message
}

// String implements the fmt.Stringer interface.
func (e *HTTPError) String() string {
	return e.Error()
}

// IsNotFound reports whether err is the controller saying a resource does
// not exist.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}
