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

// Package runner is the HTTP client for the oarsman surface. The
// controller submits benchmark manifests through it when a runner URL
// is configured instead of talking to the cluster itself; job polls and
// deletions flow through the same client, so the waiters cannot tell
// the two apart.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/coxswain-io/coxswain/internal/version"
	"github.com/coxswain-io/coxswain/pkg/kube"
	"github.com/coxswain-io/coxswain/pkg/monitor"
)

// defaultTimeout bounds every runner call end to end.
const defaultTimeout = 60 * time.Second

var _ monitor.JobSource = (*Client)(nil)

// DeployRequest is the body of a manifest submission.
type DeployRequest struct {
	ManifestText string `json:"manifest_text"`
	Namespace    string `json:"namespace"`
	Name         string `json:"name,omitempty"`
}

// DeployResponse reports what the runner applied or deleted.
type DeployResponse struct {
	Status    string          `json:"status"`
	Message   string          `json:"message,omitempty"`
	Namespace string          `json:"namespace"`
	Resources []kube.Resource `json:"resources"`
}

// PodsResponse carries the pod census behind a job.
type PodsResponse struct {
	Name      string         `json:"name"`
	Namespace string         `json:"namespace"`
	Pods      []kube.PodInfo `json:"pods"`
}

// DeleteJobResponse acknowledges a job deletion.
type DeleteJobResponse struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Deleted   bool   `json:"deleted"`
}

// LogsResponse carries the aggregated job log.
type LogsResponse struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Logs      string `json:"logs"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Client talks to one oarsman instance.
type Client struct {
	base   url.URL
	client *http.Client
	log    logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.client = h }
}

// WithLogger replaces the request logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

// New returns a client for the runner at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid runner URL %q", baseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("invalid runner URL %q", baseURL)
	}
	c := &Client{
		base:   *u,
		client: &http.Client{Timeout: defaultTimeout},
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) url(ps ...string) string {
	u := c.base
	u.Path = path.Join(u.Path, path.Join(ps...))
	return u.String()
}

// do runs one request and decodes the JSON answer into out when out is
// non-nil. Non-2xx answers become errors carrying the runner's message.
func (c *Client) do(ctx context.Context, method, rawurl string, query url.Values, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding runner request")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawurl, body)
	if err != nil {
		return errors.Wrap(err, "building runner request")
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.GetUserAgent())

	c.log.WithFields(logrus.Fields{
		"method": method,
		"url":    req.URL.String(),
	}).Debug("runner request")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "runner request failed")
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{
		"status": resp.Status,
		"url":    req.URL.String(),
	}).Debug("runner response received")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("runner: %s %s: %s", method, req.URL.Path, readError(resp))
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decoding runner response")
}

// readError digs the runner's message out of an error response, falling
// back to the raw body and finally the HTTP status.
func readError(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil {
		var body errorBody
		if jsonErr := json.Unmarshal(raw, &body); jsonErr == nil && body.Error != "" {
			return body.Error
		}
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return msg
		}
	}
	return resp.Status
}

func namespaceQuery(namespace string) url.Values {
	return url.Values{"namespace": []string{namespace}}
}

// ApplyManifest submits a manifest for the runner to apply. Documents
// without a namespace of their own land in the given one.
func (c *Client) ApplyManifest(ctx context.Context, text, namespace string) ([]kube.Resource, error) {
	var out DeployResponse
	req := &DeployRequest{ManifestText: text, Namespace: namespace}
	if err := c.do(ctx, http.MethodPost, c.url("deploy"), nil, req, &out); err != nil {
		return nil, err
	}
	return out.Resources, nil
}

// DeleteManifest asks the runner to remove the resources a manifest
// describes. Absent resources count as deleted.
func (c *Client) DeleteManifest(ctx context.Context, text, namespace string) ([]kube.Resource, error) {
	var out DeployResponse
	req := &DeployRequest{ManifestText: text, Namespace: namespace}
	if err := c.do(ctx, http.MethodPost, c.url("delete"), nil, req, &out); err != nil {
		return nil, err
	}
	return out.Resources, nil
}

// JobStatus fetches the runner's view of a job. A missing job is not an
// error; it reports the not_found phase.
func (c *Client) JobStatus(ctx context.Context, name, namespace string) (*kube.JobStatus, error) {
	var out kube.JobStatus
	if err := c.do(ctx, http.MethodGet, c.url("jobs", name, "status"), namespaceQuery(namespace), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PodsForJob lists the pods a job has spawned.
func (c *Client) PodsForJob(ctx context.Context, jobName, namespace string) ([]kube.PodInfo, error) {
	var out PodsResponse
	if err := c.do(ctx, http.MethodGet, c.url("jobs", jobName, "pods"), namespaceQuery(namespace), nil, &out); err != nil {
		return nil, err
	}
	return out.Pods, nil
}

// DeleteJob removes a job. Absence is success.
func (c *Client) DeleteJob(ctx context.Context, name, namespace string) (bool, error) {
	var out DeleteJobResponse
	if err := c.do(ctx, http.MethodDelete, c.url("jobs", name, "delete"), namespaceQuery(namespace), nil, &out); err != nil {
		return false, err
	}
	return out.Deleted, nil
}

// JobLogs fetches the aggregated log of every pod behind the job, each
// line prefixed with its pod name. tail limits the lines per pod when
// positive.
func (c *Client) JobLogs(ctx context.Context, jobName, namespace string, tail int64) (string, error) {
	q := namespaceQuery(namespace)
	if tail > 0 {
		q.Set("tail", strconv.FormatInt(tail, 10))
	}
	var out LogsResponse
	if err := c.do(ctx, http.MethodGet, c.url("jobs", jobName, "logs"), q, nil, &out); err != nil {
		return "", err
	}
	return out.Logs, nil
}

// Health checks that the runner answers its health probe.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.url("health"), nil, nil, nil)
}
