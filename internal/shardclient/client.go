// Package shardclient implements the Shard Client Manager (spec.md §4.5):
// a cached set of network clients to remote shards, addressed by
// (element kind, op kind, hash code) and swapped atomically on
// reconfiguration.
//
// The wire client is grounded on the sibling repo's node-to-node
// JSON-over-HTTP pattern (johnjansen-torua's internal/cluster/types.go
// PostJSON/GetJSON helpers): a pooled http.Client, context-aware requests,
// JSON request/response bodies.
package shardclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"

	"accessfabric/internal/apperrors"
	"accessfabric/internal/domain"
)

// Request is the wire envelope for one routed operation, dispatched to
// whichever shard owns hash_code for (kind, op).
type Request struct {
	Op      domain.OpKind      `json:"op"`
	Kind    domain.ElementKind `json:"kind"`
	Method  string             `json:"method"`
	Args    []string           `json:"args"`
	HashKey string             `json:"hash_key"`
}

// Response is the wire envelope a shard returns.
type Response struct {
	OK      bool     `json:"ok"`
	Code    string   `json:"code,omitempty"`
	Message string   `json:"message,omitempty"`
	Results []string `json:"results,omitempty"`
}

// ShardClient dispatches one routed request to a single remote shard.
type ShardClient interface {
	Dispatch(ctx context.Context, req Request) (Response, error)
	Close()
}

// httpShardClient implements ShardClient over net/http + encoding/json.
type httpShardClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a ShardClient against cfg.Address, using cfg's
// dial and request timeouts to configure the underlying transport.
func NewHTTPClient(cfg domain.ClientConfig) ShardClient {
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	transport := &http.Transport{
		DialContext: dialer.DialContext,
	}
	return &httpShardClient{
		baseURL: cfg.Address,
		http: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
	}
}

func (c *httpShardClient) Dispatch(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, apperrors.Wrap(err, apperrors.CodeValidation, "shardclient", "encode request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shard/dispatch", bytes.NewReader(body))
	if err != nil {
		return Response{}, apperrors.Wrap(err, apperrors.CodeFatal, "shardclient", "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, apperrors.Wrap(err, apperrors.CodeUnavailable, "shardclient", "dispatch")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, apperrors.Wrap(err, apperrors.CodeTransient, "shardclient", "read response")
	}

	if resp.StatusCode >= 300 {
		return Response{}, apperrors.New(apperrors.CodeUnavailable, "shardclient", fmt.Sprintf("shard returned status %d: %s", resp.StatusCode, string(raw)))
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return Response{}, apperrors.Wrap(err, apperrors.CodeTransient, "shardclient", "decode response")
	}
	if !out.OK {
		return out, apperrors.New(apperrors.Code(out.Code), "shardclient", out.Message)
	}
	return out, nil
}

func (c *httpShardClient) Close() {
	c.http.CloseIdleConnections()
}
