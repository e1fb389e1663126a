package decision

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const maxReplyBytes = 1 << 20

// Requester performs one decision round-trip.
type Requester interface {
	Decide(ctx context.Context, snap Snapshot) (Response, error)
}

// Client posts snapshots to the decision service.
type Client struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewClient bounds connect and read time by timeout.
func NewClient(url string, timeout time.Duration) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          2,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &Client{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout, Transport: transport},
	}
}

func (c *Client) URL() string {
	return c.url
}

func (c *Client) Decide(ctx context.Context, snap Snapshot) (Response, error) {
	body := snap.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create decision request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	reply, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return Response{}, &TransportError{Err: fmt.Errorf("read reply: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, &ProtocolError{StatusCode: resp.StatusCode, Body: string(reply)}
	}

	return DecodeResponse(reply), nil
}
