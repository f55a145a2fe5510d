// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the source backends and
// language model adapters.
package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a non-2xx body is kept for diagnostics.
const maxErrorBody = 512

// StatusError reports a non-2xx HTTP response. The resilient caller inspects
// it through the RateLimited, Permanent and RetryAfter methods.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
	Retry      time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned HTTP %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Service, e.StatusCode, e.Body)
}

// RateLimited reports HTTP 429.
func (e *StatusError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Permanent reports client errors that retrying will not fix. 408 and 429
// are transient.
func (e *StatusError) Permanent() bool {
	if e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// RetryAfter returns the server's Retry-After hint, or zero.
func (e *StatusError) RetryAfter() time.Duration { return e.Retry }

// CheckResponse returns a *StatusError for non-2xx responses. It drains and
// keeps a prefix of the body but does not close it.
func CheckResponse(resp *http.Response, service string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	io.Copy(io.Discard, resp.Body)
	return &StatusError{
		Service:    service,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		Retry:      ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
}

// ParseRetryAfter decodes a Retry-After header given as seconds or an HTTP date.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// DoJSON sends req and decodes a 2xx JSON body into out. Non-2xx responses
// return a *StatusError; decode failures return the json error wrapped, so
// callers can classify them with errors.As.
func DoJSON(ctx context.Context, client *http.Client, req *http.Request, service string, out any) error {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%s request: %w", service, err)
	}
	defer resp.Body.Close()

	if err := CheckResponse(resp, service); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &DecodeError{Service: service, Err: err}
	}
	return nil
}

// DecodeError reports a 2xx response whose body could not be decoded,
// including truncated bodies that surface as io.ErrUnexpectedEOF.
type DecodeError struct {
	Service string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("parsing %s response: %v", e.Service, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Unparseable always reports true; retrying will not change the body.
func (e *DecodeError) Unparseable() bool { return true }
