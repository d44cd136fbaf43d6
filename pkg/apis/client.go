// Package apis holds the external HTTP collaborators of the bot: Mojang
// account resolution, Hypixel player stats and Challonge tournament
// brackets. Every client carries its own bounded response cache; nothing
// here shares module-level state.
package apis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// newHTTPClient builds the shared transport shape: a fixed short timeout
// and a small idempotent retry budget. Connection errors and 5xx responses
// retry; 4xx responses surface immediately.
func newHTTPClient(timeout time.Duration) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	return client
}

// requestJSON performs one call and decodes the JSON response into out.
// A nil out discards the body; a nil body sends none.
func requestJSON(ctx context.Context, client *retryablehttp.Client, log *zap.Logger,
	service, method, url string, body, out any) error {

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return newError(service, err.Error(), false)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return newError(service, err.Error(), false)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := client.Do(req)
	if err != nil {
		log.Warn("api request failed", zap.String("service", service), zap.Error(err))
		return newError(service, err.Error(), true)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Warn("api request rejected",
			zap.String("service", service),
			zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return statusError(service, resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newError(service, fmt.Sprintf("bad response body: %v", err), false)
	}
	return nil
}

func decodeJSON(resp *http.Response, out any) error {
	return json.NewDecoder(resp.Body).Decode(out)
}

// cacheKey hashes a request identity into a fixed-size cache key.
func cacheKey(parts ...string) string {
	digest := xxhash.New()
	for _, part := range parts {
		digest.WriteString(part)
		digest.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", digest.Sum64())
}
