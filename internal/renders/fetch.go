package renders

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// FetchAsset downloads a result image over TLS with a hard size ceiling.
// Callers that receive the URL from an untrusted payload must run their own
// host allow-listing before calling this.
func FetchAsset(ctx context.Context, client *http.Client, rawURL string, maxBytes int64) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("parsing asset url: %w", err)
	}
	if parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("asset url scheme %q is not https", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building asset request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("asset fetch returned status %d", resp.StatusCode)
	}
	if resp.ContentLength > maxBytes {
		return nil, "", fmt.Errorf("asset of %d bytes exceeds the %d byte ceiling", resp.ContentLength, maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading asset: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, "", fmt.Errorf("asset exceeds the %d byte ceiling", maxBytes)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return data, mimeType, nil
}
