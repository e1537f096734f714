// Package netx holds small HTTP client helpers.
package netx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

const maxErrorBody = 4 << 10

// UploadToPresignedURL PUTs body to a presigned object-store URL. A nil
// client means http.DefaultClient. Any status other than 200 is an error that
// carries the start of the response body.
func UploadToPresignedURL(ctx context.Context, client *http.Client, url, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("upload failed: %s; body: %s", resp.Status, string(b))
	}
	return nil
}
