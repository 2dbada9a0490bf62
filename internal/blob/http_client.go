package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nebulaftp/nebulaftp/internal/pacer"
)

// HTTPClient talks to one messaging-based blob target over plain REST
// calls, the same shape backend/teldrive's objectChunkWriter drives
// against its upload API (multipart POST per chunk, ranged GET to
// stream a chunk back), reimplemented over net/http directly since
// rclone's own lib/rest client is not importable outside the rclone
// module.
type HTTPClient struct {
	baseURL string
	apiKey  string
	target  string
	http    *http.Client
	pacer   *pacer.Pacer
	log     *logrus.Entry
}

// NewHTTPClient builds a client against baseURL, authenticating with
// apiKey and addressing the given default target (channel) for sends.
func NewHTTPClient(baseURL, apiKey, target string, maxRetries int, log *logrus.Entry) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		target:  target,
		http:    &http.Client{Timeout: 2 * time.Minute},
		pacer:   pacer.New(maxRetries),
		log:     log,
	}
}

type sendResponse struct {
	BlobID    string `json:"blob_id"`
	BlobMsgID uint64 `json:"blob_msg_id"`
}

// SendDocument POSTs the chunk body to the backend, retrying per the
// configured pacer policy: 429/503 is treated as a rate-limit wait
// (Retry-After seconds, or 1s without the header), other 5xx statuses
// and transport errors are retried with exponential backoff, and any
// other non-2xx status or an undecodable response body fails at once.
func (c *HTTPClient) SendDocument(ctx context.Context, target, chunkName string, body io.ReadSeeker, size int64) (Chunk, error) {
	var result Chunk
	err := c.pacer.Run(ctx, func(ctx context.Context) (bool, error) {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return false, err
		}
		u := c.baseURL + "/send"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
		if err != nil {
			return false, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/octet-stream")
		req.ContentLength = size
		q := url.Values{"target": {target}, "chunk_name": {chunkName}}
		req.URL.RawQuery = q.Encode()

		resp, err := c.http.Do(req)
		if err != nil {
			return true, err
		}
		defer resp.Body.Close()

		if retry, rerr := classifyResponse(resp); rerr != nil {
			return retry, rerr
		}

		var decoded sendResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return false, err
		}
		result = Chunk{BlobID: decoded.BlobID, BlobMsgID: decoded.BlobMsgID}
		return false, nil
	})
	if err != nil {
		c.log.WithError(err).WithField("chunk", chunkName).Warn("chunk send failed")
	}
	return result, err
}

// Stream opens a ranged GET against blobID starting at localOffset.
func (c *HTTPClient) Stream(ctx context.Context, blobID string, localOffset int64) (io.ReadCloser, error) {
	u := c.baseURL + "/stream/" + url.PathEscape(blobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if localOffset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(localOffset, 10)+"-")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("blob: stream %s: status %d", blobID, resp.StatusCode)
	}
	return resp.Body, nil
}

// Copy replicates blobID onto backupTarget. Callers (the upload
// worker) swallow its failures per spec §4.7.
func (c *HTTPClient) Copy(ctx context.Context, blobID, backupTarget string) error {
	return c.pacer.Run(ctx, func(ctx context.Context) (bool, error) {
		u := c.baseURL + "/copy"
		q := url.Values{"blob_id": {blobID}, "target": {backupTarget}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u+"?"+q.Encode(), nil)
		if err != nil {
			return false, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		resp, err := c.http.Do(req)
		if err != nil {
			return true, err
		}
		defer resp.Body.Close()
		return classifyResponse(resp)
	})
}

// Ping verifies the backend is reachable and the default target
// resolves, for use at startup (spec §6 channel/target resolution).
func (c *HTTPClient) Ping(ctx context.Context) error {
	u := c.baseURL + "/targets/" + url.PathEscape(c.target)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("blob: target %q unreachable: status %d", c.target, resp.StatusCode)
	}
	return nil
}

// classifyResponse inspects a completed HTTP response for the
// rate-limit vs. generic-retryable vs. success/fatal split, mirroring
// backend/b2's shouldRetryNoReauth handling of 429/503 + Retry-After.
func classifyResponse(resp *http.Response) (retry bool, err error) {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		after := 1 * time.Second
		if h := resp.Header.Get("Retry-After"); h != "" {
			if secs, perr := strconv.Atoi(h); perr == nil {
				after = time.Duration(secs) * time.Second
			}
		}
		return true, pacer.RateLimit(fmt.Errorf("blob: rate limited: status %d", resp.StatusCode), after)
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("blob: server error: status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("blob: request failed: status %d", resp.StatusCode)
	}
}
