package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Client talks to the Lume backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
	logger     hclog.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	Tokens         TokenProvider
	RequestTimeout time.Duration
	Logger         hclog.Logger
}

// New creates a backend client. The request timeout applies to JSON
// endpoints; uploads run on the caller's context instead so long transfers
// are bounded by cancellation, not a fixed timeout.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     opts.Tokens,
		logger:     logger,
	}
}

// Upload sends a single file as multipart form data. The progress callback
// fires as file bytes are written to the wire.
func (c *Client) Upload(ctx context.Context, file FileInput, meta Metadata, progress ProgressFunc) (*SubmitResult, error) {
	return c.uploadMultipart(ctx, "/media/upload", []FileInput{file}, meta, progress)
}

// BatchUpload sends several files in one multipart request. The shared
// metadata set applies to every item; per-item titles are server-derived.
func (c *Client) BatchUpload(ctx context.Context, files []FileInput, meta Metadata, progress ProgressFunc) (*SubmitResult, error) {
	return c.uploadMultipart(ctx, "/media/batch-upload", files, meta, progress)
}

// Submit asks the backend to import a single remote URL.
func (c *Client) Submit(ctx context.Context, url string, meta Metadata) (*SubmitResult, error) {
	return c.submitJSON(ctx, "/media/submit", map[string]interface{}{
		"url":         url,
		"title":       meta.Title,
		"description": meta.Description,
		"visibility":  meta.Visibility,
		"tags":        meta.Tags,
	})
}

// BatchSubmit asks the backend to import several remote URLs.
func (c *Client) BatchSubmit(ctx context.Context, urls []string, meta Metadata) (*SubmitResult, error) {
	return c.submitJSON(ctx, "/media/batch-submit", map[string]interface{}{
		"urls":        urls,
		"description": meta.Description,
		"visibility":  meta.Visibility,
		"tags":        meta.Tags,
	})
}

// Cancel issues a best-effort cancellation for a backend job. Callers bound
// it with a short context; failures are for logging only.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	body, _ := json.Marshal(map[string]string{"jobId": jobID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/media/cancel", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}
	return nil
}

// GetCaptions fetches the time-coded caption tracks for a media id.
func (c *Client) GetCaptions(ctx context.Context, mediaID string) ([]CaptionTrackPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/media/"+mediaID+"/captions", nil)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, c.decodeError(resp)
	}

	var envelope captionsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode captions response: %w", err)
	}
	return envelope.Data, nil
}

// FetchText retrieves a text resource (used for streaming manifests). The
// response body is limited to 8 MiB; manifests are far smaller.
func (c *Client) FetchText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Client) uploadMultipart(ctx context.Context, path string, files []FileInput, meta Metadata, progress ProgressFunc) (*SubmitResult, error) {
	var total int64
	for _, f := range files {
		if f.Size < 0 {
			total = -1
			break
		}
		total += f.Size
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	counter := &progressCounter{total: total, callback: progress}

	go func() {
		err := writeMultipartBody(writer, files, meta, counter)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	// Uploads must not be killed by the JSON request timeout.
	uploadClient := &http.Client{Transport: c.httpClient.Transport}

	resp, err := uploadClient.Do(req)
	if err != nil {
		// Make sure the writer goroutine is unblocked.
		pr.CloseWithError(err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, c.decodeError(resp)
	}

	var envelope submitEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	return &envelope.Data, nil
}

func writeMultipartBody(writer *multipart.Writer, files []FileInput, meta Metadata, counter *progressCounter) error {
	fieldName := "file"
	if len(files) > 1 {
		fieldName = "files"
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(fieldName, f.Name)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, counter.wrap(f.Reader)); err != nil {
			return fmt.Errorf("failed to write file %s: %w", f.Name, err)
		}
	}

	fields := map[string]string{
		"title":       meta.Title,
		"description": meta.Description,
		"visibility":  meta.Visibility,
	}
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return err
		}
	}
	for _, tag := range meta.Tags {
		if err := writer.WriteField("tags", tag); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) submitJSON(ctx context.Context, path string, payload map[string]interface{}) (*SubmitResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, c.decodeError(resp)
	}

	var envelope submitEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode submit response: %w", err)
	}
	return &envelope.Data, nil
}

func (c *Client) authorize(req *http.Request) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain auth token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func (c *Client) decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var envelope errorEnvelope
	message := ""
	if err := json.Unmarshal(data, &envelope); err == nil {
		message = envelope.Error
		if message == "" {
			message = envelope.Message
		}
	}
	if message == "" {
		message = strings.TrimSpace(string(data))
	}

	c.logger.Debug("backend error response", "status", resp.StatusCode, "message", message)
	return &BackendError{StatusCode: resp.StatusCode, Message: message}
}

// progressCounter tracks bytes written across all file parts of one request.
type progressCounter struct {
	total    int64
	sent     int64
	callback ProgressFunc
}

func (pc *progressCounter) wrap(r io.Reader) io.Reader {
	return &countingReader{reader: r, counter: pc}
}

type countingReader struct {
	reader  io.Reader
	counter *progressCounter
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.reader.Read(p)
	if n > 0 {
		cr.counter.sent += int64(n)
		if cr.counter.callback != nil {
			cr.counter.callback(cr.counter.sent, cr.counter.total)
		}
	}
	return n, err
}
