// Package uploadclient implements the sender side of the chunked
// upload protocol (C4): fingerprinting, bounded concurrent dispatch,
// retry with exponential backoff, and resume-from-status.
package uploadclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/videoforge/videoforge/internal/fingerprint"
)

// defaults mirror spec §4.4.
const (
	DefaultConcurrency  = 4
	DefaultFailureRatio = 0.05
	DefaultRetryPasses  = 3
	defaultChunkSize    = 8 << 20 // 8 MiB, the server may override via InitResponse

	// defaultFingerprintThreshold matches the server's default
	// QUICK_FINGERPRINT_THRESHOLD (500 MiB) so a client-computed
	// fingerprint takes the same whole-content/tuple-hash branch the
	// server will take for the same file.
	defaultFingerprintThreshold = 500 << 20
)

var retryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}

// ProgressFunc is invoked on every sampled or boundary progress event.
type ProgressFunc func(p Progress)

type Progress struct {
	UploadedBytes int64
	TotalBytes    int64
	Phase         string
}

// Client drives one or more uploads against a VideoForge server.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	concurrency int
	failureRate float64
	retryPasses int

	fp *fingerprint.Service
}

type Option func(*Client)

func WithConcurrency(k int) Option { return func(c *Client) { c.concurrency = k } }

func WithFailureRatio(f float64) Option { return func(c *Client) { c.failureRate = f } }

// WithOAuthToken wires a static bearer token into every request via
// golang.org/x/oauth2's static token source, for servers deployed
// behind an OIDC-protected gateway.
func WithOAuthToken(token string) Option {
	return func(c *Client) {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		c.httpClient = oauth2.NewClient(context.Background(), src)
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		httpClient:  http.DefaultClient,
		concurrency: DefaultConcurrency,
		failureRate: DefaultFailureRatio,
		retryPasses: DefaultRetryPasses,
		fp:          fingerprint.New(defaultFingerprintThreshold),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type initResponse struct {
	ChunkSize   int64  `json:"chunkSize"`
	TotalChunks int    `json:"totalChunks"`
	FileExists  bool   `json:"fileExists"`
	TaskID      string `json:"taskId"`
	TaskName    string `json:"taskName"`
}

type statusResponse struct {
	UploadedChunks []int `json:"uploadedChunks"`
	TotalChunks    int   `json:"totalChunks"`
	UploadedBytes  int64 `json:"uploadedBytes"`
	TotalBytes     int64 `json:"totalBytes"`
}

// UploadResult is returned once the handoff to task conversion begins.
type UploadResult struct {
	TaskID     string
	TaskName   string
	AlreadyHad bool
}

// UploadFile drives the full C4 protocol for one local file.
func (c *Client) UploadFile(ctx context.Context, uploadID, path string, clientID string, conversionRequest map[string]interface{}, onProgress ProgressFunc) (*UploadResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat upload source: %w", err)
	}
	totalSize := info.Size()

	fp, err := c.fp.Compute(path, totalSize)
	if err != nil {
		return nil, fmt.Errorf("compute fingerprint: %w", err)
	}

	initResp, err := c.init(ctx, uploadID, filepathBase(path), totalSize, fp, clientID, conversionRequest)
	if err != nil {
		return nil, err
	}
	if initResp.FileExists {
		return &UploadResult{TaskID: initResp.TaskID, TaskName: initResp.TaskName, AlreadyHad: true}, nil
	}

	chunkSize := initResp.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	status, err := c.status(ctx, uploadID, clientID)
	if err != nil {
		return nil, err
	}

	received := make(map[int]bool, len(status.UploadedChunks))
	for _, idx := range status.UploadedChunks {
		received[idx] = true
	}

	totalChunks := initResp.TotalChunks
	if totalChunks == 0 {
		totalChunks = status.TotalChunks
	}

	workList := make([]int, 0, totalChunks)
	for i := 0; i < totalChunks; i++ {
		if !received[i] {
			workList = append(workList, i)
		}
	}

	tracker := newProgressTracker(totalSize, chunkSize, totalChunks, received, onProgress)

	failed, err := c.dispatchFirstPass(ctx, uploadID, path, clientID, chunkSize, totalSize, totalChunks, workList, tracker)
	if err != nil {
		return nil, err
	}

	if len(failed) > 0 {
		if err := c.retrySecondPass(ctx, uploadID, path, clientID, chunkSize, totalSize, totalChunks, failed, tracker); err != nil {
			return nil, err
		}
	}

	tracker.boundary("completing")
	taskID, taskName, err := c.complete(ctx, uploadID, clientID)
	if err != nil {
		return nil, err
	}
	tracker.boundary("done")

	return &UploadResult{TaskID: taskID, TaskName: taskName}, nil
}

// dispatchFirstPass drives up to c.concurrency chunks in flight at
// once via a bounded token pool, tolerating up to f = max(1, ceil(F*N))
// per-chunk failures before aborting with TooManyFailures.
func (c *Client) dispatchFirstPass(ctx context.Context, uploadID, path, clientID string, chunkSize, totalSize int64, totalChunks int, workList []int, tracker *progressTracker) ([]int, error) {
	n := len(workList)
	maxFailures := int(math.Ceil(c.failureRate * float64(totalChunks)))
	if maxFailures < 1 {
		maxFailures = 1
	}

	tokens := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed []int
	var failCount int

	limiter := rate.NewLimiter(rate.Limit(c.concurrency*2), c.concurrency*2)

	abort := false
	for _, idx := range workList {
		mu.Lock()
		if abort {
			mu.Unlock()
			break
		}
		mu.Unlock()

		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		tokens <- struct{}{}
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			defer func() { <-tokens }()

			err := c.sendChunk(ctx, uploadID, path, clientID, index, chunkSize, totalSize)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, index)
				failCount++
				if failCount > maxFailures {
					abort = true
				}
				return
			}
			tracker.chunkDone(index)
		}(idx)
	}
	wg.Wait()
	_ = n

	if failCount > maxFailures {
		return nil, fmt.Errorf("too many chunk failures: %d exceeds tolerance %d", failCount, maxFailures)
	}
	return failed, nil
}

// retrySecondPass retries failed indices sequentially with exponential
// backoff, limited to the first R delays, only for retryable errors.
func (c *Client) retrySecondPass(ctx context.Context, uploadID, path, clientID string, chunkSize, totalSize int64, totalChunks int, failed []int, tracker *progressTracker) error {
	remaining := failed
	for attempt := 0; attempt < c.retryPasses && len(remaining) > 0; attempt++ {
		delay := retryDelays[attempt%len(retryDelays)]
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		var stillFailing []int
		for _, idx := range remaining {
			err := c.sendChunk(ctx, uploadID, path, clientID, idx, chunkSize, totalSize)
			if err != nil {
				if !isRetryable(err) {
					return fmt.Errorf("non-retryable error on chunk %d: %w", idx, err)
				}
				stillFailing = append(stillFailing, idx)
				continue
			}
			tracker.chunkDone(idx)
		}
		remaining = stillFailing
	}

	if len(remaining) > 0 {
		return fmt.Errorf("chunks still missing after retry passes: %v", remaining)
	}
	return nil
}

func (c *Client) sendChunk(ctx context.Context, uploadID, path, clientID string, index int, chunkSize, totalSize int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	offset := int64(index) * chunkSize
	length := chunkSize
	if offset+length > totalSize {
		length = totalSize - offset
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(f, buf); err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("uploadId", uploadID)
	mw.WriteField("chunkIndex", strconv.Itoa(index))
	mw.WriteField("chunkMd5", "")
	part, err := mw.CreateFormFile("chunk", "chunk")
	if err != nil {
		return err
	}
	part.Write(buf)
	mw.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload/chunked/chunk", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if clientID != "" {
		req.Header.Set("X-Client-Id", clientID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == 408 || resp.StatusCode == 429 || resp.StatusCode >= 500 {
		return &retryableError{fmt.Errorf("chunk %d: server status %d", index, resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("chunk %d: server status %d", index, resp.StatusCode)
	}
	return nil
}

type retryableError struct{ err error }

func (r *retryableError) Error() string { return r.err.Error() }
func (r *retryableError) Unwrap() error { return r.err }

func isRetryable(err error) bool {
	_, ok := err.(*retryableError)
	return ok
}

func (c *Client) init(ctx context.Context, uploadID, fileName string, totalSize int64, fp, clientID string, conversionRequest map[string]interface{}) (*initResponse, error) {
	body := map[string]interface{}{
		"uploadId":          uploadID,
		"fileName":          fileName,
		"fileSize":          totalSize,
		"fileMd5":           fp,
		"conversionRequest": conversionRequest,
	}
	raw, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload/chunked/init", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if clientID != "" {
		req.Header.Set("X-Client-Id", clientID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("init failed: status %d", resp.StatusCode)
	}

	var out initResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) status(ctx context.Context, uploadID, clientID string) (*statusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/upload/chunked/status/"+uploadID, nil)
	if err != nil {
		return nil, err
	}
	if clientID != "" {
		req.Header.Set("X-Client-Id", clientID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		// a brand new session has no status yet: treat as empty.
		return &statusResponse{}, nil
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) complete(ctx context.Context, uploadID, clientID string) (taskID, taskName string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload/chunked/complete/"+uploadID, nil)
	if err != nil {
		return "", "", err
	}
	if clientID != "" {
		req.Header.Set("X-Client-Id", clientID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("complete failed: status %d", resp.StatusCode)
	}

	var out struct {
		TaskID   string `json:"taskId"`
		TaskName string `json:"taskName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", err
	}
	return out.TaskID, out.TaskName, nil
}

// GetStatus queries a task's conversion status.
func (c *Client) GetStatus(ctx context.Context, taskID, clientID string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/conversion/status/"+taskID, nil)
	if err != nil {
		return nil, err
	}
	if clientID != "" {
		req.Header.Set("X-Client-Id", clientID)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status failed: status %d", resp.StatusCode)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Cancel requests cancellation of an in-flight task.
func (c *Client) Cancel(ctx context.Context, taskID, clientID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/conversion/cancel/"+taskID, nil)
	if err != nil {
		return err
	}
	if clientID != "" {
		req.Header.Set("X-Client-Id", clientID)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("cancel failed: status %d", resp.StatusCode)
	}
	return nil
}

// Download streams a completed task's output file to destPath.
func (c *Client) Download(ctx context.Context, taskID, clientID, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/conversion/download/"+taskID, nil)
	if err != nil {
		return err
	}
	if clientID != "" {
		req.Header.Set("X-Client-Id", clientID)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

func filepathBase(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
