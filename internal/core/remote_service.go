package core

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/utils"
)

// RemoteBatchService implements BatchService against the control API of
// another batchget instance.
type RemoteBatchService struct {
	BaseURL string
	Token   string
	Client  *http.Client
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRemoteBatchService creates a new remote service instance.
func NewRemoteBatchService(baseURL string, token string) *RemoteBatchService {
	ctx, cancel := context.WithCancel(context.Background())
	return &RemoteBatchService{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 30 * time.Second},
		ctx:     ctx,
		cancel:  cancel,
	}
}

var _ BatchService = (*RemoteBatchService)(nil)

func (s *RemoteBatchService) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+s.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		// Limit error body read to 64KB; a rejected batch carries its result
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(bodyBytes, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(bodyBytes))
		}
		return nil, apiErr
	}

	return resp, nil
}

func (s *RemoteBatchService) post(path string) error {
	resp, err := s.doRequest(s.ctx, http.MethodPost, path, nil)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

func (s *RemoteBatchService) Submit(ctx context.Context, uris []string, dir string) (*types.SubmitResult, error) {
	resp, err := s.doRequest(ctx, http.MethodPost, "/batch", SubmitRequest{URIs: uris, Dir: dir})
	if err != nil {
		if apiErr, ok := err.(*APIError); ok {
			return apiErr.Result, apiErr.asTyped()
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result types.SubmitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *RemoteBatchService) PauseAll() error {
	return s.post("/pause")
}

func (s *RemoteBatchService) ResumeAll() error {
	return s.post("/resume")
}

func (s *RemoteBatchService) Stop() error {
	return s.post("/stop")
}

func (s *RemoteBatchService) Status() (*types.BatchStatus, error) {
	resp, err := s.doRequest(s.ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var st types.BatchStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Shutdown stops the service.
func (s *RemoteBatchService) Shutdown() error {
	s.cancel()
	return nil
}

// StreamSnapshots returns a channel that receives snapshots via SSE. The
// stream reconnects with backoff until the final snapshot arrives, ctx is
// done or cleanup is called.
func (s *RemoteBatchService) StreamSnapshots(ctx context.Context) (<-chan types.Snapshot, func(), error) {
	sctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.ctx.Done():
			cancel()
		case <-sctx.Done():
		}
	}()

	ch := make(chan types.Snapshot, listenerBuffer)
	go s.streamWithReconnect(sctx, ch)

	var once sync.Once
	return ch, func() { once.Do(cancel) }, nil
}

func (s *RemoteBatchService) streamWithReconnect(ctx context.Context, ch chan types.Snapshot) {
	defer close(ch)
	backoff := 1 * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		final, err := s.connectSSE(ctx, ch)
		if final {
			return
		}
		utils.Debug("remote: event stream ended: %v", err)

		// Check context again before sleeping
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

// connectSSE reads one event stream. It reports true once the final
// snapshot of a batch has been delivered.
func (s *RemoteBatchService) connectSSE(ctx context.Context, ch chan types.Snapshot) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/events", nil)
	if err != nil {
		return false, err
	}

	req.Header.Set("Authorization", "Bearer "+s.Token)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Connection", "keep-alive")

	// The stream outlives the client timeout
	client := *s.Client
	client.Timeout = 0
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("failed to connect to event stream: %s", resp.Status)
	}

	reader := bufio.NewReader(resp.Body)
	var event string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return false, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if event != "snapshot" {
				continue
			}
			var snap types.Snapshot
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap); err != nil {
				utils.Debug("remote: bad snapshot event: %v", err)
				continue
			}
			if snap.Final {
				// The final snapshot is never dropped
				select {
				case ch <- snap:
				case <-ctx.Done():
				}
				return true, nil
			}
			// Non-blocking send
			select {
			case ch <- snap:
			default:
			}
		case line == "":
			event = ""
		}
	}
}
