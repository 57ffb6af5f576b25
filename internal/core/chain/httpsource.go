package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Fetched blocks are bounded; a garbage source cannot balloon memory.
const maxBlockBytes = 8 << 20

// HTTPSource polls a block provider speaking the node's ingest contract:
// GET /head returns {"height": n} and GET /blocks/{height} returns the raw
// block JSON (404 until the source has it).
type HTTPSource struct {
	base   string
	client *http.Client
}

func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HTTPSource) Head(ctx context.Context) (uint64, error) {
	body, status, err := s.get(ctx, s.base+"/head")
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("source head: status %d", status)
	}
	var head struct {
		Height uint64 `json:"height"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return 0, fmt.Errorf("source head: %w", err)
	}
	return head.Height, nil
}

func (s *HTTPSource) BlockAt(ctx context.Context, height uint64) ([]byte, bool, error) {
	body, status, err := s.get(ctx, fmt.Sprintf("%s/blocks/%d", s.base, height))
	if err != nil {
		return nil, false, err
	}
	switch status {
	case http.StatusOK:
		return body, true, nil
	case http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("source block %d: status %d", height, status)
	}
}

func (s *HTTPSource) get(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBlockBytes))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}
