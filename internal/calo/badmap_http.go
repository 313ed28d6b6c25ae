package calo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/helios-array/quality.monitor/internal/httputil"
)

// HTTPBadChannelSource fetches the bad-channel list from the calibration
// service's JSON endpoint. The endpoint answers GET with
//
//	{"bad_channels": [2001, 2002, ...]}
//
// listing flagged channel ids.
type HTTPBadChannelSource struct {
	URL string
	// Client defaults to http.DefaultClient when nil.
	Client httputil.Doer
}

// FetchBadChannels implements BadChannelSource.
func (s *HTTPBadChannelSource) FetchBadChannels(ctx context.Context) (*BadChannelMap, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("bad-channel request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bad-channel fetch from %s: %w", s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad-channel fetch from %s: unexpected status %d", s.URL, resp.StatusCode)
	}

	var payload struct {
		BadChannels []uint16 `json:"bad_channels"`
	}
	// 1MB cap: the full detector list is far smaller; anything bigger is noise.
	dec := json.NewDecoder(io.LimitReader(resp.Body, 1<<20))
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("bad-channel payload decode: %w", err)
	}

	return NewBadChannelMap(payload.BadChannels), nil
}
