package calo

import (
	"context"
	"errors"
	"testing"

	"github.com/helios-array/quality.monitor/internal/httputil"
)

func TestBadChannelMap(t *testing.T) {
	m := NewBadChannelMap([]uint16{2000, 5000, 100}) // 100 is out of range, ignored

	if m.IsGood(2000) {
		t.Error("2000 is flagged, IsGood should be false")
	}
	if !m.IsGood(2001) {
		t.Error("2001 is not flagged, IsGood should be true")
	}
	if m.IsGood(100) {
		t.Error("out-of-range channels are never good")
	}
	if m.IsGood(MaxChannelID + 1) {
		t.Error("out-of-range channels are never good")
	}
	if got := m.BadCount(); got != 2 {
		t.Errorf("BadCount = %d, want 2", got)
	}

	// A nil map treats every populated channel as good.
	var nilMap *BadChannelMap
	if !nilMap.IsGood(2000) {
		t.Error("nil map should report populated channels good")
	}
}

func TestSummarizeBadChannels(t *testing.T) {
	// One flagged channel in module 0, two in module 2.
	m := NewBadChannelMap([]uint16{2000, 8000, 8001})
	s := SummarizeBadChannels(m)

	if !s.Loaded {
		t.Error("summary should be marked loaded")
	}
	want := [NModules]int{1, 0, 2, 0}
	if s.PerModule != want {
		t.Errorf("PerModule = %v, want %v", s.PerModule, want)
	}
}

func TestHTTPBadChannelSource(t *testing.T) {
	client := httputil.NewMockClient().
		Queue(200, `{"bad_channels": [2000, 2001, 9000]}`)

	src := &HTTPBadChannelSource{URL: "http://calib.local/badmap", Client: client}
	m, err := src.FetchBadChannels(context.Background())
	if err != nil {
		t.Fatalf("FetchBadChannels: %v", err)
	}
	if m.BadCount() != 3 {
		t.Errorf("BadCount = %d, want 3", m.BadCount())
	}
	if m.IsGood(2001) {
		t.Error("2001 should be flagged")
	}
	reqs := client.Requests()
	if len(reqs) != 1 {
		t.Fatalf("request count = %d, want 1", len(reqs))
	}
	if got := reqs[0].Header.Get("Accept"); got != "application/json" {
		t.Errorf("Accept header = %q, want application/json", got)
	}
}

func TestHTTPBadChannelSourceErrors(t *testing.T) {
	src := &HTTPBadChannelSource{
		URL:    "http://calib.local/badmap",
		Client: httputil.NewMockClient().Queue(503, "busy"),
	}
	if _, err := src.FetchBadChannels(context.Background()); err == nil {
		t.Error("expected error on 503 response")
	}

	src.Client = httputil.NewMockClient().Queue(200, `{"bad_channels": "nope"}`)
	if _, err := src.FetchBadChannels(context.Background()); err == nil {
		t.Error("expected error on malformed payload")
	}

	src.Client = httputil.NewMockClient().QueueError(errors.New("connection refused"))
	if _, err := src.FetchBadChannels(context.Background()); err == nil {
		t.Error("expected transport error to propagate")
	}
}
