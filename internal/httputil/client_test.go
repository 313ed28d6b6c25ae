package httputil

import (
	"errors"
	"io"
	"net/http"
	"testing"
)

func mustGet(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return req
}

func TestMockClientReplaysQueueInOrder(t *testing.T) {
	client := NewMockClient().
		Queue(200, `{"n": 1}`).
		Queue(503, "busy")

	resp, err := client.Do(mustGet(t, "http://calib.local/first"))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("first status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != `{"n": 1}` {
		t.Errorf("first body = %q", body)
	}

	resp, err = client.Do(mustGet(t, "http://calib.local/second"))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != 503 {
		t.Errorf("second status = %d, want 503", resp.StatusCode)
	}
	resp.Body.Close()

	reqs := client.Requests()
	if len(reqs) != 2 {
		t.Fatalf("recorded %d requests, want 2", len(reqs))
	}
	if reqs[0].URL.Path != "/first" || reqs[1].URL.Path != "/second" {
		t.Errorf("recorded order wrong: %s, %s", reqs[0].URL, reqs[1].URL)
	}
}

func TestMockClientQueueError(t *testing.T) {
	wantErr := errors.New("connection refused")
	client := NewMockClient().QueueError(wantErr)

	_, err := client.Do(mustGet(t, "http://calib.local/down"))
	if !errors.Is(err, wantErr) {
		t.Errorf("Do error = %v, want %v", err, wantErr)
	}
}

func TestMockClientExhaustedQueueFails(t *testing.T) {
	client := NewMockClient()
	_, err := client.Do(mustGet(t, "http://calib.local/oops"))
	if err == nil {
		t.Fatal("expected error on empty queue")
	}
	// The request is still recorded so the test can see what leaked.
	if len(client.Requests()) != 1 {
		t.Errorf("recorded %d requests, want 1", len(client.Requests()))
	}
}
