package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goosewin/qforia/internal/core"
)

var fixedNow = time.Date(2026, 1, 26, 12, 0, 0, 0, time.UTC)

func successEvent() Event {
	declared := 12
	return Event{
		Session:  "alpha",
		RunID:    "run-1",
		Query:    "best running shoes",
		Mode:     core.ModeSimple,
		Backend:  "gemini",
		Model:    "gemini-2.5-flash",
		Status:   core.StatusSuccess,
		Declared: &declared,
		Actual:   10,
		Duration: 65 * time.Second,
	}
}

func TestDetectWebhookType(t *testing.T) {
	cases := []struct {
		name string
		url  string
		want WebhookType
	}{
		{name: "discord", url: "https://discord.com/api/webhooks/123", want: WebhookDiscord},
		{name: "discordapp", url: "https://discordapp.com/api/webhooks/123", want: WebhookDiscord},
		{name: "slack", url: "https://hooks.slack.com/services/abc", want: WebhookSlack},
		{name: "generic", url: "https://example.com/webhook", want: WebhookGeneric},
	}

	for _, tc := range cases {
		if got := DetectWebhookType(tc.url); got != tc.want {
			t.Fatalf("%s: expected %s got %s", tc.name, tc.want, got)
		}
	}
}

func TestEventFromRun(t *testing.T) {
	declared := 3
	run := core.RunResult{
		Request: core.FanoutRequest{Query: "q", Mode: core.ModeComplex},
		Status:  core.StatusSuccess,
		Result: &core.FanoutResult{
			Details: &core.GenerationDetails{TargetQueryCount: &declared},
			Queries: []core.ExpandedQuery{{Query: "a"}},
		},
	}
	event := EventFromRun("s", "id", run)
	if event.Actual != 1 || event.Declared == nil || *event.Declared != 3 {
		t.Fatalf("unexpected counts: %+v", event)
	}

	failed := EventFromRun("s", "id", core.RunResult{Status: core.StatusFailed, Err: core.ErrCredentialInvalid})
	if !failed.Failed() || failed.ErrorKind != "credential_invalid" {
		t.Fatalf("unexpected failed event: %+v", failed)
	}
}

func TestBuildPayloadDiscordComplete(t *testing.T) {
	payload, err := BuildPayload(WebhookDiscord, successEvent(), fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	embed := decoded["embeds"].([]interface{})[0].(map[string]interface{})
	if embed["title"].(string) != "✅ Fan-out Complete" {
		t.Fatalf("unexpected title: %v", embed["title"])
	}
	fields := embed["fields"].([]interface{})
	if len(fields) != 5 {
		t.Fatalf("expected 5 fields, got %d", len(fields))
	}
	planned := fields[2].(map[string]interface{})
	if planned["value"].(string) != "12" {
		t.Fatalf("unexpected planned count: %v", planned["value"])
	}
	duration := fields[4].(map[string]interface{})
	if duration["value"].(string) != "1m 5s" {
		t.Fatalf("unexpected duration: %v", duration["value"])
	}
}

func TestBuildPayloadSlackFailed(t *testing.T) {
	event := Event{
		Session:   "beta",
		Query:     "tax rules",
		Mode:      core.ModeComplex,
		Status:    core.StatusFailed,
		ErrorKind: "malformed_json",
		Duration:  400 * time.Millisecond,
	}
	payload, err := BuildPayload(WebhookSlack, event, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	attachment := decoded["attachments"].([]interface{})[0].(map[string]interface{})
	if attachment["color"].(string) != "#ED4245" {
		t.Fatalf("unexpected color: %v", attachment["color"])
	}
	blocks := attachment["blocks"].([]interface{})
	text := blocks[1].(map[string]interface{})["text"].(map[string]interface{})
	if text["text"].(string) != "Fan-out for *tax rules* failed: malformed_json" {
		t.Fatalf("unexpected slack description: %v", text["text"])
	}
	fields := blocks[2].(map[string]interface{})["fields"].([]interface{})
	if len(fields) != 4 {
		t.Fatalf("expected 4 slack fields, got %d", len(fields))
	}
}

func TestBuildPayloadGeneric(t *testing.T) {
	payload, err := BuildPayload(WebhookGeneric, successEvent(), fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	if decoded["event"].(string) != "complete" {
		t.Fatalf("unexpected event: %v", decoded["event"])
	}
	if decoded["declared_count"].(float64) != 12 || decoded["actual_count"].(float64) != 10 {
		t.Fatalf("unexpected counts: %v", decoded)
	}
	want := "Qforia fan-out 'best running shoes' generated 10 queries (planned 12) in 1m 5s"
	if decoded["message"].(string) != want {
		t.Fatalf("unexpected message: %v", decoded["message"])
	}
}

func TestNotifyPostsJSON(t *testing.T) {
	var body []byte
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := Notify(context.Background(), server.URL, successEvent(), time.Second); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if contentType != "application/json" {
		t.Fatalf("unexpected content type %q", contentType)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if decoded["session"].(string) != "alpha" {
		t.Fatalf("unexpected session: %v", decoded["session"])
	}
}

func TestSendWebhookRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	if err := SendWebhook(context.Background(), server.URL, []byte(`{}`), time.Second); err == nil {
		t.Fatalf("expected error for HTTP 502")
	}
	if err := Notify(context.Background(), " ", successEvent(), time.Second); err == nil {
		t.Fatalf("expected error for empty URL")
	}
}
