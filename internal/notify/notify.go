// Package notify posts fan-out outcomes to Discord, Slack or generic
// JSON webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goosewin/qforia/internal/core"
)

type WebhookType string

const (
	WebhookDiscord WebhookType = "discord"
	WebhookSlack   WebhookType = "slack"
	WebhookGeneric WebhookType = "generic"
)

const (
	colorSuccess = 5763719
	colorFailure = 15548997
	footerText   = "Qforia"
)

// Event summarizes one finished run.
type Event struct {
	Session   string
	RunID     string
	Query     string
	Mode      core.Mode
	Backend   string
	Model     string
	Status    core.Status
	ErrorKind string
	Declared  *int
	Actual    int
	Duration  time.Duration
}

// EventFromRun builds an Event from a published run.
func EventFromRun(session, runID string, run core.RunResult) Event {
	event := Event{
		Session:   session,
		RunID:     runID,
		Query:     run.Request.Query,
		Mode:      run.Request.Mode,
		Backend:   run.Backend,
		Model:     run.Model,
		Status:    run.Status,
		ErrorKind: core.ErrorKind(run.Err),
		Duration:  run.Duration,
	}
	if run.Result != nil {
		event.Actual = run.Result.ActualCount()
		if declared, ok := run.Result.DeclaredCount(); ok {
			event.Declared = &declared
		}
	}
	return event
}

// Failed reports whether the event describes a failed run.
func (e Event) Failed() bool {
	return e.Status == core.StatusFailed
}

func DetectWebhookType(url string) WebhookType {
	lower := strings.ToLower(url)
	if strings.Contains(lower, "discord.com/api/webhooks") || strings.Contains(lower, "discordapp.com/api/webhooks") {
		return WebhookDiscord
	}
	if strings.Contains(lower, "hooks.slack.com") {
		return WebhookSlack
	}
	return WebhookGeneric
}

// Notify sends the payload for event to url.
func Notify(ctx context.Context, url string, event Event, timeout time.Duration) error {
	if strings.TrimSpace(url) == "" {
		return errors.New("webhook URL is required")
	}
	payload, err := BuildPayload(DetectWebhookType(url), event, time.Now())
	if err != nil {
		return err
	}
	return SendWebhook(ctx, url, payload, timeout)
}

func SendWebhook(ctx context.Context, url string, payload []byte, timeout time.Duration) error {
	if strings.TrimSpace(url) == "" {
		return errors.New("webhook URL is required")
	}
	if len(payload) == 0 {
		return errors.New("payload is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Color       int               `json:"color"`
	Fields      []discordField    `json:"fields"`
	Footer      map[string]string `json:"footer"`
	Timestamp   string            `json:"timestamp"`
}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type genericPayload struct {
	Event     string `json:"event"`
	Status    string `json:"status"`
	Session   string `json:"session"`
	RunID     string `json:"run_id,omitempty"`
	Query     string `json:"query"`
	Mode      string `json:"mode"`
	Backend   string `json:"backend,omitempty"`
	Model     string `json:"model,omitempty"`
	Declared  *int   `json:"declared_count,omitempty"`
	Actual    int    `json:"actual_count"`
	ErrorKind string `json:"error_kind,omitempty"`
	Duration  string `json:"duration"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// BuildPayload renders event for the given webhook flavour.
func BuildPayload(kind WebhookType, event Event, now time.Time) ([]byte, error) {
	timestamp := now.Format(time.RFC3339)
	title := "✅ Fan-out Complete"
	color := colorSuccess
	if event.Failed() {
		title = "❌ Fan-out Failed"
		color = colorFailure
	}
	fields := summaryFields(event)

	switch kind {
	case WebhookDiscord:
		embed := discordEmbed{
			Title:       title,
			Description: description(event, "**"),
			Color:       color,
			Footer:      map[string]string{"text": footerText},
			Timestamp:   timestamp,
		}
		for _, field := range fields {
			embed.Fields = append(embed.Fields, discordField{Name: field[0], Value: field[1], Inline: true})
		}
		return json.Marshal(map[string]interface{}{"embeds": []discordEmbed{embed}})
	case WebhookSlack:
		section := slackBlock{Type: "section"}
		for _, field := range fields {
			section.Fields = append(section.Fields, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%s", field[0], field[1])})
		}
		blocks := []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: title, Emoji: true}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: description(event, "*")}},
			section,
			{Type: "context", Elements: []slackText{{Type: "mrkdwn", Text: footerText + " • " + timestamp}}},
		}
		slackColor := "#57F287"
		if event.Failed() {
			slackColor = "#ED4245"
		}
		return json.Marshal(map[string]interface{}{
			"attachments": []map[string]interface{}{{"color": slackColor, "blocks": blocks}},
		})
	default:
		payload := genericPayload{
			Event:     "complete",
			Status:    string(event.Status),
			Session:   event.Session,
			RunID:     event.RunID,
			Query:     event.Query,
			Mode:      string(event.Mode),
			Backend:   event.Backend,
			Model:     event.Model,
			Declared:  event.Declared,
			Actual:    event.Actual,
			ErrorKind: event.ErrorKind,
			Duration:  formatDuration(event.Duration),
			Timestamp: timestamp,
			Message:   message(event),
		}
		if event.Failed() {
			payload.Event = "failed"
		}
		return json.Marshal(payload)
	}
}

func summaryFields(event Event) [][2]string {
	fields := [][2]string{
		{"Mode", event.Mode.Label()},
		{"Backend", defaultString(strings.TrimSpace(event.Backend+" "+event.Model), "unknown")},
	}
	if event.Failed() {
		fields = append(fields, [2]string{"Reason", defaultString(event.ErrorKind, "unknown")})
	} else {
		fields = append(fields,
			[2]string{"Planned", declaredString(event.Declared)},
			[2]string{"Generated", strconv.Itoa(event.Actual)},
		)
	}
	return append(fields, [2]string{"Duration", formatDuration(event.Duration)})
}

func description(event Event, bold string) string {
	query := bold + event.Query + bold
	if event.Failed() {
		return fmt.Sprintf("Fan-out for %s failed: %s", query, defaultString(event.ErrorKind, "unknown"))
	}
	if event.Actual == 0 {
		return fmt.Sprintf("Fan-out for %s produced no queries.", query)
	}
	return fmt.Sprintf("Fan-out for %s produced %d queries.", query, event.Actual)
}

func message(event Event) string {
	if event.Failed() {
		return fmt.Sprintf("Qforia fan-out '%s' failed (%s)", event.Query, defaultString(event.ErrorKind, "unknown"))
	}
	return fmt.Sprintf("Qforia fan-out '%s' generated %d queries (planned %s) in %s",
		event.Query, event.Actual, declaredString(event.Declared), formatDuration(event.Duration))
}

func declaredString(declared *int) string {
	if declared == nil {
		return "not provided"
	}
	return strconv.Itoa(*declared)
}

func formatDuration(duration time.Duration) string {
	if duration <= 0 {
		return "unknown"
	}
	if duration < time.Second {
		return fmt.Sprintf("%dms", duration.Milliseconds())
	}
	total := int(duration.Seconds())
	mins := total / 60
	secs := total % 60
	if mins > 0 {
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}

func defaultString(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
