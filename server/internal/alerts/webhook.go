package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const webhookTimeout = 10 * time.Second

// Teams card colours by severity, plus the colour of a resolved card.
const (
	colorCritical = "FF4F6A"
	colorWarning  = "FFAB40"
	colorInfo     = "00D4FF"
	colorResolved = "2EB67D"
)

// deliver posts a to every configured webhook. Failures are logged and
// never reach the caller.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			slog.Debug("alerts: webhook url unset, skipping", "type", wh.Type, "url_env", wh.URLEnv)
			continue
		}
		body, err := payload(wh.Type, a)
		if err != nil {
			slog.Warn("alerts: skipping webhook", "type", wh.Type, "err", err)
			continue
		}
		if err := e.post(url, body); err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName, "source", a.SourceID, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

// payload renders a as the JSON body expected by the given webhook type.
func payload(typ string, a *Alert) ([]byte, error) {
	switch typ {
	case "slack":
		return json.Marshal(map[string]string{"text": slackText(a)})
	case "teams":
		return json.Marshal(teamsCard(a))
	case "http":
		return json.Marshal(map[string]interface{}{
			"event": "alert." + a.State,
			"alert": a,
		})
	default:
		return nil, fmt.Errorf("unknown webhook type %q", typ)
	}
}

func slackText(a *Alert) string {
	if a.State == StateResolved {
		return fmt.Sprintf("*[RESOLVED]* %s on %s (run %s)", a.RuleName, a.SourceID, a.RunID)
	}
	return fmt.Sprintf("*%s* %s (run %s)", severityLabel(a.Severity), a.Message, a.RunID)
}

// teamsCard builds a legacy Office 365 connector MessageCard with the
// alert's source, run and triggering value as facts.
func teamsCard(a *Alert) map[string]interface{} {
	color := severityColor(a.Severity)
	if a.State == StateResolved {
		color = colorResolved
	}
	facts := []map[string]string{
		{"name": "Source", "value": a.SourceID},
		{"name": "Run", "value": a.RunID},
		{"name": "Severity", "value": a.Severity},
		{"name": "Value", "value": fmt.Sprintf("%g", a.Value)},
		{"name": "Fired at", "value": a.FiredAt.UTC().Format(time.RFC3339)},
	}
	if a.ResolvedAt != nil {
		facts = append(facts, map[string]string{
			"name": "Resolved at", "value": a.ResolvedAt.UTC().Format(time.RFC3339),
		})
	}
	return map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": color,
		"summary":    a.RuleName,
		"title":      fmt.Sprintf("HVAC diagnostics: %s %s on %s", a.RuleName, a.State, a.SourceID),
		"text":       a.Message,
		"sections":   []map[string]interface{}{{"facts": facts}},
	}
}

func (e *Engine) post(url string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return colorCritical
	case "warning":
		return colorWarning
	default:
		return colorInfo
	}
}
