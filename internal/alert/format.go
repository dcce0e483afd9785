package alert

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Session:* %s", event.Session)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:* %s", orDash(event.Severity))},
	}
	if event.Gate != "" {
		fields = append(fields,
			map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Gate:* %s", event.Gate)},
			map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reasons:* %s", orDash(strings.Join(event.Reasons, ", ")))},
		)
	} else {
		fields = append(fields,
			map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Detail:* %s", orDash(event.Detail))},
		)
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("affectgate: %s", event.Type),
				},
			},
			map[string]any{
				"type":   "section",
				"fields": fields,
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	summary := fmt.Sprintf("affectgate %s: session %s", event.Type, event.Session)
	if event.Gate != "" {
		summary += " at " + event.Gate
	}
	payload := map[string]any{
		"event_action": "trigger",
		"dedup_key":    DedupKey(event),
		"payload": map[string]any{
			"summary":  summary,
			"severity": pagerDutySeverity(event),
			"source":   "affectgate",
			"custom_details": map[string]any{
				"session": event.Session,
				"turn_id": event.TurnID,
				"gate":    event.Gate,
				"reasons": event.Reasons,
				"rules":   event.Rules,
				"detail":  event.Detail,
			},
		},
	}
	return json.Marshal(payload)
}

func pagerDutySeverity(event Event) string {
	if event.Type == EventLockdown {
		return "critical"
	}
	switch event.Severity {
	case "red":
		return "critical"
	case "orange":
		return "error"
	case "yellow":
		return "warning"
	default:
		return "info"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
