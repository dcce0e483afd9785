package alert

// Event types.
const (
	EventLockdown = "lockdown"
	EventVeto     = "veto"
)

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["lockdown", "veto", "veto:red"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp string   `json:"timestamp"`
	Type      string   `json:"type"`
	Session   string   `json:"session"`
	TurnID    string   `json:"turn_id,omitempty"`
	Gate      string   `json:"gate,omitempty"`
	Severity  string   `json:"severity,omitempty"`
	Reasons   []string `json:"reasons,omitempty"`
	Rules     []string `json:"rules,omitempty"`
	Detail    string   `json:"detail,omitempty"`
}
