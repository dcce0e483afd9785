package alert

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/affectgate/internal/gate"
)

// Dispatcher fans out alert events to matching webhook configurations.
// All methods are safe on a nil Dispatcher.
type Dispatcher struct {
	configs []Config
	logger  *zap.Logger
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty.
func NewDispatcher(configs []Config, logger *zap.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{configs: configs, logger: logger, now: time.Now}
}

// Dispatch sends the event to all webhooks whose Events list matches.
// Sends run in the background; Wait blocks until they finish.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if event.Timestamp == "" {
		event.Timestamp = d.now().UTC().Format(time.RFC3339Nano)
	}
	ctx = context.WithoutCancel(ctx)
	for _, cfg := range d.configs {
		if !matches(cfg.Events, event) {
			continue
		}
		d.wg.Add(1)
		go func(cfg Config) {
			defer d.wg.Done()
			if err := Send(ctx, cfg, event); err != nil {
				d.logger.Warn("alert delivery failed",
					zap.String("type", event.Type),
					zap.String("session", event.Session),
					zap.String("url", cfg.URL),
					zap.Error(err),
				)
			}
		}(cfg)
	}
}

// Lockdown reports a broken session chain. It satisfies chain.Lockdown.
func (d *Dispatcher) Lockdown(ctx context.Context, session, reason string) error {
	d.Dispatch(ctx, Event{
		Type:     EventLockdown,
		Session:  session,
		Severity: string(gate.SeverityRed),
		Detail:   reason,
	})
	return nil
}

// Veto reports a failed gate verdict. Passing verdicts are ignored.
func (d *Dispatcher) Veto(ctx context.Context, session, turnID string, v gate.Verdict) {
	if v.Passed {
		return
	}
	d.Dispatch(ctx, Event{
		Type:     EventVeto,
		Session:  session,
		TurnID:   turnID,
		Gate:     v.Gate,
		Severity: string(v.Severity),
		Reasons:  v.VetoReasons,
		Rules:    v.RuleViolations,
	})
}

// Wait blocks until all in-flight sends have finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// matches accepts the bare type or "type:severity".
func matches(events []string, event Event) bool {
	for _, e := range events {
		if e == event.Type {
			return true
		}
		if event.Severity != "" && e == event.Type+":"+event.Severity {
			return true
		}
	}
	return false
}
