package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hvacdiag/hvacdiag/pkg/diagnostic"
	"github.com/hvacdiag/hvacdiag/pkg/types"
	"github.com/hvacdiag/hvacdiag/server/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	SourceID   string     `json:"source_id"`
	RunID      string     `json:"run_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

// Engine evaluates alert rules against incoming runs and delivers webhook
// notifications when rules fire or resolve. Rule state is tracked per
// rule and source.
//
// Engine is safe for concurrent use.
type Engine struct {
	webhooks []config.WebhookConfig
	client   *http.Client
	now      func() time.Time

	mu       sync.Mutex
	rules    []config.AlertRule
	active   map[string]*Alert    // key: "ruleName:sourceID"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	wg       sync.WaitGroup       // in-flight webhook deliveries
}

// New creates an Engine from the server alert configuration.
// An Engine with empty rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	return &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// SetRules replaces the rule set. Firing alerts whose rule no longer exists
// are resolved silently.
func (e *Engine) SetRules(rules []config.AlertRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules

	keep := make(map[string]bool, len(rules))
	for _, r := range rules {
		keep[r.Name] = true
	}
	now := e.now()
	for key, a := range e.active {
		if keep[a.RuleName] {
			continue
		}
		resolved := now
		a.State = StateResolved
		a.ResolvedAt = &resolved
		e.remember(a)
		delete(e.active, key)
		delete(e.lastFire, key)
	}
}

// Evaluate tests all configured rules against run.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(run types.Run) {
	e.mu.Lock()
	rules := e.rules
	e.mu.Unlock()
	if len(rules) == 0 {
		return
	}

	sum := diagnostic.Summarize(run.Report)
	now := e.now()
	for _, rule := range rules {
		key := rule.Name + ":" + run.SourceID
		fires, value := evalCondition(rule.Condition, run, sum)

		e.mu.Lock()
		if fires {
			e.fire(rule, key, run, value, now)
		} else {
			e.resolve(rule, key, now)
		}
		e.mu.Unlock()
	}
}

// fire records a firing alert unless the key is cooling down. Caller holds mu.
func (e *Engine) fire(rule config.AlertRule, key string, run types.Run, value float64, now time.Time) {
	cooldown := rule.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if last, ok := e.lastFire[key]; ok && now.Sub(last) <= cooldown {
		return
	}
	sev := rule.Severity
	if sev == "" {
		sev = "warning"
	}
	a := &Alert{
		ID:       uuid.NewString(),
		RuleName: rule.Name,
		SourceID: run.SourceID,
		RunID:    run.ID,
		Severity: sev,
		Value:    value,
		Message: fmt.Sprintf("[%s] %s fired on %s: %s (value %g)",
			sev, rule.Name, run.SourceID, rule.Condition, value),
		FiredAt: now,
		State:   StateFiring,
	}
	e.active[key] = a
	e.lastFire[key] = now

	slog.Warn("alert fired", "rule", rule.Name, "source", run.SourceID, "value", value, "severity", sev)
	e.deliverAsync(*a)
}

// resolve closes a firing alert for key, if any. Caller holds mu.
func (e *Engine) resolve(rule config.AlertRule, key string, now time.Time) {
	a, ok := e.active[key]
	if !ok {
		return
	}
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	delete(e.active, key)
	e.remember(a)

	slog.Info("alert resolved", "rule", rule.Name, "source", a.SourceID)
	e.deliverAsync(*a)
}

// remember appends a resolved alert to the bounded history. Caller holds mu.
func (e *Engine) remember(a *Alert) {
	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
}

func (e *Engine) deliverAsync(a Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.deliver(&a)
	}()
}

// Wait blocks until in-flight webhook deliveries finish.
func (e *Engine) Wait() { e.wg.Wait() }

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))
	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// FiringCount returns the number of alerts currently firing.
func (e *Engine) FiringCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}
