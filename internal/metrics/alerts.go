package metrics

import (
	"fmt"

	"github.com/null-engine/nullengine/internal/domain"
)

// Thresholds tune alert derivation.
type Thresholds struct {
	MinTicks            int
	SuccessRateFloor    float64
	GeneratingThreshold int
}

// Snapshot is the input to DeriveAlerts.
type Snapshot struct {
	Loops         []domain.LoopMetric
	Runners       []domain.RunnerMetric
	WorldCounts   map[domain.WorldStatus]int
	ActiveRunners int
}

// DeriveAlerts turns a metrics snapshot into operator alerts. Loop alerts come
// first, then runner alerts, then world-level alerts.
func DeriveAlerts(s Snapshot, th Thresholds) []domain.Alert {
	alerts := []domain.Alert{}

	for _, l := range s.Loops {
		switch l.Status {
		case domain.LoopError:
			ctx := map[string]any{"loop": l.Name, "restart_count": l.RestartCount}
			if l.LastError != nil {
				ctx["last_error"] = *l.LastError
			}
			alerts = append(alerts, domain.Alert{
				Code:     "loop_error",
				Severity: domain.SeverityCritical,
				Message:  fmt.Sprintf("background job %s failed and is restarting", l.Name),
				Context:  ctx,
			})
		case domain.LoopExited:
			alerts = append(alerts, domain.Alert{
				Code:     "loop_exited",
				Severity: domain.SeverityWarning,
				Message:  fmt.Sprintf("background job %s exited and is restarting", l.Name),
				Context:  map[string]any{"loop": l.Name, "restart_count": l.RestartCount},
			})
		}
	}

	for _, r := range s.Runners {
		if r.TicksTotal >= th.MinTicks && r.SuccessRate < th.SuccessRateFloor {
			alerts = append(alerts, domain.Alert{
				Code:     "runner_degraded",
				Severity: domain.SeverityWarning,
				Message:  fmt.Sprintf("world %s tick success rate %.2f below %.2f", r.WorldID, r.SuccessRate, th.SuccessRateFloor),
				Context: map[string]any{
					"world_id":      r.WorldID,
					"success_rate":  r.SuccessRate,
					"ticks_total":   r.TicksTotal,
					"tick_failures": r.TickFailures,
				},
			})
		}
	}

	running := s.WorldCounts[domain.WorldRunning]
	if running > 0 && s.ActiveRunners == 0 {
		alerts = append(alerts, domain.Alert{
			Code:     "runner_mismatch",
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("%d worlds marked running but no runner is active", running),
			Context:  map[string]any{"running_worlds": running, "active_runners": s.ActiveRunners},
		})
	}

	generating := s.WorldCounts[domain.WorldGenerating]
	if th.GeneratingThreshold > 0 && generating >= th.GeneratingThreshold {
		alerts = append(alerts, domain.Alert{
			Code:     "genesis_backlog",
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("%d worlds stuck in generation", generating),
			Context:  map[string]any{"generating_worlds": generating, "threshold": th.GeneratingThreshold},
		})
	}

	return alerts
}
