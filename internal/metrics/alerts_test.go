package metrics

import (
	"testing"

	"github.com/null-engine/nullengine/internal/domain"
)

var defaultThresholds = Thresholds{MinTicks: 10, SuccessRateFloor: 0.9, GeneratingThreshold: 5}

func codes(alerts []domain.Alert) []string {
	out := make([]string, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Code)
	}
	return out
}

func TestDeriveAlerts_Healthy(t *testing.T) {
	alerts := DeriveAlerts(Snapshot{
		Loops:         []domain.LoopMetric{{Name: "auto-genesis", Status: domain.LoopRunning}},
		Runners:       []domain.RunnerMetric{{WorldID: "w-1", TicksTotal: 100, SuccessRate: 0.99}},
		WorldCounts:   map[domain.WorldStatus]int{domain.WorldRunning: 1},
		ActiveRunners: 1,
	}, defaultThresholds)
	if len(alerts) != 0 {
		t.Errorf("expected no alerts, got %v", codes(alerts))
	}
}

func TestDeriveAlerts_LoopStates(t *testing.T) {
	msg := "boom"
	alerts := DeriveAlerts(Snapshot{
		Loops: []domain.LoopMetric{
			{Name: "a", Status: domain.LoopError, LastError: &msg},
			{Name: "b", Status: domain.LoopExited},
			{Name: "c", Status: domain.LoopCancelled},
		},
	}, defaultThresholds)

	if len(alerts) != 2 {
		t.Fatalf("alerts = %v, want loop_error and loop_exited", codes(alerts))
	}
	if alerts[0].Code != "loop_error" || alerts[0].Severity != domain.SeverityCritical {
		t.Errorf("first alert = %+v", alerts[0])
	}
	if alerts[0].Context["last_error"] != "boom" {
		t.Errorf("context = %v", alerts[0].Context)
	}
	if alerts[1].Code != "loop_exited" || alerts[1].Severity != domain.SeverityWarning {
		t.Errorf("second alert = %+v", alerts[1])
	}
}

func TestDeriveAlerts_RunnerDegradedThresholds(t *testing.T) {
	tests := []struct {
		name  string
		ticks int
		rate  float64
		want  bool
	}{
		{"below min ticks", 9, 0.1, false},
		{"at min ticks and below floor", 10, 0.8, true},
		{"exactly at floor", 20, 0.9, false},
		{"healthy", 50, 1.0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := DeriveAlerts(Snapshot{
				Runners: []domain.RunnerMetric{{WorldID: "w", TicksTotal: tt.ticks, SuccessRate: tt.rate}},
			}, defaultThresholds)
			got := len(alerts) == 1 && alerts[0].Code == "runner_degraded"
			if got != tt.want {
				t.Errorf("degraded = %v, want %v (alerts %v)", got, tt.want, codes(alerts))
			}
		})
	}
}

func TestDeriveAlerts_WorldLevel(t *testing.T) {
	alerts := DeriveAlerts(Snapshot{
		WorldCounts: map[domain.WorldStatus]int{
			domain.WorldRunning:    2,
			domain.WorldGenerating: 5,
		},
		ActiveRunners: 0,
	}, defaultThresholds)

	got := codes(alerts)
	if len(got) != 2 || got[0] != "runner_mismatch" || got[1] != "genesis_backlog" {
		t.Errorf("alerts = %v, want [runner_mismatch genesis_backlog]", got)
	}

	alerts = DeriveAlerts(Snapshot{
		WorldCounts:   map[domain.WorldStatus]int{domain.WorldRunning: 2, domain.WorldGenerating: 4},
		ActiveRunners: 1,
	}, defaultThresholds)
	if len(alerts) != 0 {
		t.Errorf("expected no alerts, got %v", codes(alerts))
	}
}
