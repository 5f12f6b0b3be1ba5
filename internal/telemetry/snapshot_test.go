package telemetry

import "testing"

func TestMerge(t *testing.T) {
	tests := []struct {
		name       string
		start      Snapshot
		payload    string
		wantMerged bool
		want       Snapshot
	}{
		{
			name:       "full report",
			payload:    `{"print":{"bed_temper":44.4,"bed_target_temper":60,"mc_percent":85,"gcode_state":"RUNNING"}}`,
			wantMerged: true,
			want:       Snapshot{CurrentTemp: 44, TargetTemp: 60, Percent: 85, Status: StatusRunning},
		},
		{
			name:       "sparse report keeps other fields",
			start:      Snapshot{CurrentTemp: 50, TargetTemp: 60, Percent: 80, Status: StatusRunning},
			payload:    `{"print":{"mc_percent":81}}`,
			wantMerged: true,
			want:       Snapshot{CurrentTemp: 50, TargetTemp: 60, Percent: 81, Status: StatusRunning},
		},
		{
			name:       "temperature rounds half up",
			payload:    `{"print":{"bed_temper":44.5}}`,
			wantMerged: true,
			want:       Snapshot{CurrentTemp: 45},
		},
		{
			name:       "zero values are merged",
			start:      Snapshot{CurrentTemp: 50, Percent: 99},
			payload:    `{"print":{"bed_temper":0,"mc_percent":0}}`,
			wantMerged: true,
			want:       Snapshot{},
		},
		{
			name:       "unknown status kept raw",
			payload:    `{"print":{"gcode_state":"pause"}}`,
			wantMerged: true,
			want:       Snapshot{Status: JobStatus("PAUSE")},
		},
		{
			name:       "percent clamped",
			payload:    `{"print":{"mc_percent":140}}`,
			wantMerged: true,
			want:       Snapshot{Percent: 100},
		},
		{
			name:    "empty status ignored",
			start:   Snapshot{Status: StatusFinish},
			payload: `{"print":{"gcode_state":""}}`,
			want:    Snapshot{Status: StatusFinish},
		},
		{
			name:    "malformed json",
			start:   Snapshot{Percent: 10},
			payload: `{"print":`,
			want:    Snapshot{Percent: 10},
		},
		{
			name:    "no print object",
			payload: `{"info":{"command":"get_version"}}`,
		},
		{
			name:    "print object without known fields",
			payload: `{"print":{"command":"push_status","wifi_signal":"-40dBm"}}`,
		},
		{
			name:    "wrong field type",
			start:   Snapshot{CurrentTemp: 30},
			payload: `{"print":{"bed_temper":"hot"}}`,
			want:    Snapshot{CurrentTemp: 30},
		},
		{
			name:       "mistyped field skipped, valid fields merged",
			start:      Snapshot{Percent: 90, Status: StatusRunning},
			payload:    `{"print":{"gcode_state":"FINISH","bed_temper":40,"mc_percent":"100"}}`,
			wantMerged: true,
			want:       Snapshot{CurrentTemp: 40, Percent: 90, Status: StatusFinish},
		},
		{
			name:    "null field ignored",
			start:   Snapshot{CurrentTemp: 30},
			payload: `{"print":{"bed_temper":null}}`,
			want:    Snapshot{CurrentTemp: 30},
		},
		{
			name:    "numeric status ignored",
			start:   Snapshot{Status: StatusRunning},
			payload: `{"print":{"gcode_state":3}}`,
			want:    Snapshot{Status: StatusRunning},
		},
		{
			name:       "fractional percent kept",
			payload:    `{"print":{"mc_percent":80.4}}`,
			wantMerged: true,
			want:       Snapshot{Percent: 80.4},
		},
		{
			name:    "print is not an object",
			payload: `{"print":"busy"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := tt.start
			got := Merge(&snap, []byte(tt.payload))
			if got != tt.wantMerged {
				t.Errorf("Merge() = %v, want %v", got, tt.wantMerged)
			}
			if snap != tt.want {
				t.Errorf("snapshot = %+v, want %+v", snap, tt.want)
			}
		})
	}
}

func TestSnapshot_WholePercent(t *testing.T) {
	tests := []struct {
		pct  float64
		want int
	}{
		{0, 0},
		{80.4, 80},
		{80.5, 81},
		{100, 100},
	}
	for _, tt := range tests {
		if got := (Snapshot{Percent: tt.pct}).WholePercent(); got != tt.want {
			t.Errorf("WholePercent(%v) = %d, want %d", tt.pct, got, tt.want)
		}
	}
}

func TestJobStatus(t *testing.T) {
	tests := []struct {
		status       JobStatus
		wantTerminal bool
		wantString   string
	}{
		{StatusRunning, false, "RUNNING"},
		{StatusFinish, true, "FINISH"},
		{StatusCompleted, true, "COMPLETED"},
		{StatusIdle, false, "IDLE"},
		{StatusUnknown, false, "UNKNOWN"},
		{JobStatus("FAILED"), false, "FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.wantString, func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.wantTerminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.wantTerminal)
			}
			if got := tt.status.String(); got != tt.wantString {
				t.Errorf("String() = %q, want %q", got, tt.wantString)
			}
		})
	}
}
