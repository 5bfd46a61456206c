package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/auditsnap/internal/audit"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cases := []struct {
		name    string
		evt     Event
		wantErr bool
	}{
		{"ok", Event{ReportID: "r", TS: now, Stage: StageCompleted}, false},
		{"missing id", Event{TS: now, Stage: StageCompleted}, true},
		{"missing ts", Event{ReportID: "r", Stage: StageCompleted}, true},
		{"bad stage", Event{ReportID: "r", TS: now, Stage: "NOPE"}, true},
		{"negative dur", Event{ReportID: "r", TS: now, Stage: StageFailed, Dur: -time.Second}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.evt.Validate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestStageForAndHost(t *testing.T) {
	t.Parallel()

	require.Equal(t, StageProcessing, StageFor(audit.StatusProcessing))
	require.Equal(t, StageCompleted, StageFor(audit.StatusCompleted))
	require.Equal(t, StageFailed, StageFor(audit.StatusFailed))
	require.Equal(t, StageSubmitted, StageFor(audit.StatusPending))
	require.Equal(t, "example.com", HostOf("https://Example.com/a"))
	require.Equal(t, "unknown", HostOf("::bad"))
}
