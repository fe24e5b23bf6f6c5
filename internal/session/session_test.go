package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func enabledConfig() Config {
	return Config{Enabled: true, SessionTimeout: 900, MaxDelay: 3600, ImmediateCompletion: true}
}

func TestShouldDelayUpdate_Disabled(t *testing.T) {
	d := ShouldDelayUpdate(Config{Enabled: false}, Input{})
	require.Equal(t, ActionSyncImmediately, d.Action)
	require.Equal(t, ReasonDisabled, d.Reason)
}

func TestShouldDelayUpdate_ImmediateCompletion(t *testing.T) {
	d := ShouldDelayUpdate(enabledConfig(), Input{
		HasPreviousProgress:  true,
		IsCompletionDetected: true,
	})
	require.Equal(t, ActionSyncImmediately, d.Action)
	require.Equal(t, ReasonBookCompletion, d.Reason)
}

func TestShouldDelayUpdate_Bootstrap(t *testing.T) {
	d := ShouldDelayUpdate(enabledConfig(), Input{HasPreviousProgress: false})
	require.Equal(t, ActionSyncImmediately, d.Action)
	require.Equal(t, ReasonBootstrap, d.Reason)
}

func TestShouldDelayUpdate_MaxDelayExceeded(t *testing.T) {
	d := ShouldDelayUpdate(enabledConfig(), Input{
		HasPreviousProgress: true,
		TimeSinceLastSync:   4000 * time.Second,
		LastPushedProgress:  20,
		CurrentProgress:     21,
	})
	require.Equal(t, ActionSyncImmediately, d.Action)
	require.Equal(t, ReasonMaxDelayExceeded, d.Reason)
}

func TestShouldDelayUpdate_SignificantDelta(t *testing.T) {
	d := ShouldDelayUpdate(enabledConfig(), Input{
		HasPreviousProgress:  true,
		TimeSinceLastSync:    60 * time.Second,
		LastPushedProgress:   20,
		CurrentProgress:      30,
		SignificantThreshold: 5,
	})
	require.Equal(t, ActionSyncImmediately, d.Action)
	require.Equal(t, ReasonSignificantChange, d.Reason)
}

func TestShouldDelayUpdate_MilestoneCrossingForcesSyncEvenBelowDelta(t *testing.T) {
	d := ShouldDelayUpdate(enabledConfig(), Input{
		HasPreviousProgress:  true,
		TimeSinceLastSync:    60 * time.Second,
		LastPushedProgress:   49,
		CurrentProgress:      50.5,
		SignificantThreshold: 10, // delta 1.5 is below threshold...
	})
	require.Equal(t, ActionSyncImmediately, d.Action, "crossing the 50%% milestone must force sync regardless of delta size")
	require.Equal(t, ReasonSignificantChange, d.Reason)
}

func TestShouldDelayUpdate_DelaysSmallInSessionChange(t *testing.T) {
	d := ShouldDelayUpdate(enabledConfig(), Input{
		HasPreviousProgress:  true,
		TimeSinceLastSync:    60 * time.Second,
		LastPushedProgress:   20,
		CurrentProgress:      22,
		SignificantThreshold: 10,
	})
	require.Equal(t, ActionDelayUpdate, d.Action)
	require.Equal(t, ReasonActiveSession, d.Reason)
	require.Equal(t, 900, d.SessionTimeout)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, enabledConfig().Validate())

	require.Error(t, Config{SessionTimeout: 59, MaxDelay: 3600}.Validate(), "B2: 59 must be rejected")
	require.NoError(t, Config{SessionTimeout: 60, MaxDelay: 3600}.Validate(), "B2: 60 must be accepted")
	require.Error(t, Config{SessionTimeout: 3600, MaxDelay: 3600}.Validate(), "session_timeout >= max_delay must be rejected")
}

func TestCrossesMilestone_SymmetricInDirection(t *testing.T) {
	require.True(t, crossesMilestone(9, 11))
	require.True(t, crossesMilestone(11, 9))
	require.False(t, crossesMilestone(11, 14))
}
