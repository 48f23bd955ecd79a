package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vigilcbt/vigil-backend/internal/config"
	"github.com/vigilcbt/vigil-backend/internal/model"
)

func newTestMonitor(t *testing.T, proctoring bool) (*Monitor, *miniredis.Miniredis, *time.Time) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		FlagCooldown: 5 * time.Second,
		NoFaceWindow: 3 * time.Second,
		YawLimit:     0.28,
	}
	svc := NewProctorService(cfg, rdb, zerolog.Nop())
	m := svc.NewMonitor(uuid.New(), 1, proctoring)

	clock := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	return m, mr, &clock
}

func queuedFlags(t *testing.T, mr *miniredis.Miniredis) []flagQueuePayload {
	t.Helper()
	items, err := mr.List(config.WorkerKey.PersistFlagsQueue)
	if err != nil {
		return nil
	}
	flags := make([]flagQueuePayload, 0, len(items))
	for _, item := range items {
		var p flagQueuePayload
		require.NoError(t, json.Unmarshal([]byte(item), &p))
		flags = append(flags, p)
	}
	return flags
}

func TestMonitorNoFaceWindow(t *testing.T) {
	m, mr, clock := newTestMonitor(t, true)
	ctx := context.Background()

	// Frames every 500ms with no face. Nothing fires before the window.
	for i := 0; i < 6; i++ {
		require.Empty(t, m.ObserveFrame(ctx, 0, 0))
		*clock = clock.Add(500 * time.Millisecond)
	}

	// 3s of continuous absence reached: exactly one flag.
	emitted := m.ObserveFrame(ctx, 0, 0)
	require.Equal(t, []model.FlagType{model.FlagNoFaceDetected}, emitted)

	// Continued absence stays quiet while the cooldown runs.
	for i := 0; i < 9; i++ {
		*clock = clock.Add(500 * time.Millisecond)
		require.Empty(t, m.ObserveFrame(ctx, 0, 0))
	}

	// Sustained absence past the cooldown fires again.
	*clock = clock.Add(500 * time.Millisecond)
	require.Equal(t, []model.FlagType{model.FlagNoFaceDetected}, m.ObserveFrame(ctx, 0, 0))

	flags := queuedFlags(t, mr)
	require.Len(t, flags, 2)
	require.Equal(t, string(model.FlagNoFaceDetected), flags[0].Type)
}

func TestMonitorNoFaceResetOnReturn(t *testing.T) {
	m, _, clock := newTestMonitor(t, true)
	ctx := context.Background()

	// 2s of absence, then the face returns: timer resets.
	require.Empty(t, m.ObserveFrame(ctx, 0, 0))
	*clock = clock.Add(2 * time.Second)
	require.Empty(t, m.ObserveFrame(ctx, 1, 0))

	// A fresh 2s absence still fires nothing.
	require.Empty(t, m.ObserveFrame(ctx, 0, 0))
	*clock = clock.Add(2 * time.Second)
	require.Empty(t, m.ObserveFrame(ctx, 0, 0))

	// But the full window does.
	*clock = clock.Add(time.Second)
	require.Equal(t, []model.FlagType{model.FlagNoFaceDetected}, m.ObserveFrame(ctx, 0, 0))
}

func TestMonitorMultipleFacesImmediate(t *testing.T) {
	m, mr, clock := newTestMonitor(t, true)
	ctx := context.Background()

	require.Equal(t, []model.FlagType{model.FlagMultipleFacesDetected}, m.ObserveFrame(ctx, 2, 0))

	// Cooldown gates the repeat.
	*clock = clock.Add(time.Second)
	require.Empty(t, m.ObserveFrame(ctx, 3, 0))

	// Past the cooldown it may fire again.
	*clock = clock.Add(5 * time.Second)
	require.Equal(t, []model.FlagType{model.FlagMultipleFacesDetected}, m.ObserveFrame(ctx, 2, 0))

	require.Len(t, queuedFlags(t, mr), 2)
}

func TestMonitorYaw(t *testing.T) {
	m, _, clock := newTestMonitor(t, true)
	ctx := context.Background()

	require.Empty(t, m.ObserveFrame(ctx, 1, 0.2))
	require.Equal(t, []model.FlagType{model.FlagUserLookingAway}, m.ObserveFrame(ctx, 1, 0.5))

	*clock = clock.Add(6 * time.Second)
	require.Equal(t, []model.FlagType{model.FlagUserLookingAway}, m.ObserveFrame(ctx, 1, -0.5))
}

func TestMonitorCooldownPerType(t *testing.T) {
	m, mr, _ := newTestMonitor(t, true)
	ctx := context.Background()

	// Different types are throttled independently at the same instant.
	_, ok := m.ObserveWatchdog(ctx, WatchdogEvent{Kind: "copy"})
	require.True(t, ok)
	_, ok = m.ObserveWatchdog(ctx, WatchdogEvent{Kind: "paste"})
	require.True(t, ok)
	_, ok = m.ObserveWatchdog(ctx, WatchdogEvent{Kind: "copy"})
	require.False(t, ok)

	require.Len(t, queuedFlags(t, mr), 2)
}

func TestMonitorProctoringDisabled(t *testing.T) {
	m, mr, _ := newTestMonitor(t, false)
	ctx := context.Background()

	require.Empty(t, m.ObserveFrame(ctx, 0, 0))
	require.Empty(t, m.ObserveFrame(ctx, 5, 0))
	_, ok := m.ObserveWebcamFailure(ctx, model.WebcamStatusUnavailable)
	require.False(t, ok)

	// The watchdog is independent of webcam proctoring.
	_, ok = m.ObserveWatchdog(ctx, WatchdogEvent{Kind: "copy"})
	require.True(t, ok)

	require.Len(t, queuedFlags(t, mr), 1)
}

func TestMonitorTeardown(t *testing.T) {
	m, mr, _ := newTestMonitor(t, true)
	ctx := context.Background()

	m.Teardown()

	require.Empty(t, m.ObserveFrame(ctx, 0, 0))
	_, ok := m.ObserveWatchdog(ctx, WatchdogEvent{Kind: "copy"})
	require.False(t, ok)
	_, ok = m.ObserveWebcamFailure(ctx, model.WebcamStatusPermissionDenied)
	require.False(t, ok)

	require.Empty(t, queuedFlags(t, mr))
}

func TestMonitorWebcamFailure(t *testing.T) {
	m, mr, _ := newTestMonitor(t, true)
	ctx := context.Background()

	flag, ok := m.ObserveWebcamFailure(ctx, model.WebcamStatusPermissionDenied)
	require.True(t, ok)
	require.Equal(t, model.FlagWebcamPermissionDenied, flag)

	flags := queuedFlags(t, mr)
	require.Len(t, flags, 1)
	require.Equal(t, string(model.FlagWebcamPermissionDenied), flags[0].Type)
}

func TestClassifyWatchdog(t *testing.T) {
	tests := []struct {
		name    string
		ev      WatchdogEvent
		want    model.FlagType
		flagged bool
	}{
		{"copy event", WatchdogEvent{Kind: "copy"}, model.FlagCopyAttempt, true},
		{"paste event", WatchdogEvent{Kind: "paste"}, model.FlagPasteAttempt, true},
		{"context menu", WatchdogEvent{Kind: "contextmenu"}, model.FlagShortcutAttempt, true},
		{"ctrl+c", WatchdogEvent{Kind: "keydown", Key: "c", Ctrl: true}, model.FlagShortcutAttempt, true},
		{"cmd+v", WatchdogEvent{Kind: "keydown", Key: "V", Meta: true}, model.FlagShortcutAttempt, true},
		{"ctrl+p", WatchdogEvent{Kind: "keydown", Key: "p", Ctrl: true}, model.FlagShortcutAttempt, true},
		{"alt+tab", WatchdogEvent{Kind: "keydown", Key: "Tab", Alt: true}, model.FlagShortcutAttempt, true},
		{"alt+f4", WatchdogEvent{Kind: "keydown", Key: "F4", Alt: true}, model.FlagShortcutAttempt, true},
		{"f12", WatchdogEvent{Kind: "keydown", Key: "F12"}, model.FlagShortcutAttempt, true},
		{"escape", WatchdogEvent{Kind: "keydown", Key: "Escape"}, model.FlagShortcutAttempt, true},
		{"plain letter", WatchdogEvent{Kind: "keydown", Key: "a"}, "", false},
		{"arrow key", WatchdogEvent{Kind: "keydown", Key: "ArrowLeft"}, "", false},
		{"enter", WatchdogEvent{Kind: "keydown", Key: "Enter"}, "", false},
		{"ctrl+z passes", WatchdogEvent{Kind: "keydown", Key: "z", Ctrl: true}, "", false},
		{"home key", WatchdogEvent{Kind: "keydown", Key: "Home"}, model.FlagDisallowedKey, true},
		{"printscreen", WatchdogEvent{Kind: "keydown", Key: "PrintScreen"}, model.FlagDisallowedKey, true},
		{"unknown kind", WatchdogEvent{Kind: "scroll"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, flagged := classifyWatchdog(tt.ev)
			require.Equal(t, tt.flagged, flagged)
			require.Equal(t, tt.want, got)
		})
	}
}
