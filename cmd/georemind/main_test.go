package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georemind/internal/app/coordinator"
	"georemind/internal/shared/config"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// isolateEnv points config resolution at an empty temp dir so the host
// config file never leaks into a test.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("GEOREMIND_CONFIG", filepath.Join(dir, "config.yaml"))
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDistanceCommand(t *testing.T) {
	out, err := execute(t, "distance", "0", "0", "0", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "111.19")

	out, err = execute(t, "distance", "19.0584", "72.8842", "19.0585", "72.8842", "--radius-km", "0.05")
	require.NoError(t, err)
	assert.Contains(t, out, "inside")
}

func TestDistanceCommandRejectsBadInput(t *testing.T) {
	_, err := execute(t, "distance", "0", "0", "north", "1")
	assert.ErrorContains(t, err, "not a number")

	_, err = execute(t, "distance", "91", "0", "0", "1")
	assert.ErrorContains(t, err, "out of range")
}

func TestLoadConfigAppliesEnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GEOREMIND_SERVER_ADDR", "127.0.0.1:9999")
	t.Setenv("GEOREMIND_REMINDER_MAX_REMINDERS", "5")
	t.Setenv("GEOREMIND_REMINDER_INTERVAL", "90s")
	t.Setenv("GEOREMIND_SERVER_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("GEOREMIND_DIGEST_ENABLED", "true")
	t.Setenv("GEOREMIND_DIGEST_SCHEDULE", "15 9 * * 1-5")

	cfg, _, err := loadConfig(newViper())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Reminder.MaxReminders)
	assert.Equal(t, 90*time.Second, cfg.Reminder.Interval.Std())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, config.DefaultArrivalRadiusKm, cfg.Reminder.ArrivalRadiusKm)
	assert.True(t, cfg.Digest.Enabled)
	assert.Equal(t, "15 9 * * 1-5", cfg.Digest.Schedule)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GEOREMIND_REMINDER_DEFAULT_PERMISSION", "maybe")

	_, _, err := loadConfig(newViper())
	assert.ErrorContains(t, err, "reminder.default_permission")
}

func TestConfigCommandLayersFileAndFlags(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "georemind.yaml")
	body := "server:\n  addr: \":7070\"\nstore:\n  driver: postgres\n  database_url: postgres://user:secret@db/georemind\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	out, err := execute(t, "config", "--config", path, "--log-level", "debug")
	require.NoError(t, err)
	assert.Contains(t, out, "# source: "+path)
	assert.Contains(t, out, "7070")
	assert.Contains(t, out, "level: debug")
	assert.NotContains(t, out, "user:secret")
	assert.Contains(t, out, redacted)
}

func TestBuildNotificationCenterFallsBackToEnabledChannel(t *testing.T) {
	cfg := config.Default().Notification
	cfg.DefaultChannel = "webhook"

	center, err := buildNotificationCenter(cfg, &bytes.Buffer{}, nil)
	require.NoError(t, err)
	channels := center.ListChannels()
	require.Len(t, channels, 1)
	assert.Equal(t, "log", channels[0].Name)
	assert.True(t, channels[0].IsDefault)
}

func TestBuildNotificationCenterValidatesWebhookURL(t *testing.T) {
	cfg := config.Default().Notification
	cfg.Webhook.Enabled = true
	cfg.Webhook.URL = "ftp://hooks.example/notify"

	_, err := buildNotificationCenter(cfg, &bytes.Buffer{}, nil)
	assert.ErrorContains(t, err, "notification.webhook.url")
}

func TestSessionDefaultsFromConfig(t *testing.T) {
	rc := config.Default().Reminder
	rc.MaxReminders = 4
	rc.Accuracy = "balanced"

	defaults, err := sessionDefaults(rc)
	require.NoError(t, err)
	assert.Equal(t, 4, defaults.MaxReminders)
	assert.Equal(t, config.DefaultInitialDelay, defaults.InitialDelay)

	rc.Accuracy = "perfect"
	_, err = sessionDefaults(rc)
	assert.ErrorContains(t, err, "reminder.accuracy")
}

func TestBuildSpeaker(t *testing.T) {
	speaker, err := buildSpeaker(config.SpeechConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, speaker)

	_, err = buildSpeaker(config.SpeechConfig{Enabled: true, Provider: "cloud"})
	assert.Error(t, err)

	speaker, err = buildSpeaker(config.Default().Speech)
	require.NoError(t, err)
	assert.NotNil(t, speaker)
}

const arrivalTrack = `
name: walk to office
destination:
  name: Office
  latitude: 19.0584
  longitude: 72.8842
points:
  - {latitude: 19.0620, longitude: 72.8842, offset: 0s}
  - {latitude: 19.0600, longitude: 72.8842, offset: 20ms}
  - {latitude: 19.0585, longitude: 72.8842, offset: 40ms}
`

func TestSimulateCompletesOnArrival(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "track.yaml")
	require.NoError(t, os.WriteFile(path, []byte(arrivalTrack), 0o600))

	var out bytes.Buffer
	outcome, err := runSimulate(context.Background(), &out, newViper(), simulateOptions{
		trackPath:    path,
		label:        "Drop off badge",
		speed:        1,
		initialDelay: time.Hour,
		interval:     -1,
		timeout:      5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, coordinator.ReasonArrival, outcome.Reason)
	assert.Equal(t, 0, outcome.RemindersSent)

	text := out.String()
	assert.Contains(t, text, "Drop off badge")
	assert.Contains(t, text, "session.arrival")
	assert.Contains(t, text, "status=completed")
}

func TestSimulateRequiresDestination(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "track.yaml")
	require.NoError(t, os.WriteFile(path, []byte("points:\n  - {latitude: 1, longitude: 1, offset: 0s}\n"), 0o600))

	_, err := runSimulate(context.Background(), &bytes.Buffer{}, newViper(), simulateOptions{
		trackPath: path, speed: 1, initialDelay: -1, interval: -1, timeout: time.Second,
	})
	assert.ErrorContains(t, err, "no destination")
}

func TestServeStartsAndDrains(t *testing.T) {
	isolateEnv(t)
	t.Setenv("GEOREMIND_SERVER_ADDR", "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, newViper(), false, ready) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", addr))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(fmt.Sprintf("http://%s/metrics", addr))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
