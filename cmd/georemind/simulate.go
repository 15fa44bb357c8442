package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"georemind/internal/app/coordinator"
	"georemind/internal/app/events"
	"georemind/internal/app/location"
	"georemind/internal/app/tasks"
	"georemind/internal/domain/geo"
	"georemind/internal/domain/task"
	"georemind/internal/infra/notification"
	"georemind/internal/infra/store/docstore"
	"georemind/internal/infra/tts"
	"georemind/internal/shared/logging"
)

const simulateUserID = "simulator"

type simulateOptions struct {
	trackPath    string
	label        string
	destLat      float64
	destLon      float64
	hasDest      bool
	speed        float64
	initialDelay time.Duration
	interval     time.Duration
	maxReminders int
	radiusKm     float64
	timeout      time.Duration
}

func newSimulateCommand(v *viper.Viper) *cobra.Command {
	var opts simulateOptions
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a recorded track against one reminder session",
		Long: `Replays a YAML track through a single reminder session backed by an
in-memory store and prints session events, alerts and spoken reminders.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			opts.hasDest = flags.Changed("dest-lat") || flags.Changed("dest-lon")
			if !flags.Changed("initial-delay") {
				opts.initialDelay = -1
			}
			if !flags.Changed("interval") {
				opts.interval = -1
			}
			_, err := runSimulate(cmd.Context(), cmd.OutOrStdout(), v, opts)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.trackPath, "track", "", "YAML track file (required)")
	flags.StringVar(&opts.label, "label", "Simulated errand", "task label")
	flags.Float64Var(&opts.destLat, "dest-lat", 0, "destination latitude (defaults to the track destination)")
	flags.Float64Var(&opts.destLon, "dest-lon", 0, "destination longitude")
	flags.Float64Var(&opts.speed, "speed", 1, "replay speed multiplier")
	flags.DurationVar(&opts.initialDelay, "initial-delay", 0, "delay before the first reminder")
	flags.DurationVar(&opts.interval, "interval", 0, "interval between reminders")
	flags.IntVar(&opts.maxReminders, "max-reminders", 0, "reminders before auto-completion")
	flags.Float64Var(&opts.radiusKm, "radius-km", 0, "arrival radius in kilometres")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "give up after this long")
	_ = cmd.MarkFlagRequired("track")
	return cmd
}

// runSimulate replays the track and returns the session outcome once the
// session ends.
func runSimulate(ctx context.Context, out io.Writer, v *viper.Viper, opts simulateOptions) (coordinator.Outcome, error) {
	track, err := location.LoadTrack(opts.trackPath)
	if err != nil {
		return coordinator.Outcome{}, err
	}
	dest, err := simulationDestination(track, opts)
	if err != nil {
		return coordinator.Outcome{}, err
	}

	cfg, _, err := loadConfig(v)
	if err != nil {
		return coordinator.Outcome{}, err
	}
	defaults, err := sessionDefaults(cfg.Reminder)
	if err != nil {
		return coordinator.Outcome{}, err
	}

	printer := &eventPrinter{out: out}
	store := docstore.NewMemory(docstore.WithLogger(logging.NewComponentLogger("Store")))
	if err := store.EnsureSchema(ctx); err != nil {
		return coordinator.Outcome{}, err
	}

	center := notification.NewCenter(notification.WithCenterLogger(logging.NewComponentLogger("Notifications")))
	center.RegisterChannel(notification.NewLogChannel("log", printer.writer(yellow)),
		notification.ChannelConfig{Name: "log", Enabled: true, IsDefault: true})
	speaker := tts.NewSpeaker(tts.NewMockProvider(), tts.NewWriterSink(printer.writer(cyan)))

	source := location.NewReplaySource(track.Points,
		location.WithReplaySpeed(opts.speed),
		location.WithReplayLogger(logging.NewComponentLogger("Replay")))
	watcher := location.NewWatcher(source, location.StaticPermission(location.PermissionGranted))
	coord := coordinator.New(store, watcher,
		coordinator.WithAlerter(notification.NewAlerter(center)),
		coordinator.WithSpeaker(speaker),
		coordinator.WithEventSink(printer),
		coordinator.WithDefaults(defaults),
		coordinator.WithLogger(logging.NewComponentLogger("Coordinator")),
	)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coord.Shutdown(shutdownCtx)
	}()

	svc := tasks.NewService(store, coord)
	user := task.UserContext{UserID: simulateUserID}
	t, err := svc.Create(ctx, user, tasks.CreateInput{Label: opts.label, Destination: &dest})
	if err != nil {
		return coordinator.Outcome{}, err
	}
	printer.printf("%s %s → %s (%d track points, speed x%g)\n",
		bold("Simulating"), t.Label, dest.DisplayName(), len(track.Points), opts.speed)

	sess, err := svc.StartReminder(ctx, user, t.ID, sessionOverrides(opts)...)
	if err != nil {
		return coordinator.Outcome{}, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	outcome, err := sess.Wait(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return coordinator.Outcome{}, fmt.Errorf("session still active after %s", opts.timeout)
		}
		return coordinator.Outcome{}, err
	}

	final, err := svc.Get(ctx, user, t.ID)
	if err != nil {
		return outcome, err
	}
	status := string(final.Status)
	if final.Status == task.StatusCompleted {
		status = green(status)
	} else {
		status = yellow(status)
	}
	printer.printf("%s reason=%s reminders=%d status=%s\n",
		bold("Finished"), outcome.Reason, outcome.RemindersSent, status)
	return outcome, nil
}

func simulationDestination(track location.Track, opts simulateOptions) (geo.Place, error) {
	if opts.hasDest {
		coord := geo.Coordinate{Latitude: opts.destLat, Longitude: opts.destLon}
		if !coord.Valid() {
			return geo.Place{}, fmt.Errorf("destination %s out of range", coord)
		}
		return geo.Place{Coordinate: coord}, nil
	}
	if track.Destination == nil {
		return geo.Place{}, errors.New("track has no destination; pass --dest-lat and --dest-lon")
	}
	return *track.Destination, nil
}

func sessionOverrides(opts simulateOptions) []coordinator.SessionOption {
	var out []coordinator.SessionOption
	if opts.initialDelay >= 0 {
		out = append(out, coordinator.WithInitialDelay(opts.initialDelay))
	}
	if opts.interval > 0 {
		out = append(out, coordinator.WithReminderInterval(opts.interval))
	}
	if opts.maxReminders > 0 {
		out = append(out, coordinator.WithMaxReminders(opts.maxReminders))
	}
	if opts.radiusKm > 0 {
		out = append(out, coordinator.WithArrivalRadiusKm(opts.radiusKm))
	}
	return out
}

// eventPrinter serializes output from session callbacks, which run on
// their own goroutines.
type eventPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *eventPrinter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// Publish implements events.Sink.
func (p *eventPrinter) Publish(e events.Event) {
	label := string(e.Type)
	switch e.Type {
	case events.TypeArrivalDetected, events.TypeSessionCompleted:
		label = green(label)
	case events.TypeReminderSent:
		label = yellow(label)
	case events.TypePersistenceFailed, events.TypeNotificationFailed:
		label = red(label)
	default:
		label = blue(label)
	}

	detail := ""
	switch {
	case e.DistanceKm != nil:
		detail = fmt.Sprintf(" distance=%.3fkm", *e.DistanceKm)
	case e.MaxReminders > 0:
		detail = fmt.Sprintf(" reminder=%d/%d", e.RemindersSent, e.MaxReminders)
	}
	if e.Reason != "" {
		detail += " reason=" + e.Reason
	}
	if e.Message != "" {
		detail += " " + gray(e.Message)
	}
	p.printf("%s %s%s\n", gray(e.At.Format("15:04:05")), label, detail)
}

// writer returns an io.Writer that prints through p in the given colour.
func (p *eventPrinter) writer(paint func(...any) string) io.Writer {
	return printerWriter{p: p, paint: paint}
}

type printerWriter struct {
	p     *eventPrinter
	paint func(...any) string
}

func (w printerWriter) Write(b []byte) (int, error) {
	w.p.printf("%s", w.paint(string(b)))
	return len(b), nil
}
