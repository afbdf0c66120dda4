package poller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"marstek-bridge/internal/marstek"
)

// ErrAuthenticationFailed marks a refresh failure that polling cannot
// recover from: the account's credentials were rejected. Callers should
// stop polling and surface the problem to the operator rather than
// retrying into a lockout. A code-8 permission denial is not included:
// the client already cleared its token, so the next cycle retries with
// a fresh login.
var ErrAuthenticationFailed = errors.New("poller: authentication failed - check credentials and api access")

// Fetcher retrieves the current device list from the cloud.
// *marstek.Client implements it.
type Fetcher interface {
	GetDevices(ctx context.Context) ([]marstek.Device, error)
}

// OverrideSource supplies per-device capacity overrides.
// *settings.SQLiteStore implements it.
type OverrideSource interface {
	All(ctx context.Context) (map[string]float64, error)
}

// Logger defines the logging interface for the coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Snapshot is the coordinator's published state: the most recent device
// list plus health bookkeeping. Snapshots are immutable once published;
// each refresh swaps in a whole new value.
type Snapshot struct {
	Devices []marstek.Device `json:"devices"`

	LastSuccess         time.Time `json:"last_success"`
	LastAttempt         time.Time `json:"last_attempt"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`

	// LatencyMS is the duration of the last successful fetch in
	// milliseconds, rounded to one decimal place. Failures leave the
	// previous value in place.
	LatencyMS float64 `json:"latency_ms"`

	TotalEnergyKWh float64 `json:"total_energy_kwh"`
	TotalPowerW    float64 `json:"total_power_w"`
}

// Healthy reports whether the last refresh attempt succeeded.
func (s Snapshot) Healthy() bool {
	return s.LastError == "" && !s.LastSuccess.IsZero()
}

// Options configures a Coordinator.
type Options struct {
	// Overrides supplies stored capacity overrides. Optional; without it
	// every device gets DefaultCapacityKWh.
	Overrides OverrideSource

	// DefaultCapacityKWh is applied to devices without an override.
	DefaultCapacityKWh float64

	// Interval between automatic refreshes in Run.
	Interval time.Duration

	// Logger receives diagnostic output. Defaults to a no-op logger.
	Logger Logger
}

// Coordinator polls the cloud on a fixed interval and publishes the
// result as an atomic snapshot for the API server, MQTT publisher and
// metrics collector to read.
//
// Thread Safety:
//   - Refresh, Run, Snapshot and OnUpdate are safe for concurrent use.
//   - Refreshes are serialised; a tick that fires while a refresh is
//     still in flight waits rather than overlapping it.
type Coordinator struct {
	fetcher         Fetcher
	overrides       OverrideSource
	defaultCapacity float64
	interval        time.Duration
	logger          Logger

	refreshMu sync.Mutex // serialises refresh cycles

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []func(Snapshot)
}

// New creates a Coordinator around fetcher.
func New(fetcher Fetcher, opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &Coordinator{
		fetcher:         fetcher,
		overrides:       opts.Overrides,
		defaultCapacity: opts.DefaultCapacityKWh,
		interval:        opts.Interval,
		logger:          opts.Logger,
	}
}

// Refresh performs one poll cycle: fetch the device list, stamp
// capacities, recompute totals and publish a new snapshot.
//
// On failure the previous device list stays published (stale data beats
// no data for dashboards) and only the health bookkeeping changes.
// Credential and permission failures come back wrapped in
// ErrAuthenticationFailed; everything else is worth retrying next tick.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := time.Now()
	devices, err := c.fetcher.GetDevices(ctx)
	latency := math.Round(time.Since(start).Seconds()*10000) / 10

	if err != nil {
		if errors.Is(err, marstek.ErrInvalidCredentials) {
			err = fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		c.publishFailure(err)
		c.logger.Warn("poll cycle failed",
			"error", err,
			"latency_ms", latency,
		)
		return err
	}

	c.applyCapacities(ctx, devices)

	snap := Snapshot{
		Devices:        devices,
		LastSuccess:    time.Now().UTC(),
		LastAttempt:    time.Now().UTC(),
		LatencyMS:      latency,
		TotalEnergyKWh: marstek.TotalEnergyKWh(devices, c.defaultCapacity),
		TotalPowerW:    marstek.TotalPower(devices),
	}
	c.publish(snap)

	c.logger.Info("poll cycle complete",
		"devices", len(devices),
		"latency_ms", latency,
		"total_power_w", snap.TotalPowerW,
	)
	return nil
}

// Run refreshes every interval until ctx is cancelled. It does not
// refresh on entry; callers perform a first Refresh during startup so
// credential problems surface before the service reports ready.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("poller started", "interval", c.interval.String())

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("poller stopped")
			return
		case <-ticker.C:
			// Errors are already recorded in the snapshot and logged;
			// the loop itself only stops on cancellation.
			_ = c.Refresh(ctx) //nolint:errcheck
		}
	}
}

// Snapshot returns the most recently published state.
// The contained device slice is never mutated after publication.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// OnUpdate registers fn to be called after every refresh attempt,
// success or failure, with the snapshot that was just published.
// Listeners run synchronously on the polling goroutine; keep them quick.
func (c *Coordinator) OnUpdate(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// applyCapacities stamps each device with its stored override, falling
// back to the configured default. Override lookup failures degrade to
// the default rather than failing the cycle.
func (c *Coordinator) applyCapacities(ctx context.Context, devices []marstek.Device) {
	var overrides map[string]float64
	if c.overrides != nil {
		var err error
		overrides, err = c.overrides.All(ctx)
		if err != nil {
			c.logger.Warn("loading capacity overrides failed, using default",
				"error", err,
				"default_kwh", c.defaultCapacity,
			)
		}
	}

	for i := range devices {
		if kwh, ok := overrides[devices[i].DevID]; ok {
			devices[i].CapacityKWh = kwh
		} else {
			devices[i].CapacityKWh = c.defaultCapacity
		}
	}
}

func (c *Coordinator) publish(snap Snapshot) {
	c.mu.Lock()
	c.snapshot = snap
	listeners := c.listeners
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (c *Coordinator) publishFailure(err error) {
	c.mu.Lock()
	snap := c.snapshot
	snap.LastAttempt = time.Now().UTC()
	snap.LastError = err.Error()
	snap.ConsecutiveFailures++
	c.snapshot = snap
	listeners := c.listeners
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}
