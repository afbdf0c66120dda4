package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"marstek-bridge/internal/marstek"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func() ([]marstek.Device, error)
}

func (f *fakeFetcher) GetDevices(_ context.Context) ([]marstek.Device, error) {
	f.mu.Lock()
	f.calls++
	fn := f.fn
	f.mu.Unlock()
	return fn()
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeOverrides struct {
	overrides map[string]float64
	err       error
}

func (f *fakeOverrides) All(_ context.Context) (map[string]float64, error) {
	return f.overrides, f.err
}

func twoDevices() []marstek.Device {
	return []marstek.Device{
		{DevID: "d1", Type: "HME-5", SOC: 100, Charge: 1200},
		{DevID: "d2", Type: "HME-5", SOC: 50, Discharge: 800},
	}
}

func TestRefresh_PublishesSnapshot(t *testing.T) {
	fetcher := &fakeFetcher{fn: func() ([]marstek.Device, error) {
		return twoDevices(), nil
	}}
	c := New(fetcher, Options{DefaultCapacityKWh: 5.12})

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	snap := c.Snapshot()
	if !snap.Healthy() {
		t.Error("snapshot should be healthy after success")
	}
	if len(snap.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(snap.Devices))
	}
	if snap.Devices[0].CapacityKWh != 5.12 {
		t.Errorf("CapacityKWh = %v, want default 5.12", snap.Devices[0].CapacityKWh)
	}
	// 5.12 + 2.56 stored, 1200 - 800 net.
	if snap.TotalEnergyKWh != 7.68 {
		t.Errorf("TotalEnergyKWh = %v, want 7.68", snap.TotalEnergyKWh)
	}
	if snap.TotalPowerW != 400 {
		t.Errorf("TotalPowerW = %v, want 400", snap.TotalPowerW)
	}
	if snap.LastSuccess.IsZero() || snap.LastAttempt.IsZero() {
		t.Error("timestamps not recorded")
	}
}

func TestRefresh_AppliesOverrides(t *testing.T) {
	fetcher := &fakeFetcher{fn: func() ([]marstek.Device, error) {
		return twoDevices(), nil
	}}
	c := New(fetcher, Options{
		DefaultCapacityKWh: 5.12,
		Overrides:          &fakeOverrides{overrides: map[string]float64{"d2": 10.24}},
	})

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	snap := c.Snapshot()
	if snap.Devices[0].CapacityKWh != 5.12 {
		t.Errorf("d1 CapacityKWh = %v, want default 5.12", snap.Devices[0].CapacityKWh)
	}
	if snap.Devices[1].CapacityKWh != 10.24 {
		t.Errorf("d2 CapacityKWh = %v, want override 10.24", snap.Devices[1].CapacityKWh)
	}
}

func TestRefresh_OverrideErrorFallsBackToDefault(t *testing.T) {
	fetcher := &fakeFetcher{fn: func() ([]marstek.Device, error) {
		return twoDevices(), nil
	}}
	c := New(fetcher, Options{
		DefaultCapacityKWh: 5.12,
		Overrides:          &fakeOverrides{err: errors.New("database locked")},
	})

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v (override failures must not fail the cycle)", err)
	}
	if got := c.Snapshot().Devices[0].CapacityKWh; got != 5.12 {
		t.Errorf("CapacityKWh = %v, want default 5.12", got)
	}
}

func TestRefresh_TransientFailureKeepsStaleData(t *testing.T) {
	fail := false
	fetcher := &fakeFetcher{fn: func() ([]marstek.Device, error) {
		if fail {
			return nil, fmt.Errorf("%w: boom", marstek.ErrTransient)
		}
		return twoDevices(), nil
	}}
	c := New(fetcher, Options{DefaultCapacityKWh: 5.12})

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	fail = true
	for i := 0; i < 2; i++ {
		if err := c.Refresh(context.Background()); err == nil {
			t.Fatal("Refresh() expected error")
		}
	}

	snap := c.Snapshot()
	if len(snap.Devices) != 2 {
		t.Errorf("len(Devices) = %d, want stale data retained", len(snap.Devices))
	}
	if snap.ConsecutiveFailures != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", snap.ConsecutiveFailures)
	}
	if snap.Healthy() {
		t.Error("snapshot should be unhealthy after failures")
	}
	if !strings.Contains(snap.LastError, "boom") {
		t.Errorf("LastError = %q, want fetch detail", snap.LastError)
	}
}

func TestRefresh_SuccessResetsFailureCount(t *testing.T) {
	fail := true
	fetcher := &fakeFetcher{fn: func() ([]marstek.Device, error) {
		if fail {
			return nil, marstek.ErrTransient
		}
		return twoDevices(), nil
	}}
	c := New(fetcher, Options{})

	_ = c.Refresh(context.Background()) //nolint:errcheck
	fail = false
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	snap := c.Snapshot()
	if snap.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want reset to 0", snap.ConsecutiveFailures)
	}
	if snap.LastError != "" {
		t.Errorf("LastError = %q, want cleared", snap.LastError)
	}
}

func TestRefresh_ClassifiesAuthFailures(t *testing.T) {
	credErr := fmt.Errorf("%w (HTTP 401)", marstek.ErrInvalidCredentials)
	fetcher := &fakeFetcher{fn: func() ([]marstek.Device, error) {
		return nil, credErr
	}}
	c := New(fetcher, Options{})

	err := c.Refresh(context.Background())
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("Refresh() error = %v, want ErrAuthenticationFailed", err)
	}
	// The underlying kind survives wrapping.
	if !errors.Is(err, marstek.ErrInvalidCredentials) {
		t.Errorf("wrapped error lost the original kind: %v", err)
	}
}

func TestRefresh_RetryableFailuresNotClassifiedAsAuth(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		// Code 8 clears the token inside the client; the next cycle
		// retries with a fresh login, so it is not a credential problem.
		{name: "permission denied", err: marstek.ErrPermissionDenied},
		{name: "transient", err: fmt.Errorf("%w: network error", marstek.ErrTransient)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{fn: func() ([]marstek.Device, error) {
				return nil, tt.err
			}}
			c := New(fetcher, Options{})

			err := c.Refresh(context.Background())
			if errors.Is(err, ErrAuthenticationFailed) {
				t.Fatalf("error misclassified as authentication failure: %v", err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("Refresh() error = %v, want %v passed through", err, tt.err)
			}
		})
	}
}

func TestOnUpdate_NotifiedOnSuccessAndFailure(t *testing.T) {
	fail := false
	fetcher := &fakeFetcher{fn: func() ([]marstek.Device, error) {
		if fail {
			return nil, marstek.ErrTransient
		}
		return twoDevices(), nil
	}}
	c := New(fetcher, Options{})

	var got []Snapshot
	c.OnUpdate(func(s Snapshot) { got = append(got, s) })

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	fail = true
	_ = c.Refresh(context.Background()) //nolint:errcheck

	if len(got) != 2 {
		t.Fatalf("listener calls = %d, want 2", len(got))
	}
	if !got[0].Healthy() || got[1].Healthy() {
		t.Errorf("listener snapshots = healthy %v/%v, want true/false",
			got[0].Healthy(), got[1].Healthy())
	}
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	refreshed := make(chan struct{}, 10)
	fetcher := &fakeFetcher{fn: func() ([]marstek.Device, error) {
		select {
		case refreshed <- struct{}{}:
		default:
		}
		return twoDevices(), nil
	}}
	c := New(fetcher, Options{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-refreshed:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for a poll tick")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}

	if fetcher.callCount() < 2 {
		t.Errorf("fetch calls = %d, want at least 2", fetcher.callCount())
	}
}
