package proxy

import (
	"errors"
	"testing"
	"time"

	"soundtracker/internal/domain"
)

func testEndpoints() []domain.ProxyEndpoint {
	return []domain.ProxyEndpoint{
		{Host: "proxy-a.example.com", Port: 8080},
		{Host: "proxy-b.example.com", Port: 8080},
	}
}

func TestAcquireEmptyPool(t *testing.T) {
	t.Parallel()

	p := NewPool(nil, Options{})
	if _, err := p.Acquire(); !errors.Is(err, ErrNoneAvailable) {
		t.Fatalf("expected ErrNoneAvailable, got %v", err)
	}
}

func TestAcquireLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	clock := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	p := NewPool(testEndpoints(), Options{now: func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}})

	first, err := p.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	second, err := p.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if first.Key() == second.Key() {
		t.Fatalf("expected rotation between endpoints, got %s twice", first.Key())
	}

	// The first endpoint is now the least recently used again.
	third, err := p.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if third.Key() != first.Key() {
		t.Fatalf("expected %s, got %s", first.Key(), third.Key())
	}
}

func TestCooldownAfterThresholdFailures(t *testing.T) {
	t.Parallel()

	clock := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	p := NewPool(testEndpoints()[:1], Options{
		FailureThreshold: 3,
		CooldownBase:     time.Minute,
		now:              func() time.Time { return clock },
	})

	ep, err := p.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	p.ReportFailure(ep)
	p.ReportFailure(ep)
	if _, err := p.Acquire(); err != nil {
		t.Fatalf("endpoint should stay available below threshold: %v", err)
	}

	p.ReportFailure(ep)
	if _, err := p.Acquire(); !errors.Is(err, ErrNoneAvailable) {
		t.Fatalf("expected cooling endpoint to be excluded, got %v", err)
	}

	// Cool-down expiry restores availability.
	clock = clock.Add(time.Minute + time.Second)
	if _, err := p.Acquire(); err != nil {
		t.Fatalf("expected endpoint back after cooldown: %v", err)
	}
}

func TestCooldownDoubles(t *testing.T) {
	t.Parallel()

	clock := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	p := NewPool(testEndpoints()[:1], Options{
		FailureThreshold: 1,
		CooldownBase:     time.Minute,
		CooldownMax:      5 * time.Minute,
		now:              func() time.Time { return clock },
	})
	ep := testEndpoints()[0]

	p.ReportFailure(ep)
	clock = clock.Add(61 * time.Second)
	if _, err := p.Acquire(); err != nil {
		t.Fatalf("expected recovery after first cooldown: %v", err)
	}

	// Second demotion doubles to 2m: one minute later it must still cool.
	p.ReportFailure(ep)
	clock = clock.Add(61 * time.Second)
	if _, err := p.Acquire(); !errors.Is(err, ErrNoneAvailable) {
		t.Fatalf("expected doubled cooldown to still hold, got %v", err)
	}
	clock = clock.Add(time.Minute)
	if _, err := p.Acquire(); err != nil {
		t.Fatalf("expected recovery after doubled cooldown: %v", err)
	}
}

func TestReportSuccessResetsEligibility(t *testing.T) {
	t.Parallel()

	clock := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	p := NewPool(testEndpoints()[:1], Options{
		FailureThreshold: 1,
		CooldownBase:     time.Hour,
		now:              func() time.Time { return clock },
	})
	ep := testEndpoints()[0]

	p.ReportFailure(ep)
	if _, err := p.Acquire(); !errors.Is(err, ErrNoneAvailable) {
		t.Fatalf("expected cooldown, got %v", err)
	}

	p.ReportSuccess(ep)
	got, err := p.Acquire()
	if err != nil {
		t.Fatalf("expected immediate eligibility after success: %v", err)
	}
	if got.Key() != ep.Key() {
		t.Fatalf("unexpected endpoint %s", got.Key())
	}
}
