package mock

import (
	"testing"
	"time"
)

func TestMockClock_Moves(t *testing.T) {
	start := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if !clock.Now().Equal(start) {
		t.Fatalf("Expected %v, got %v", start, clock.Now())
	}

	clock.Advance(10 * time.Minute)
	clock.Advance(5 * time.Minute)
	if want := start.Add(15 * time.Minute); !clock.Now().Equal(want) {
		t.Errorf("Expected %v after advancing, got %v", want, clock.Now())
	}

	clock.Set(start)
	if !clock.Now().Equal(start) {
		t.Errorf("Expected Set to rewind to %v, got %v", start, clock.Now())
	}
}

func TestMockClock_ZeroTimeUsesNow(t *testing.T) {
	before := time.Now()
	clock := NewMockClock(time.Time{})
	if clock.Now().Before(before) {
		t.Error("Expected a zero start time to be replaced by the current time")
	}
}

func TestNewPortalServer_DefaultsToRealClock(t *testing.T) {
	server := NewPortalServer(PortalServerConfig{})
	if _, ok := server.clock.(RealClock); !ok {
		t.Fatalf("Expected a server without a Clock to use RealClock, got %T", server.clock)
	}

	frozen := NewMockClock(time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC))
	server = NewPortalServer(PortalServerConfig{Clock: frozen})
	if server.clock != frozen {
		t.Error("Expected the configured clock to be used")
	}
}
