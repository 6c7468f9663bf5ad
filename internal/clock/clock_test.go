package clock

import (
	"testing"
	"time"
)

func TestManualAdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewManual(start)

	c.Advance(90 * time.Minute)
	if want := start.Add(90 * time.Minute); !c.Now().Equal(want) {
		t.Fatalf("after advance got %s, want %s", c.Now(), want)
	}

	loc := time.FixedZone("UTC+2", 2*60*60)
	c.Set(time.Date(2026, 3, 2, 12, 0, 0, 0, loc))
	if c.Now().Location() != time.UTC {
		t.Fatalf("expected UTC location, got %s", c.Now().Location())
	}
	if c.Now().Hour() != 10 {
		t.Fatalf("expected 10:00 UTC, got %s", c.Now())
	}
}

func TestSystemIsUTC(t *testing.T) {
	if (System{}).Now().Location() != time.UTC {
		t.Fatal("system clock should report UTC")
	}
}
