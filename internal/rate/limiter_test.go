package rate

import (
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	m := NewMemory()

	for i := 0; i < 3; i++ {
		ok, _ := m.Allow("k", 3, time.Minute)
		if !ok {
			t.Fatalf("request %d denied under limit", i)
		}
	}
	ok, retry := m.Allow("k", 3, time.Minute)
	if ok {
		t.Fatal("request allowed over limit")
	}
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("unexpected retry: %v", retry)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	m := NewMemory()

	if ok, _ := m.Allow("a", 1, time.Minute); !ok {
		t.Fatal("first request for a denied")
	}
	if ok, _ := m.Allow("a", 1, time.Minute); ok {
		t.Fatal("second request for a allowed")
	}
	if ok, _ := m.Allow("b", 1, time.Minute); !ok {
		t.Fatal("request for b denied by a's window")
	}
}

func TestWindowReset(t *testing.T) {
	m := NewMemory()

	if ok, _ := m.Allow("k", 1, 10*time.Millisecond); !ok {
		t.Fatal("first request denied")
	}
	if ok, _ := m.Allow("k", 1, 10*time.Millisecond); ok {
		t.Fatal("second request allowed in the same window")
	}
	time.Sleep(15 * time.Millisecond)
	if ok, _ := m.Allow("k", 1, 10*time.Millisecond); !ok {
		t.Fatal("request denied after window reset")
	}
}
