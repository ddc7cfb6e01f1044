package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetSetExpire(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.Set("a", 1)

	if v, ok := c.Get("a"); !ok || v.(int) != 1 {
		t.Fatalf("expected hit, got %v %v", v, ok)
	}

	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected expiry")
	}
}

func TestDeletePrefix(t *testing.T) {
	c := New(time.Minute)
	c.Set("parcels:stats:v1:station=ACC", 1)
	c.Set("parcels:stats:v1:station=all", 2)
	c.Set("dashboard:superadmin:v1", 3)

	c.DeletePrefix("parcels:stats:")

	if _, ok := c.Get("parcels:stats:v1:station=ACC"); ok {
		t.Fatalf("prefix key survived")
	}
	if _, ok := c.Get("dashboard:superadmin:v1"); !ok {
		t.Fatalf("unrelated key removed")
	}
}

func TestGetOrLoad(t *testing.T) {
	c := New(time.Minute)
	calls := 0
	load := func() (int, error) { calls++; return 42, nil }

	v, hit, err := GetOrLoad(c, "k", load)
	if err != nil || hit || v != 42 {
		t.Fatalf("first load: v=%d hit=%v err=%v", v, hit, err)
	}
	v, hit, _ = GetOrLoad(c, "k", load)
	if !hit || v != 42 || calls != 1 {
		t.Fatalf("second load should hit cache: v=%d hit=%v calls=%d", v, hit, calls)
	}

	boom := errors.New("boom")
	if _, _, err := GetOrLoad(c, "bad", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	if _, ok := c.Get("bad"); ok {
		t.Fatalf("errors must not be cached")
	}
}

func TestGetOrLoadCollapsesConcurrentMisses(t *testing.T) {
	c := New(time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	load := func() (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, _, err := GetOrLoad(c, "dashboard:admin:ACC", load); err != nil || v != 7 {
				t.Errorf("v=%d err=%v", v, err)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("load ran %d times, want 1", n)
	}
}

func TestInvalidationDuringLoadIsNotStored(t *testing.T) {
	c := New(time.Minute)

	v, _, _ := GetOrLoad(c, "parcels:stats:v1:station=ACC", func() (int, error) {
		// a parcel write lands while stats are being computed
		c.DeletePrefix("parcels:stats:")
		return 3, nil
	})
	if v != 3 {
		t.Fatalf("caller should still get the loaded value, got %d", v)
	}
	if _, ok := c.Get("parcels:stats:v1:station=ACC"); ok {
		t.Fatalf("value loaded before an invalidation must not be cached")
	}
}
