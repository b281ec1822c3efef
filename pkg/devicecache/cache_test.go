package devicecache

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func testKey() Key {
	return Key{TenantID: uuid.New(), DeviceID: "dev-1"}
}

func TestGetAfterPutReturnsSameEntry(t *testing.T) {
	c := New(time.Minute, 100)
	k := testKey()
	entry := Entry{SiteID: "s1", Status: "ACTIVE", ProvisionTokenHash: "abc"}

	c.Put(k, entry)

	got, ok := c.Get(k)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if got.SiteID != entry.SiteID || got.Status != entry.Status || got.ProvisionTokenHash != entry.ProvisionTokenHash {
		t.Fatalf("got %+v, want %+v", got, entry)
	}
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := New(time.Minute, 100)
	_, ok := c.Get(testKey())
	if ok {
		t.Fatal("expected miss for unknown key")
	}
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c := New(10*time.Millisecond, 100)
	k := testKey()
	c.Put(k, Entry{SiteID: "s1", Status: "ACTIVE"})

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get(k)
	if ok {
		t.Fatal("expected miss after TTL elapsed")
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := New(time.Minute, 100)
	k := testKey()
	c.Put(k, Entry{SiteID: "s1", Status: "ACTIVE"})

	c.Invalidate(k)

	_, ok := c.Get(k)
	if ok {
		t.Fatal("expected miss after Invalidate")
	}
}

func TestEvictsOldestTenPercentWhenFull(t *testing.T) {
	c := New(time.Minute, 10)
	keys := make([]Key, 10)
	for i := 0; i < 10; i++ {
		keys[i] = Key{TenantID: uuid.New(), DeviceID: "dev"}
		c.Put(keys[i], Entry{SiteID: "s1", Status: "ACTIVE"})
	}

	// Inserting one more over maxSize triggers eviction of the oldest.
	overflow := Key{TenantID: uuid.New(), DeviceID: "overflow"}
	c.Put(overflow, Entry{SiteID: "s1", Status: "ACTIVE"})

	if _, ok := c.Get(keys[0]); ok {
		t.Fatal("expected oldest entry to be evicted")
	}
	if _, ok := c.Get(overflow); !ok {
		t.Fatal("expected newly inserted entry to survive")
	}
}

func TestStatsTracksHitsAndMisses(t *testing.T) {
	c := New(time.Minute, 100)
	k := testKey()
	c.Put(k, Entry{SiteID: "s1", Status: "ACTIVE"})

	c.Get(k)
	c.Get(Key{TenantID: uuid.New(), DeviceID: "missing"})

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Size != 1 {
		t.Fatalf("got %+v", stats)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(time.Minute, 1000)
	done := make(chan struct{})
	k := testKey()

	for i := 0; i < 20; i++ {
		go func() {
			c.Put(k, Entry{SiteID: "s1", Status: "ACTIVE"})
			c.Get(k)
			c.Invalidate(k)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
}
