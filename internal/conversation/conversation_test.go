package conversation

import (
	"fmt"
	"sync"
	"testing"

	"assistant/internal/models"
)

func TestSnapshotReflectsAppendsInOrder(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		c.Append(models.Message{ID: fmt.Sprintf("m%d", i), Role: models.RoleUser, Content: fmt.Sprint(i)})
	}

	snap := c.Snapshot()
	if len(snap) != 5 || c.Len() != 5 {
		t.Fatalf("Snapshot() len = %d, Len() = %d, want 5", len(snap), c.Len())
	}
	for i, msg := range snap {
		if msg.ID != fmt.Sprintf("m%d", i) {
			t.Fatalf("snap[%d].ID = %q, want m%d", i, msg.ID, i)
		}
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	c := New()
	refs := []string{"https://x.test/a.png"}
	c.Append(models.Message{ID: "m1", MediaRefs: refs})
	refs[0] = "mutated"

	snap := c.Snapshot()
	snap[0].MediaRefs[0] = "also mutated"
	snap[0].Content = "changed"

	again := c.Snapshot()
	if again[0].MediaRefs[0] != "https://x.test/a.png" || again[0].Content != "" {
		t.Fatalf("stored message changed through aliasing: %+v", again[0])
	}
}

func TestOnAppendReceivesEveryMessage(t *testing.T) {
	c := New()
	var got []string
	c.OnAppend(func(m models.Message) {
		got = append(got, m.ID)
		// Listeners run outside the lock.
		_ = c.Len()
	})

	c.Append(models.Message{ID: "a"})
	c.Append(models.Message{ID: "b"})

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("listener saw %v, want [a b]", got)
	}
}

func TestConcurrentAppendsAreNeitherLostNorDuplicated(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Append(models.Message{ID: fmt.Sprintf("m%d", i)})
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, msg := range c.Snapshot() {
		if seen[msg.ID] {
			t.Fatalf("duplicate message %q", msg.ID)
		}
		seen[msg.ID] = true
	}
	if len(seen) != 50 {
		t.Fatalf("distinct messages = %d, want 50", len(seen))
	}
}
