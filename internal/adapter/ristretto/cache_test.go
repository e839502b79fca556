package ristretto

import (
	"context"
	"testing"
	"time"
)

func TestCache_SetGetDelete(t *testing.T) {
	c, err := New(1 << 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	ctx := context.Background()

	if err := c.Set(ctx, "counts", []byte(`{"pending":2}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	c.Wait()

	got, ok, err := c.Get(ctx, "counts")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get: value not admitted")
	}
	if string(got) != `{"pending":2}` {
		t.Errorf("got %q", got)
	}

	if err := c.Delete(ctx, "counts"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	c.Wait()

	if _, ok, _ := c.Get(ctx, "counts"); ok {
		t.Error("value still present after Delete")
	}
}

func TestCache_MissingKey(t *testing.T) {
	c, err := New(1 << 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	_, ok, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("unexpected hit for absent key")
	}
}
