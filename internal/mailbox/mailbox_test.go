package mailbox

import (
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLatestWins(t *testing.T) {
	m := New[int]()
	m.Put(1)
	m.Put(2)
	if !m.HasJob() {
		t.Fatal("HasJob() = false")
	}
	got, ok := m.Take()
	if !ok || got != 2 {
		t.Fatalf("Take() = %d, %v", got, ok)
	}
	if m.HasJob() {
		t.Fatal("slot not cleared")
	}
}

func TestTakeBlocksUntilPut(t *testing.T) {
	m := New[string]()
	got := make(chan string)
	go func() {
		j, _ := m.Take()
		got <- j
	}()

	select {
	case j := <-got:
		t.Fatalf("Take() returned %q before Put", j)
	case <-time.After(20 * time.Millisecond):
	}
	m.Put("run")
	if j := <-got; j != "run" {
		t.Fatalf("Take() = %q", j)
	}
}

func TestCloseReleasesTake(t *testing.T) {
	m := New[int]()
	done := make(chan bool)
	go func() {
		_, ok := m.Take()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	m.Close()
	if ok := <-done; ok {
		t.Fatal("Take() ok after Close")
	}
	if m.Put(3) {
		t.Fatal("Put() accepted after Close")
	}
	if _, ok := m.Take(); ok {
		t.Fatal("Take() ok on closed mailbox")
	}
}
