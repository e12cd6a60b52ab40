package pack

import (
	"context"
	"testing"
	"time"
)

func TestEngine_IngestProducesTelemetry(t *testing.T) {
	e := NewEngine(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	s := baselineSnapshot()
	s.TimestampMs = 1000
	e.Ingest(s)

	select {
	case tel, ok := <-e.Telemetry():
		if !ok {
			t.Fatal("telemetry channel closed before any record was published")
		}
		if tel.SystemState != StateNormal {
			t.Fatalf("want NORMAL for a nominal snapshot, got %s", tel.SystemState)
		}
		if tel.SequenceNum != 1 {
			t.Fatalf("want sequence 1 for the first published record, got %d", tel.SequenceNum)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for telemetry")
	}
}

func TestEngine_QueueOverflowDropsNewest(t *testing.T) {
	e := NewEngine(nil)
	// Fill the snapshot queue directly without starting the processing
	// goroutine, so nothing drains it.
	for i := 0; i < queueCapacity; i++ {
		e.Ingest(baselineSnapshot())
	}
	e.Ingest(baselineSnapshot()) // the (queueCapacity+1)th is dropped

	e.countersMu.Lock()
	overflow := e.counters.QueueOverflow
	e.countersMu.Unlock()
	if overflow != 1 {
		t.Fatalf("want 1 overflow counted, got %d", overflow)
	}
}

func TestEngine_SourceResetOnDecreasingTimestamp(t *testing.T) {
	e := NewEngine(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	s1 := baselineSnapshot()
	s1.TimestampMs = 5000
	e.Ingest(s1)
	if _, ok := <-e.Telemetry(); !ok {
		t.Fatal("expected first telemetry record")
	}

	s2 := baselineSnapshot()
	s2.TimestampMs = 1000 // earlier than s1: a source reset
	e.Ingest(s2)
	if _, ok := <-e.Telemetry(); !ok {
		t.Fatal("expected second telemetry record")
	}

	e.countersMu.Lock()
	reset := e.counters.SourceReset
	e.countersMu.Unlock()
	if reset != 1 {
		t.Fatalf("want 1 source reset counted, got %d", reset)
	}
}

func TestEngine_OnSourceResetCallback(t *testing.T) {
	e := NewEngine(nil)
	var gotPrev, gotNew int64
	called := make(chan struct{}, 1)
	e.OnSourceReset(func(prevMs, newMs int64) {
		gotPrev, gotNew = prevMs, newMs
		called <- struct{}{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	s1 := baselineSnapshot()
	s1.TimestampMs = 5000
	e.Ingest(s1)
	<-e.Telemetry()

	s2 := baselineSnapshot()
	s2.TimestampMs = 1000
	e.Ingest(s2)
	<-e.Telemetry()

	select {
	case <-called:
		if gotPrev != 5000 || gotNew != 1000 {
			t.Fatalf("want reset callback with (5000, 1000), got (%d, %d)", gotPrev, gotNew)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnSourceReset callback")
	}
}

func TestEngine_StopClosesTelemetryChannel(t *testing.T) {
	e := NewEngine(nil)
	ctx := context.Background()
	e.Start(ctx)
	e.Stop()

	select {
	case <-e.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for Done()")
	}

	_, ok := <-e.Telemetry()
	if ok {
		t.Fatal("want the telemetry channel closed after Stop")
	}
}

func TestEngine_HealthCallbackReportsQueueDepth(t *testing.T) {
	healthCh := make(chan HealthRecord, 4)
	e := NewEngine(func(h HealthRecord) { healthCh <- h })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	select {
	case h := <-healthCh:
		if !h.Running {
			t.Fatal("want Running true while the engine is active")
		}
		if h.QueueDepth != 0 {
			t.Fatalf("want queue depth 0 with nothing ingested, got %d", h.QueueDepth)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a health record")
	}
}
