package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"mentorledger/internal/amqp"
	"mentorledger/internal/cache"
	"mentorledger/internal/core"
)

func TestOverdueProcessor_Process(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.create(t, 30000, 3, core.NewDate(2024, 1, 15))
	if _, err := f.svc.ToggleInstallmentStatus(ctx, s.Installments[0].ID, 0); err != nil {
		t.Fatal(err)
	}

	clock := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	pub := &recordingPublisher{}
	p := NewOverdueProcessor(f.store, pub, 24*time.Hour, cache.WithClock(func() time.Time { return clock }))

	n, err := p.Process(ctx, clock)
	if err != nil {
		t.Fatal(err)
	}
	// installment 1 is paid, 2 is overdue, 3 is due 2024-03-15
	if n != 1 {
		t.Fatalf("published = %d, want 1", n)
	}
	if pub.events[0].Type != amqp.EventInstallmentOverdue || pub.events[0].InstallmentID != s.Installments[1].ID {
		t.Errorf("unexpected event %+v", pub.events[0])
	}

	tests := []struct {
		name    string
		advance time.Duration
		want    int
	}{
		{"same window is deduplicated", time.Hour, 0},
		{"next window reminds again", 24 * time.Hour, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock = clock.Add(tt.advance)
			n, err := p.Process(ctx, clock)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.want {
				t.Errorf("published = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestOverdueProcessor_PublishFailureRetriesNextRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, 10000, 1, core.NewDate(2024, 1, 15))

	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	pub := &recordingPublisher{err: errors.New("broker down")}
	p := NewOverdueProcessor(f.store, pub, 24*time.Hour)

	if n, err := p.Process(ctx, now); err != nil || n != 0 {
		t.Fatalf("failed publish: n=%d err=%v", n, err)
	}
	pub.err = nil
	if n, _ := p.Process(ctx, now); n != 1 {
		t.Errorf("reminder should be retried after a failed publish, published %d", n)
	}
}

func TestOverdueProcessor_NilPublisher(t *testing.T) {
	f := newFixture(t)
	p := NewOverdueProcessor(f.store, nil, time.Hour)
	if n, err := p.Process(context.Background(), time.Now()); err != nil || n != 0 {
		t.Errorf("n=%d err=%v", n, err)
	}
	if _, err := NewOverdueProcessor(nil, nil, time.Hour).Process(context.Background(), time.Now()); err == nil {
		t.Error("processor without store should fail")
	}
}
