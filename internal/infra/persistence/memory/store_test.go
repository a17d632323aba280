package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"eggjnd/pkg/domain"
)

func TestStoreSaveGetList(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	recs := []domain.RunRecord{
		{ID: "b", RunID: "r1", Group: "cuckoo", CreatedAt: base},
		{ID: "a", RunID: "r1", Group: "host", CreatedAt: base},
		{ID: "c", RunID: "r2", Group: "host", CreatedAt: base.Add(-time.Minute)},
	}
	for _, r := range recs {
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("save %s: %v", r.ID, err)
		}
	}
	all, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[1].ID != "a" || all[2].ID != "b" {
		t.Fatalf("unexpected order %+v", all)
	}
	r1, _ := s.List(ctx, "r1")
	if len(r1) != 2 {
		t.Fatalf("expected 2 records for r1, got %d", len(r1))
	}

	got, err := s.Get(ctx, "a")
	if err != nil || got.Group != "host" {
		t.Fatalf("get: %+v %v", got, err)
	}
	if _, err := s.Get(ctx, "zzz"); !errors.As(err, new(domain.ErrNotFound)) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreCopiesRecords(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	rec := domain.RunRecord{ID: "x", Stages: []domain.StageOutcome{{Stage: domain.StagePreprocess, Artifacts: []string{"k1"}}}}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec.Stages[0].Artifacts[0] = "mutated"
	got, _ := s.Get(ctx, "x")
	if got.Stages[0].Artifacts[0] != "k1" {
		t.Fatalf("store shares caller slices")
	}
	got.Stages[0].Artifacts[0] = "again"
	again, _ := s.Get(ctx, "x")
	if again.Stages[0].Artifacts[0] != "k1" {
		t.Fatalf("store shares returned slices")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}
