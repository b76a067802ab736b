package stage

import (
	"context"
	"testing"
)

type fakeStage struct {
	name      string
	available bool
	loaded    bool
}

func (f *fakeStage) Name() string                       { return f.name }
func (f *fakeStage) IsAvailable(context.Context) bool   { return f.available }
func (f *fakeStage) IsLoaded(context.Context) bool      { return f.loaded }
func (f *fakeStage) Load(context.Context, any) error    { return nil }
func (f *fakeStage) Process(context.Context, ProcessRequest) (ProcessResult, error) {
	return ProcessResult{}, nil
}

type fakeReclaimStage struct {
	fakeStage
	reclaimed int
}

func (f *fakeReclaimStage) Reclaim(context.Context) error {
	f.reclaimed++
	return nil
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(&fakeStage{name: "svc"}, &fakeStage{name: "svc"})
	if err == nil {
		t.Fatal("expected duplicate stage name to be rejected")
	}
}

func TestNewRegistryRejectsEmptyName(t *testing.T) {
	_, err := NewRegistry(&fakeStage{name: ""})
	if err == nil {
		t.Fatal("expected empty stage name to be rejected")
	}
}

func TestRegistryLookup(t *testing.T) {
	svc := &fakeStage{name: "svc"}
	r, err := NewRegistry(&fakeStage{name: "swiftf0"}, svc)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	got, ok := r.Get("svc")
	if !ok || got != svc {
		t.Errorf("Get(svc) = %v, %v", got, ok)
	}
	if _, ok := r.Get("reverb"); ok {
		t.Error("Get(unknown) reported a hit")
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "swiftf0" || names[1] != "svc" {
		t.Errorf("Names() = %v, want registration order", names)
	}
}

func TestRegistryHealthSortedByName(t *testing.T) {
	r, err := NewRegistry(
		&fakeStage{name: "svc", available: true, loaded: true},
		&fakeStage{name: "instrumental", available: false},
		&fakeStage{name: "mixing", available: true},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	health := r.Health(context.Background())
	if len(health) != 3 {
		t.Fatalf("health entries = %d", len(health))
	}
	wantOrder := []string{"instrumental", "mixing", "svc"}
	for i, h := range health {
		if h.Stage != wantOrder[i] {
			t.Errorf("health[%d].Stage = %s, want %s", i, h.Stage, wantOrder[i])
		}
	}
	if health[0].Available || health[2].Available != true || health[2].Loaded != true {
		t.Errorf("health flags wrong: %+v", health)
	}
}

func TestRegistryReclaimers(t *testing.T) {
	a := &fakeReclaimStage{fakeStage: fakeStage{name: "svc"}}
	b := &fakeStage{name: "mixing"}
	c := &fakeReclaimStage{fakeStage: fakeStage{name: "instrumental"}}

	r, err := NewRegistry(a, b, c)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	recs := r.Reclaimers()
	if len(recs) != 2 {
		t.Fatalf("reclaimers = %d, want 2", len(recs))
	}
	for _, rec := range recs {
		if err := rec.Reclaim(context.Background()); err != nil {
			t.Fatalf("Reclaim: %v", err)
		}
	}
	if a.reclaimed != 1 || c.reclaimed != 1 {
		t.Errorf("reclaim counts: svc=%d instrumental=%d", a.reclaimed, c.reclaimed)
	}
}
