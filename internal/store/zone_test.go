package store

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/gyre/internal/geom"
	"github.com/ayusman/gyre/internal/gesture"
)

// newTestStore creates a Store backed by a database in a temp directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func zone(id string, x, y float64) gesture.ZoneConfig {
	return gesture.ZoneConfig{
		ID:     id,
		Center: geom.Point{X: x, Y: y},
		Radius: 60,
		Stroke: 4,
		Color:  "#ff0000",
		Volume: 0.8,
	}
}

func TestZoneRepository_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.Zones()

	z := zone("", 100, 200)
	z.AudioRef = "bell.mp3"
	if err := repo.Create(&z); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if z.ID == "" {
		t.Fatal("expected generated ID")
	}

	got, err := repo.GetByID(z.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if *got != z {
		t.Errorf("GetByID() = %+v, want %+v", *got, z)
	}

	if _, err := repo.GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	dup := zone(z.ID, 1, 1)
	if err := repo.Create(&dup); err == nil {
		t.Error("expected error for duplicate id")
	}
}

func TestZoneRepository_Defaults(t *testing.T) {
	s := newTestStore(t)

	z := gesture.ZoneConfig{Center: geom.Point{X: 10, Y: 10}, Radius: 30}
	if err := s.Zones().Create(&z); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if z.Stroke != DefaultStroke || z.Color != DefaultColor {
		t.Errorf("defaults not applied: %+v", z)
	}
}

func TestNormalize_Invalid(t *testing.T) {
	tests := []struct {
		name string
		z    gesture.ZoneConfig
	}{
		{"zero radius", gesture.ZoneConfig{ID: "a"}},
		{"negative stroke", gesture.ZoneConfig{ID: "a", Radius: 10, Stroke: -1}},
		{"volume above one", gesture.ZoneConfig{ID: "a", Radius: 10, Volume: 1.5}},
		{"negative volume", gesture.ZoneConfig{ID: "a", Radius: 10, Volume: -0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Normalize(&tt.z); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestZoneRepository_ListOrder(t *testing.T) {
	s := newTestStore(t)
	repo := s.Zones()

	for _, id := range []string{"c", "a", "b"} {
		z := zone(id, 0, 0)
		if err := repo.Create(&z); err != nil {
			t.Fatalf("Create(%s) error = %v", id, err)
		}
	}

	zones, err := repo.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var ids []string
	for _, z := range zones {
		ids = append(ids, z.ID)
	}
	if strings.Join(ids, ",") != "c,a,b" {
		t.Errorf("expected creation order c,a,b, got %v", ids)
	}
}

func TestZoneRepository_UpdateDelete(t *testing.T) {
	s := newTestStore(t)
	repo := s.Zones()

	z := zone("z1", 10, 20)
	if err := repo.Create(&z); err != nil {
		t.Fatal(err)
	}

	z.Radius = 90
	z.ImageRef = "swirl.gif"
	if err := repo.Update(&z); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ := repo.GetByID("z1")
	if got.Radius != 90 || got.ImageRef != "swirl.gif" {
		t.Errorf("update not persisted: %+v", got)
	}

	missing := zone("nope", 0, 0)
	if err := repo.Update(&missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := repo.Delete("z1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete("z1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSettingsRepository(t *testing.T) {
	s := newTestStore(t)
	repo := s.Settings()

	if _, err := repo.Get("theme"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := repo.Set("theme", "dark"); err != nil {
		t.Fatal(err)
	}
	if err := repo.Set("theme", "light"); err != nil {
		t.Fatal(err)
	}
	if v, _ := repo.Get("theme"); v != "light" {
		t.Errorf("Get() = %q", v)
	}

	empty, err := repo.Layout()
	if err != nil {
		t.Fatalf("Layout() error = %v", err)
	}
	if empty.Zoom != nil || empty.BackgroundColor != "" {
		t.Errorf("expected zero settings, got %+v", empty)
	}

	zoom, mirror := 1.4, false
	if err := repo.SaveLayout(Settings{BackgroundColor: "#101010", Zoom: &zoom, Mirror: &mirror}); err != nil {
		t.Fatal(err)
	}
	got, err := repo.Layout()
	if err != nil {
		t.Fatal(err)
	}
	if got.BackgroundColor != "#101010" || got.Zoom == nil || *got.Zoom != 1.4 || got.Mirror == nil || *got.Mirror {
		t.Errorf("unexpected settings %+v", got)
	}
}

func TestLayout_ExportImport(t *testing.T) {
	s := newTestStore(t)

	a, b := zone("a", 1, 1), zone("b", 2, 2)
	s.Zones().Create(&a)
	s.Zones().Create(&b)
	if err := s.Events().Record("a", "activate", time.Now()); err != nil {
		t.Fatal(err)
	}

	doc := `{"version":1,"circles":[
		{"id":"b","center":{"x":5,"y":6},"radius":40,"color":"#00ff00","volume":0.5},
		{"id":"a","center":{"x":7,"y":8},"radius":20,"volume":1},
		{"center":{"x":9,"y":9},"radius":10}
	],"settings":{"background_color":"#000000","depth_threshold_mm":900}}`

	l, err := DecodeLayout(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("DecodeLayout() error = %v", err)
	}
	if err := s.Import(l); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	out, err := s.Export()
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if out.Version != LayoutVersion || len(out.Circles) != 3 {
		t.Fatalf("unexpected export %+v", out)
	}
	if out.Circles[0].ID != "b" || out.Circles[1].ID != "a" {
		t.Errorf("import order not kept: %s, %s", out.Circles[0].ID, out.Circles[1].ID)
	}
	if out.Circles[0].Center.X != 5 || out.Circles[0].Radius != 40 {
		t.Errorf("zone b not updated: %+v", out.Circles[0])
	}
	if out.Circles[2].ID == "" {
		t.Error("expected generated id for third zone")
	}
	if out.Settings.DepthThresholdMM == nil || *out.Settings.DepthThresholdMM != 900 {
		t.Errorf("settings not imported: %+v", out.Settings)
	}

	if n, _ := s.Events().CountByZone("a"); n != 1 {
		t.Errorf("surviving zone lost its history, count = %d", n)
	}
}

func TestLayout_ImportRemovesMissingZones(t *testing.T) {
	s := newTestStore(t)
	a := zone("a", 1, 1)
	s.Zones().Create(&a)
	s.Events().Record("a", "activate", time.Now())

	if err := s.Import(&Layout{Version: 1}); err != nil {
		t.Fatal(err)
	}
	zones, _ := s.Zones().List()
	if len(zones) != 0 {
		t.Errorf("expected no zones, got %d", len(zones))
	}
	if events, _ := s.Events().Recent(10); len(events) != 0 {
		t.Errorf("expected history cascade-deleted, got %d", len(events))
	}
}

func TestDecodeLayout_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"garbage", `{`},
		{"future version", `{"version":99,"circles":[]}`},
		{"bad radius", `{"version":1,"circles":[{"id":"a","radius":0}]}`},
		{"duplicate ids", `{"version":1,"circles":[{"id":"a","radius":5},{"id":"a","radius":6}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeLayout(strings.NewReader(tt.doc)); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestEventRepository(t *testing.T) {
	s := newTestStore(t)
	z := zone("z", 0, 0)
	s.Zones().Create(&z)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Events().Record("z", "activate", base)
	s.Events().Record("z", "deactivate", base.Add(time.Second))
	s.Events().Record("z", "activate", base.Add(2*time.Second))

	events, err := s.Events().Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(events) != 2 || events[0].Kind != "activate" || events[1].Kind != "deactivate" {
		t.Errorf("unexpected events %+v", events)
	}
	if !events[0].At.Equal(base.Add(2 * time.Second)) {
		t.Errorf("timestamp = %v", events[0].At)
	}

	if n, _ := s.Events().CountByZone("z"); n != 2 {
		t.Errorf("CountByZone() = %d, want 2", n)
	}

	if err := s.Events().Record("ghost", "activate", base); err == nil {
		t.Error("expected foreign key violation for unknown zone")
	}
	if err := s.Events().Record("z", "explode", base); err == nil {
		t.Error("expected check violation for unknown kind")
	}
}
