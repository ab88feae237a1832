package mapengine

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func TestFilterMatches(t *testing.T) {
	props := map[string]any{"ADM0_A3": "FRA", "ISO_A3": "FRA", "kind": "edge", "point_count": 3.0}
	cases := []struct {
		name string
		f    Filter
		want bool
	}{
		{"empty", nil, true},
		{"eq get", Eq(Get("ADM0_A3"), "FRA"), true},
		{"eq sentinel", Eq(Get("ADM0_A3"), "__NONE__"), false},
		{"coalesce skips missing", Eq(Coalesce("GU_A3", "ISO_A3"), "FRA"), true},
		{"coalesce all missing", Eq(Coalesce("GU_A3", "SOV_A3"), "FRA"), false},
		{"has", Has("point_count"), true},
		{"not has", Not(Has("point_count")), false},
		{"number", Eq(Get("point_count"), 3), true},
		{"all", Filter{"all", []any(Has("kind")), []any(Eq(Get("kind"), "edge"))}, true},
		{"unknown op", Filter{"within", "x"}, false},
	}
	for _, c := range cases {
		if got := c.f.Matches(props); got != c.want {
			t.Errorf("%s: Matches = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestSceneLayerOrderAndMove(t *testing.T) {
	s := NewScene(SceneOptions{})
	if err := s.AddSource("src", Source{Type: "geojson"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSource("src", Source{Type: "geojson"}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("duplicate source err = %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if err := s.AddLayer(Layer{ID: id, Type: "line", Source: "src"}, ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AddLayer(Layer{ID: "under", Type: "line", Source: "src"}, "b"); err != nil {
		t.Fatal(err)
	}
	if got := s.LayerOrder(); !reflect.DeepEqual(got, []string{"a", "under", "b", "c"}) {
		t.Fatalf("order = %v", got)
	}
	if err := s.MoveLayer("a", ""); err != nil {
		t.Fatal(err)
	}
	if got := s.LayerOrder(); !reflect.DeepEqual(got, []string{"under", "b", "c", "a"}) {
		t.Fatalf("order after move = %v", got)
	}
	if err := s.MoveLayer("missing", ""); !errors.Is(err, ErrNoSuchLayer) {
		t.Fatalf("move missing err = %v", err)
	}
	if err := s.AddLayer(Layer{ID: "x", Source: "nope"}, ""); !errors.Is(err, ErrNoSuchSource) {
		t.Fatalf("missing source err = %v", err)
	}
}

func TestSceneFitBounds(t *testing.T) {
	s := NewScene(SceneOptions{Width: 1000, Height: 600})
	b := orb.Bound{Min: orb.Point{-5, 42}, Max: orb.Point{8, 51}}
	if err := s.FitBounds(b, FitOptions{Padding: Padding{Top: 40, Left: 40, Bottom: 40, Right: 400}, Duration: 650 * time.Millisecond}); err != nil {
		t.Fatalf("FitBounds: %v", err)
	}
	cam := s.Camera()
	if cam.Center != b.Center() || cam.Zoom <= 0 {
		t.Fatalf("camera = %+v", cam)
	}
	moves := s.Moves()
	if len(moves) != 1 || moves[0].Op != "fitBounds" || moves[0].DurationMs != 650 || moves[0].Padding.Right != 400 {
		t.Fatalf("moves = %+v", moves)
	}

	point := orb.Bound{Min: orb.Point{2, 46}, Max: orb.Point{2, 46}}
	if err := s.FitBounds(point, FitOptions{}); !errors.Is(err, ErrDegenerateBounds) {
		t.Fatalf("degenerate err = %v", err)
	}
	if err := s.FitBounds(b, FitOptions{Padding: Padding{Left: 600, Right: 600}}); !errors.Is(err, ErrPaddingOverflow) {
		t.Fatalf("overflow err = %v", err)
	}
	if len(s.Moves()) != 1 {
		t.Fatal("failed fits must not move the camera")
	}
}

func TestSceneFeatureStateAndFaults(t *testing.T) {
	s := NewScene(SceneOptions{})
	ref := FeatureRef{Source: "notes", ID: "n1"}
	if err := s.SetFeatureState(ref, map[string]any{"dim": true}); !errors.Is(err, ErrNoSuchSource) {
		t.Fatalf("err = %v", err)
	}
	_ = s.AddSource("notes", Source{Type: "geojson"})
	_ = s.SetFeatureState(ref, map[string]any{"dim": true})
	_ = s.SetFeatureState(ref, map[string]any{"selected": true})
	if st := s.GetFeatureState(ref); st["dim"] != true || st["selected"] != true {
		t.Fatalf("state = %v", st)
	}

	boom := errors.New("style reloading")
	s.FailOn("setFeatureState", boom)
	if err := s.SetFeatureState(ref, map[string]any{"dim": false}); !errors.Is(err, boom) {
		t.Fatalf("fault err = %v", err)
	}
	s.FailOn("setFeatureState", nil)
	if err := s.SetFeatureState(ref, map[string]any{"dim": false}); err != nil {
		t.Fatal(err)
	}

	s.ReloadStyle()
	if s.SourceCount() != 0 || len(s.LayerOrder()) != 0 || len(s.GetFeatureState(ref)) != 0 {
		t.Fatal("style reload must drop sources, layers and feature state")
	}
}

func TestSceneVisibleFeaturesAndSnapshot(t *testing.T) {
	s := NewScene(SceneOptions{})
	fc := geojson.NewFeatureCollection()
	for _, c := range []string{"FRA", "USA"} {
		f := geojson.NewFeature(orb.Point{0, 0})
		f.Properties["ADM0_A3"] = c
		fc.Append(f)
	}
	_ = s.AddSource("countries", Source{Type: "geojson", Data: fc})
	_ = s.AddLayer(Layer{ID: "fill", Type: "fill", Source: "countries", Filter: Eq(Get("ADM0_A3"), "USA"),
		Layout: map[string]any{"visibility": Hidden}}, "")
	if n := len(s.VisibleFeatures("fill")); n != 0 {
		t.Fatalf("hidden layer shows %d features", n)
	}
	_ = s.SetLayoutProperty("fill", "visibility", Visible)
	got := s.VisibleFeatures("fill")
	if len(got) != 1 || got[0].Properties["ADM0_A3"] != "USA" {
		t.Fatalf("visible = %v", got)
	}

	b, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	var back SceneSnapshot
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if len(back.Layers) != 1 || back.Layers[0].Visibility != Visible || back.Sources[0].Features != 2 {
		t.Fatalf("snapshot = %s", b)
	}
}

type panicky struct{}

func (panicky) boom() error { panic("layer removed mid-call") }

func TestGuard(t *testing.T) {
	err := Guard("moveLayer", panicky{}.boom)
	if err == nil {
		t.Fatal("panic must become an error")
	}
	inner := errors.New("x")
	if err := Guard("setFilter", func() error { return inner }); !errors.Is(err, inner) {
		t.Fatalf("wrapped err = %v", err)
	}
	if err := Guard("noop", func() error { return nil }); err != nil {
		t.Fatal(err)
	}
}

func TestComputeArc(t *testing.T) {
	paris := orb.Point{2.35, 48.85}
	moscow := orb.Point{37.62, 55.75}
	g := ComputeArc(Arc{From: paris, To: moscow, HeightFactor: 0.18})
	if g.Color != DefaultArcColor || g.LateralFactor != DefaultLateral {
		t.Fatalf("defaults not applied: %+v", g.Arc)
	}
	if g.DistanceKm < 2400 || g.DistanceKm > 2550 {
		t.Fatalf("distance = %.0f km", g.DistanceKm)
	}
	apex := g.Controls[2].AltitudeM
	if apex != math.Max(800_000, g.DistanceKm*10_000*0.18) {
		t.Fatalf("apex altitude = %v", apex)
	}
	if g.Controls[0].AltitudeM != math.Max(150_000, apex*0.18) || g.Controls[1].AltitudeM != math.Max(300_000, apex*0.5) {
		t.Fatalf("altitudes = %+v", g.Controls)
	}
	if g.Controls[0].Point != paris || g.Controls[4].Point != moscow {
		t.Fatal("arc must start and end on the endpoints")
	}

	set := NewArcSet()
	_ = set.SetArcs([]Arc{{From: paris, To: moscow}, {From: moscow, To: paris}})
	if len(set.Arcs()) != 2 {
		t.Fatal("expected two arcs")
	}
	_ = set.Clear()
	if len(set.Arcs()) != 0 {
		t.Fatal("clear must drop arcs")
	}
}
