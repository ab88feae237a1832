package overlay

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"globe-notes/internal/country"
	"globe-notes/internal/country/countrytest"
	"globe-notes/internal/mapengine"

	"github.com/paulmach/orb/geojson"
)

func newScene(t *testing.T, r *Renderer) *mapengine.Scene {
	t.Helper()
	s := mapengine.NewScene(mapengine.SceneOptions{})
	r.EnsureLayers(context.Background(), s)
	return s
}

func assertHidden(t *testing.T, s *mapengine.Scene) {
	t.Helper()
	for _, id := range []string{FillID, OutlineID} {
		l, ok := s.GetLayer(id)
		if !ok {
			t.Fatalf("layer %s missing", id)
		}
		if l.Visibility() != mapengine.Hidden {
			t.Fatalf("%s visibility = %s", id, l.Visibility())
		}
		if !l.Filter.Equal(NoneFilter()) {
			t.Fatalf("%s filter = %v", id, l.Filter)
		}
	}
}

func TestEnsureLayersIdempotent(t *testing.T) {
	r := NewRenderer(countrytest.Loader())
	s := newScene(t, r)
	r.EnsureLayers(context.Background(), s)
	r.EnsureLayers(context.Background(), s)
	if s.SourceCount() != 1 {
		t.Fatalf("sources = %d, want 1", s.SourceCount())
	}
	if got := s.LayerOrder(); !reflect.DeepEqual(got, []string{FillID, OutlineID}) {
		t.Fatalf("layers = %v", got)
	}
	assertHidden(t, s)
	src, _ := s.GetSource(SourceID)
	if src.Data == nil || len(src.Data.Features) != 5 {
		t.Fatal("overlay source must carry the dataset features")
	}
}

func TestShowThenHideRoundTrip(t *testing.T) {
	r := NewRenderer(countrytest.Loader())
	s := newScene(t, r)
	r.Show(s, "FRA")
	for _, id := range []string{FillID, OutlineID} {
		got := s.VisibleFeatures(id)
		if len(got) != 1 || got[0].Properties["ADM0_A3"] != "FRA" {
			t.Fatalf("%s shows %v", id, got)
		}
	}
	r.Hide(s)
	assertHidden(t, s)
	if n := len(s.VisibleFeatures(FillID)); n != 0 {
		t.Fatalf("hidden fill shows %d features", n)
	}
}

func TestShowEmptyIsNoop(t *testing.T) {
	r := NewRenderer(countrytest.Loader())
	s := newScene(t, r)
	r.Show(s, "")
	assertHidden(t, s)
}

func TestBringToFrontWithoutLayers(t *testing.T) {
	r := NewRenderer(countrytest.Loader())
	s := mapengine.NewScene(mapengine.SceneOptions{})
	r.BringToFront(s)
	if len(s.LayerOrder()) != 0 {
		t.Fatal("BringToFront must not create layers")
	}

	r.EnsureLayers(context.Background(), s)
	_ = s.AddSource("notes", mapengine.Source{Type: "geojson"})
	_ = s.AddLayer(mapengine.Layer{ID: "clusters", Type: "circle", Source: "notes"}, "")
	r.BringToFront(s)
	if got := s.LayerOrder(); !reflect.DeepEqual(got, []string{"clusters", FillID, OutlineID}) {
		t.Fatalf("order = %v", got)
	}
}

func TestLayerFailuresAreSwallowed(t *testing.T) {
	r := NewRenderer(countrytest.Loader())
	s := newScene(t, r)
	boom := errors.New("layer removed by style reload")
	s.FailOn("setFilter", boom)
	s.FailOn("moveLayer", boom)
	r.Show(s, "USA")
	r.BringToFront(s)
	l, _ := s.GetLayer(FillID)
	if l.Visibility() != mapengine.Visible {
		t.Fatal("visibility should still be applied after a filter failure")
	}
	s.FailOn("setFilter", nil)
	r.Hide(s)
	assertHidden(t, s)
}

func TestEnsureLayersFillsSourceOnceDatasetLoads(t *testing.T) {
	broken := country.NewLoader("/nonexistent/countries.geojson", nil)
	r := NewRenderer(broken)
	s := newScene(t, r)
	src, ok := s.GetSource(SourceID)
	if !ok || (src.Data != nil && len(src.Data.Features) != 0) {
		t.Fatalf("source = %+v", src)
	}
	r.Show(s, "FRA")
	if n := len(s.VisibleFeatures(FillID)); n != 0 {
		t.Fatalf("no dataset, yet %d features shown", n)
	}

	r2 := NewRenderer(countrytest.Loader())
	r2.EnsureLayers(context.Background(), s)
	if n := len(s.VisibleFeatures(FillID)); n != 1 {
		t.Fatalf("after dataset load, fill shows %d", n)
	}
}

func TestShowMatchesCanonicalCode(t *testing.T) {
	raw := `{"type":"FeatureCollection","features":[
	 {"type":"Feature","properties":{"ISO_A3":"-99","GU_A3":"KOS","ISO2":"XK","NAME":"Kosovo"},"geometry":{"type":"Point","coordinates":[0,0]}},
	 {"type":"Feature","properties":{"ISO3_CODE":"nor","ISO_2":"no","ADMIN":"Norway"},"geometry":{"type":"Point","coordinates":[0,0]}},
	 {"type":"Feature","properties":{"NAME":"Nowhere"},"geometry":{"type":"Point","coordinates":[0,0]}}
	]}`
	fc, err := geojson.UnmarshalFeatureCollection([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	idx := country.Build(fc, "test")
	r := NewRenderer(country.NewStaticLoader(idx))
	s := newScene(t, r)

	cases := []struct{ token, name string }{
		{"kosovo", "Kosovo"},
		{"norway", "Norway"},
		{"NO", "Norway"},
	}
	for _, c := range cases {
		iso3, ok := country.Resolve(idx, c.token)
		if !ok {
			t.Fatalf("Resolve(%q) failed", c.token)
		}
		r.Show(s, iso3)
		for _, id := range []string{FillID, OutlineID} {
			got := s.VisibleFeatures(id)
			if len(got) != 1 || country.FeatureName(got[0].Properties) != c.name {
				t.Fatalf("%s for %q shows %v", id, c.token, got)
			}
		}
	}
	if _, ok := idx.Features()[0].Properties[CodeProperty]; ok {
		t.Fatal("index features must not be modified")
	}
}
