package constellation

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"globe-notes/internal/camera"
	"globe-notes/internal/country/countrytest"
	"globe-notes/internal/mapengine"
	"globe-notes/internal/notes"
	"globe-notes/internal/overlay"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var testNotes = []notes.Note{
	{ID: "evt-camp-david", Lon: -77.46, Lat: 39.65},
	{ID: "evt-suez", Lon: 32.55, Lat: 29.97},
	{ID: "evt-cia", Lon: 10, Lat: 50},
	{ID: "evt-nowhere"},
	{ID: "evt-broken", Lon: 1, Lat: 1},
	{ID: "evt-plain", Lon: 2, Lat: 2},
}

var testDocs = map[string]string{
	"evt-camp-david": "---\ntitle: Camp David\nentities: [Egypte, Israël, USA, Sadate, CIA]\n---\ncorps",
	"evt-suez":       "---\nentities:\n  - Égypte\n  - URSS\n---\ncorps",
	"evt-cia":        "---\nentities: CIA\n---\n",
	"evt-nowhere":    "---\nentities: [KGB, Atlantis]\n---\n",
	"evt-plain":      "pas de front-matter",
}

type countingFetcher struct {
	calls atomic.Int32
}

func (f *countingFetcher) Fetch(_ context.Context, id string) (string, error) {
	f.calls.Add(1)
	md, ok := testDocs[id]
	if !ok {
		return "", notes.ErrFetchStatus
	}
	return md, nil
}

type recordingStats struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingStats) IncrFocus(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

type fixture struct {
	linker *Linker
	scene  *mapengine.Scene
	arcs   *mapengine.ArcSet
	stats  *recordingStats
}

func newFixture(t *testing.T, idx *EntityIndex) fixture {
	t.Helper()
	cat := notes.NewCatalog(testNotes)
	s := mapengine.NewScene(mapengine.SceneOptions{Camera: mapengine.CameraState{Center: orb.Point{0, 20}, Zoom: 2.65, Pitch: 25}})
	fc := geojson.NewFeatureCollection()
	for _, n := range cat.All() {
		if n.HasCoords {
			f := geojson.NewFeature(n.Point())
			f.ID = n.ID
			f.Properties["id"] = n.ID
			fc.Append(f)
		}
	}
	if err := s.AddSource(notes.SourceID, mapengine.Source{Type: "geojson", Data: fc, Cluster: true, PromoteID: "id"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddLayer(mapengine.Layer{ID: notes.ClustersLayerID, Type: "circle", Source: notes.SourceID}, ""); err != nil {
		t.Fatal(err)
	}
	loader := countrytest.Loader()
	ov := overlay.NewRenderer(loader)
	ov.EnsureLayers(context.Background(), s)
	arcs := mapengine.NewArcSet()
	stats := &recordingStats{}
	if idx == nil {
		idx = NewEntityIndex(cat, &countingFetcher{}, 3)
	}
	l := NewLinker(Deps{
		Map: s, Arcs: arcs, Overlay: ov, Composer: camera.NewComposer(loader, ov, nil),
		Catalog: cat, Index: idx, Stats: stats,
	}, DefaultOptions())
	l.EnsureFocusLayers()
	return fixture{linker: l, scene: s, arcs: arcs, stats: stats}
}

func TestNormalizeEntityLabel(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Égypte", "ent-country-egypte", true},
		{" Israël ", "ent-country-israel", true},
		{"israel", "ent-country-israel", true},
		{"SADATE", "ent-person-anouar-al-sadate", true},
		{"Anouar al Sadate", "ent-person-anouar-al-sadate", true},
		{"URSS", "ent-country-urss", true},
		{"ent-place-sinai", "ent-place-sinai", true},
		{"Atlantis", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := NormalizeEntityLabel(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("NormalizeEntityLabel(%q) = %q,%v", c.in, got, c.ok)
		}
	}
}

func TestEntityIndexScansEachNoteOnce(t *testing.T) {
	f := &countingFetcher{}
	idx := NewEntityIndex(notes.NewCatalog(testNotes), f, 2)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx.EnsureFilled(context.Background(), "ent-country-egypte")
		}()
	}
	wg.Wait()
	got := idx.EnsureFilled(context.Background(), "ent-country-egypte")
	if want := []string{"evt-camp-david", "evt-suez"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("linked = %v", got)
	}
	if n := f.calls.Load(); n != int32(len(testNotes)) {
		t.Fatalf("fetches = %d, want %d", n, len(testNotes))
	}
	if idx.Scanned() != len(testNotes) {
		t.Fatalf("scanned = %d", idx.Scanned())
	}
	ents := idx.Entities()
	if ents["ent-org-cia"] != 2 || ents["ent-org-kgb"] != 1 || ents["ent-country-urss"] != 1 {
		t.Fatalf("entities = %v", ents)
	}
}

func TestCountryConstellation(t *testing.T) {
	fx := newFixture(t, nil)
	res := fx.linker.ShowEntityConstellation(context.Background(), "ent-country-egypte")
	if res.State != StateCountryFocused || res.ISO3 != "EGY" || !res.Framed {
		t.Fatalf("result = %+v", res)
	}
	if fx.linker.FocusedCountry() != "ent-country-egypte" || fx.linker.State() != StateCountryFocused {
		t.Fatalf("state = %v %q", fx.linker.State(), fx.linker.FocusedCountry())
	}
	if n := len(fx.scene.VisibleFeatures(overlay.FillID)); n != 1 {
		t.Fatalf("overlay features = %d", n)
	}
	if n := len(fx.scene.VisibleFeatures(PointLayerID)); n != 1 {
		t.Fatalf("origin features = %d", n)
	}
	src, _ := fx.scene.GetSource(FocusSourceID)
	if len(src.Data.Features) != 3 {
		t.Fatalf("focus features = %d", len(src.Data.Features))
	}
	for _, m := range fx.scene.Moves() {
		if m.Op == "fitBounds" && m.DurationMs == 650 {
			t.Fatal("constellation refit after the country framed the camera")
		}
	}
	if p := fx.scene.Camera().Pitch; p != 55 {
		t.Fatalf("pitch = %v", p)
	}
	dim := func(id string) any {
		return fx.scene.GetFeatureState(mapengine.FeatureRef{Source: notes.SourceID, ID: id})["dim"]
	}
	if dim("evt-cia") != true || dim("evt-suez") != false || dim("evt-camp-david") != false {
		t.Fatalf("dim = %v %v %v", dim("evt-cia"), dim("evt-suez"), dim("evt-camp-david"))
	}
	arcs := fx.arcs.Arcs()
	if len(arcs) != 2 || arcs[0].Color != "#db6402" || arcs[0].HeightFactor != 0.18 {
		t.Fatalf("arcs = %+v", arcs)
	}
	if l, _ := fx.scene.GetLayer(LinksLayerID); l.Visibility() != mapengine.Hidden {
		t.Fatal("2D links should yield to 3D arcs")
	}
	if len(fx.stats.ids) != 1 {
		t.Fatalf("stats = %v", fx.stats.ids)
	}
}

func TestFreeConstellationFitsLinks(t *testing.T) {
	fx := newFixture(t, nil)
	fx.linker.ShowEntityConstellation(context.Background(), "ent-country-egypte")
	res := fx.linker.ShowEntityConstellation(context.Background(), "ent-org-cia")
	if res.State != StateFreeFocused || res.Framed || fx.linker.FocusedCountry() != "" {
		t.Fatalf("result = %+v", res)
	}
	lon1, lon2, lat1, lat2 := -77.46, 10.0, 39.65, 50.0
	if want := (orb.Point{(lon1 + lon2) / 2, (lat1 + lat2) / 2}); *res.Origin != want {
		t.Fatalf("origin = %v, want %v", *res.Origin, want)
	}
	if l, _ := fx.scene.GetLayer(overlay.FillID); l.Visibility() != mapengine.Hidden {
		t.Fatal("overlay left visible for a non-country entity")
	}
	moves := fx.scene.Moves()
	var fit *mapengine.CameraMove
	for i := range moves {
		if moves[i].Op == "fitBounds" && moves[i].DurationMs == 650 {
			fit = &moves[i]
		}
	}
	if fit == nil || fit.Padding.Right != 520 || fit.Padding.Top != 40 {
		t.Fatalf("fit = %+v", fit)
	}
	if fx.scene.Camera().Pitch < 55 {
		t.Fatalf("pitch = %v", fx.scene.Camera().Pitch)
	}
}

func TestConstellationWithoutCoordinatesFallsBack(t *testing.T) {
	fx := newFixture(t, nil)
	res := fx.linker.ShowEntityConstellation(context.Background(), "ent-org-kgb")
	if res.State != StateFreeFocused || *res.Origin != (orb.Point{0, 20}) {
		t.Fatalf("result = %+v", res)
	}
	cam := fx.scene.Camera()
	if cam.Zoom != camera.FallbackZoom || cam.Center != (orb.Point{0, 20}) || cam.Pitch != 55 {
		t.Fatalf("camera = %+v", cam)
	}
}

func TestZeroLinkedMatchesClear(t *testing.T) {
	idx := NewEntityIndex(notes.NewCatalog(testNotes), &countingFetcher{}, 2)
	a, b := newFixture(t, idx), newFixture(t, idx)
	a.linker.ShowEntityConstellation(context.Background(), "ent-country-egypte")
	b.linker.ShowEntityConstellation(context.Background(), "ent-country-egypte")

	res := a.linker.ShowEntityConstellation(context.Background(), "ent-org-unknown")
	b.linker.ClearEntityFocus()
	if res.State != StateCleared || a.linker.State() != StateCleared || b.linker.State() != StateIdle {
		t.Fatalf("states = %v %v %v", res.State, a.linker.State(), b.linker.State())
	}
	sa, sb := a.scene.Snapshot(), b.scene.Snapshot()
	if !reflect.DeepEqual(sa.Layers, sb.Layers) || !reflect.DeepEqual(sa.Sources, sb.Sources) || !reflect.DeepEqual(sa.FeatureState, sb.FeatureState) {
		t.Fatalf("zero-linked scene differs from cleared scene\n%+v\n%+v", sa.Layers, sb.Layers)
	}
	if len(a.arcs.Arcs()) != 0 || a.linker.FocusedCountry() != "" {
		t.Fatal("arcs or focused country survived")
	}
	if len(a.stats.ids) != 1 {
		t.Fatalf("zero-linked request counted: %v", a.stats.ids)
	}
}

type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingFetcher) Fetch(ctx context.Context, id string) (string, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	md, ok := testDocs[id]
	if !ok {
		return "", errors.New("missing")
	}
	return md, nil
}

func TestClearSupersedesPendingConstellation(t *testing.T) {
	bf := &blockingFetcher{started: make(chan struct{}, 1), release: make(chan struct{})}
	fx := newFixture(t, NewEntityIndex(notes.NewCatalog(testNotes), bf, 1))
	done := make(chan Result)
	go func() { done <- fx.linker.ShowEntityConstellation(context.Background(), "ent-org-cia") }()
	<-bf.started
	fx.linker.ClearEntityFocus()
	close(bf.release)
	res := <-done
	if !res.Superseded || fx.linker.State() != StateIdle {
		t.Fatalf("result = %+v, state = %v", res, fx.linker.State())
	}
	src, _ := fx.scene.GetSource(FocusSourceID)
	if len(src.Data.Features) != 0 || len(fx.arcs.Arcs()) != 0 {
		t.Fatal("superseded request drew visuals")
	}
}

func TestRequestDuringScanWaitsForScan(t *testing.T) {
	bf := &blockingFetcher{started: make(chan struct{}, 1), release: make(chan struct{})}
	fx := newFixture(t, NewEntityIndex(notes.NewCatalog(testNotes), bf, 1))
	first := make(chan Result)
	go func() { first <- fx.linker.ShowEntityConstellation(context.Background(), "ent-org-cia") }()
	<-bf.started

	second := make(chan Result)
	go func() { second <- fx.linker.ShowEntityConstellation(context.Background(), "ent-country-egypte") }()
	time.Sleep(20 * time.Millisecond)
	close(bf.release)

	res := <-second
	if res.State != StateCountryFocused || !reflect.DeepEqual(res.Linked, []string{"evt-camp-david", "evt-suez"}) {
		t.Fatalf("second = %+v", res)
	}
	<-first
	if fx.linker.State() != StateCountryFocused {
		t.Fatalf("state = %v", fx.linker.State())
	}
}

type docFetcher map[string]string

func (d docFetcher) Fetch(_ context.Context, id string) (string, error) {
	md, ok := d[id]
	if !ok {
		return "", notes.ErrFetchStatus
	}
	return md, nil
}

func TestUnresolvedCountryHidesPreviousOverlay(t *testing.T) {
	docs := docFetcher{
		"evt-camp-david": "---\nentities: [Egypte]\n---\n",
		"evt-suez":       "---\nentities: [ent-country-atlantide]\n---\n",
	}
	fx := newFixture(t, NewEntityIndex(notes.NewCatalog(testNotes), docs, 2))
	ctx := context.Background()
	fx.linker.ShowEntityConstellation(ctx, "ent-country-egypte")
	if n := len(fx.scene.VisibleFeatures(overlay.FillID)); n != 1 {
		t.Fatalf("egypt overlay features = %d", n)
	}

	res := fx.linker.ShowEntityConstellation(ctx, "ent-country-atlantide")
	if res.State != StateCountryFocused || res.ISO3 != "" || res.Origin == nil {
		t.Fatalf("result = %+v", res)
	}
	if n := len(fx.scene.VisibleFeatures(overlay.FillID)); n != 0 {
		t.Fatalf("stale overlay still shows %d features", n)
	}
	if fx.linker.FocusedCountry() != "ent-country-atlantide" {
		t.Fatalf("focused = %q", fx.linker.FocusedCountry())
	}
}

func TestFocusLayersSitBelowClusters(t *testing.T) {
	fx := newFixture(t, nil)
	fx.linker.EnsureFocusLayers()
	order := fx.scene.LayerOrder()
	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}
	if len(order) != 5 || pos[LinksLayerID] > pos[notes.ClustersLayerID] || pos[PointLayerID] > pos[notes.ClustersLayerID] {
		t.Fatalf("order = %v", order)
	}
}
