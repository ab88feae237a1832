package camera

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"globe-notes/internal/country"
	"globe-notes/internal/country/countrytest"
	"globe-notes/internal/mapengine"
	"globe-notes/internal/overlay"

	"github.com/paulmach/orb"
)

var defaultOpts = Options{Zoom: 3, Duration: 200 * time.Millisecond, PanelWidthPx: 400, PanelMarginPx: 10}

func setup(t *testing.T, width int, loader *country.Loader) (*Composer, *mapengine.Scene) {
	t.Helper()
	ov := overlay.NewRenderer(loader)
	s := mapengine.NewScene(mapengine.SceneOptions{Width: width, Height: 800, Camera: mapengine.CameraState{Center: orb.Point{0, 20}, Zoom: 2.65, Pitch: 25}})
	ov.EnsureLayers(context.Background(), s)
	return NewComposer(loader, ov, nil), s
}

func TestRightPadding(t *testing.T) {
	cases := []struct {
		pw, pm, vw int
		want       float64
	}{
		{400, 10, 1280, 520},
		{400, 10, 300, 180},
		{400, 10, 100, 0},
		{400, 10, 0, 520},
		{100, 0, 0, 135},
		{401, 10, 2000, 521},
	}
	for _, c := range cases {
		if got := RightPadding(c.pw, c.pm, c.vw); got != c.want {
			t.Errorf("RightPadding(%d,%d,%d) = %v, want %v", c.pw, c.pm, c.vw, got, c.want)
		}
	}
}

func TestFocusOverrideCentersAtFixedZoom(t *testing.T) {
	c, s := setup(t, 1280, countrytest.Loader())
	res := c.Focus(context.Background(), s, "ent-country-FRA", defaultOpts)
	if !res.Resolved || res.ISO3 != "FRA" || res.Mode != ModeOverride || !res.Moved {
		t.Fatalf("result = %+v", res)
	}
	cam := s.Camera()
	if cam.Center != (orb.Point{2.5, 46.5}) || cam.Zoom != 3 {
		t.Fatalf("camera = %+v", cam)
	}
	if n := len(s.VisibleFeatures(overlay.FillID)); n != 1 {
		t.Fatalf("overlay shows %d features", n)
	}
}

func TestFocusFitsBoundsWithClampedPadding(t *testing.T) {
	c, s := setup(t, 300, countrytest.Loader())
	res := c.Focus(context.Background(), s, "Égypte", defaultOpts)
	if res.Mode != ModeFitBounds || !res.Moved {
		t.Fatalf("result = %+v", res)
	}
	moves := s.Moves()
	last := moves[len(moves)-1]
	if last.Op != "fitBounds" || last.Padding.Right > float64(300-120) {
		t.Fatalf("move = %+v", last)
	}
	if last.Padding.Top != EdgePadding || last.Padding.Left != EdgePadding || last.Padding.Bottom != EdgePadding {
		t.Fatalf("edge padding = %+v", last.Padding)
	}
}

func TestFocusFallsBackWhenFitFails(t *testing.T) {
	c, s := setup(t, 1280, countrytest.Loader())
	s.FailOn("fitBounds", errors.New("bad bbox"))
	_ = s.EaseTo(mapengine.CameraOptions{Zoom: ptr(6.0)})
	res := c.Focus(context.Background(), s, "EG", defaultOpts)
	if res.Mode != ModeFallback || !res.Moved {
		t.Fatalf("result = %+v", res)
	}
	if z := s.Camera().Zoom; z != 6 {
		t.Fatalf("zoom = %v, want current zoom kept above fallback", z)
	}

	_ = s.EaseTo(mapengine.CameraOptions{Zoom: ptr(1.0)})
	c.Focus(context.Background(), s, "israel", defaultOpts)
	if z := s.Camera().Zoom; z != FallbackZoom {
		t.Fatalf("zoom = %v, want %v", z, FallbackZoom)
	}
}

func TestFocusUnresolvedDoesNothing(t *testing.T) {
	c, s := setup(t, 1280, countrytest.Loader())
	before := len(s.Moves())
	res := c.Focus(context.Background(), s, "Atlantis", defaultOpts)
	if res.Resolved || res.Moved || res.Mode != ModeNone {
		t.Fatalf("result = %+v", res)
	}
	if len(s.Moves()) != before {
		t.Fatal("camera moved for an unresolved token")
	}
	l, _ := s.GetLayer(overlay.FillID)
	if l.Visibility() != mapengine.Hidden {
		t.Fatal("overlay shown for an unresolved token")
	}
}

func TestFocusNeverPanicsOnCameraFailure(t *testing.T) {
	c, s := setup(t, 1280, countrytest.Loader())
	s.FailOn("easeTo", errors.New("map destroyed"))
	res := c.Focus(context.Background(), s, "USA", defaultOpts)
	if !res.Resolved || res.Moved {
		t.Fatalf("result = %+v", res)
	}
}

func TestFocusSupersededByNewerRequest(t *testing.T) {
	hit := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case hit <- struct{}{}:
		default:
		}
		<-release
		_, _ = w.Write([]byte(countrytest.Dataset))
	}))
	defer srv.Close()

	loader := country.NewLoader(srv.URL, srv.Client())
	s := mapengine.NewScene(mapengine.SceneOptions{Width: 1280})
	c := NewComposer(loader, overlay.NewRenderer(loader), nil)
	var first, second FocusResult
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = c.Focus(context.Background(), s, "FRA", defaultOpts)
	}()
	<-hit
	wg.Add(1)
	go func() {
		defer wg.Done()
		second = c.Focus(context.Background(), s, "USA", defaultOpts)
	}()
	for c.seq.Load() < 2 {
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	if !first.Superseded || first.Moved {
		t.Fatalf("first = %+v", first)
	}
	if second.Superseded || second.ISO3 != "USA" || !second.Moved {
		t.Fatalf("second = %+v", second)
	}
	if s.Camera().Center != (orb.Point{-98.5, 39.5}) {
		t.Fatalf("camera = %+v", s.Camera())
	}
}

func ptr(f float64) *float64 { return &f }
