package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenBucketRefillsEachSecond(t *testing.T) {
	now := time.Unix(1000, 0)
	tb := NewTokenBucket(2)
	tb.now = func() time.Time { return now }
	tb.lastSec = now.Unix()
	if !tb.allow() || !tb.allow() || tb.allow() {
		t.Fatal("bucket should allow exactly capacity requests per second")
	}
	now = now.Add(time.Second)
	if !tb.allow() {
		t.Fatal("bucket not refilled")
	}
}

func TestWrapRejectsOverLimit(t *testing.T) {
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), true, 1)
	codes := []int{}
	limited := false
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
		limited = limited || rec.Code == http.StatusTooManyRequests
	}
	if codes[0] != http.StatusOK || !limited {
		t.Fatalf("codes = %v", codes)
	}
}

func TestWrapInjectsEdgeGeo(t *testing.T) {
	var got EdgeGeo
	var ok bool
	h := Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = EdgeGeoFrom(r.Context())
	}), false, 0)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-EO-Geo-CountryCodeAlpha2", "fr")
	req.Header.Set("X-EO-Geo-CountryCodeAlpha3", "FRA")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !ok || got.Alpha2 != "FR" || got.Alpha3 != "FRA" {
		t.Fatalf("geo = %+v %v", got, ok)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("CF-IPCountry", "XX")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if ok {
		t.Fatal("unknown country should not be injected")
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("CF-IPCountry", "eg")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !ok || got.Alpha2 != "EG" {
		t.Fatalf("cloudflare geo = %+v", got)
	}
}
