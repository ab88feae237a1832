package geolocate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenRejectsNonDatabase(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Fatal("missing file should fail")
	}
	p := filepath.Join(t.TempDir(), "junk.mmdb")
	if err := os.WriteFile(p, []byte("not a maxmind database"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(p); err == nil {
		t.Fatal("junk file should fail")
	}
}

func TestLocateWithoutDatabase(t *testing.T) {
	var l *Locator
	if _, err := l.LocateISO2("8.8.8.8"); !errors.Is(err, ErrNoDB) {
		t.Fatalf("err = %v", err)
	}
	if _, err := l.LocateISO2("not-an-ip"); !errors.Is(err, ErrInvalidIP) {
		t.Fatalf("err = %v", err)
	}
	if l.Kind() != "" || l.Close() != nil {
		t.Fatal("nil locator should be inert")
	}
}

func TestIsGeoIP2Layout(t *testing.T) {
	cases := map[string]bool{
		"GeoLite2-Country":  true,
		"GeoIP2-City":       true,
		"DBIP-Country-Lite": true,
		"ipinfo_lite":       false,
		"GeoLite2-ASN":      false,
	}
	for in, want := range cases {
		if got := isGeoIP2Layout(in); got != want {
			t.Errorf("isGeoIP2Layout(%q) = %v", in, got)
		}
	}
}

func TestOpenMissingXDB(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "ip2region_v4.xdb")); err == nil {
		t.Fatal("missing xdb should fail")
	}
}

func TestXDBCountryISO2(t *testing.T) {
	cases := []struct{ region, want string }{
		{"中国|0|广东省|深圳市|电信", "CN"},
		{"法国|0|0|0|0", "FR"},
		{"us|0|California|0|0", "US"},
		{"0|0|0|内网IP|内网IP", ""},
		{"火星|0|0|0|0", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := xdbCountryISO2(c.region); got != c.want {
			t.Errorf("xdbCountryISO2(%q) = %q, want %q", c.region, got, c.want)
		}
	}
}
