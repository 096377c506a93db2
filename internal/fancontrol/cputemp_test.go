package fancontrol

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseTempC(t *testing.T) {
	cases := map[string]float64{
		"52345\n": 52.345,
		"52":      52,
		"-5000":   -5,
	}
	for in, want := range cases {
		v, err := parseTempC(in)
		if err != nil {
			t.Fatalf("parseTempC(%q) err=%v", in, err)
		}
		if v != want {
			t.Fatalf("parseTempC(%q)=%v want %v", in, v, want)
		}
	}
	for _, bad := range []string{"\n", "warm"} {
		if _, err := parseTempC(bad); err == nil {
			t.Fatalf("parseTempC(%q) expected error", bad)
		}
	}
}

func TestReadTempC(t *testing.T) {
	p := filepath.Join(t.TempDir(), "temp")
	if err := os.WriteFile(p, []byte("42000\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	v, err := ReadTempC(p)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if v != 42.0 {
		t.Fatalf("v=%v want 42.0", v)
	}
	if _, err := ReadTempC(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func writeZone(t *testing.T, root, name, typ string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "type"), []byte(typ+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestFindCPUTempPath(t *testing.T) {
	root := t.TempDir()
	writeZone(t, root, "thermal_zone0", "acpitz")
	writeZone(t, root, "thermal_zone1", "x86_pkg_temp")
	writeZone(t, root, "thermal_zone2", "cpu-thermal")

	if got, want := FindCPUTempPath(root), filepath.Join(root, "thermal_zone2", "temp"); got != want {
		t.Fatalf("path=%q want %q", got, want)
	}
}

func TestFindCPUTempPath_FallsBackToZone0(t *testing.T) {
	root := t.TempDir()
	writeZone(t, root, "thermal_zone0", "acpitz")
	if got, want := FindCPUTempPath(root), filepath.Join(root, "thermal_zone0", "temp"); got != want {
		t.Fatalf("path=%q want %q", got, want)
	}
}
