package buildinfo

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version == "" || info.Commit == "" || info.BuildTime == "" || info.GoVersion == "" {
		t.Errorf("Get() has empty fields: %+v", info)
	}
}

func TestFillFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v1.2.3"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	tests := []struct {
		name        string
		start       Info
		wantVersion string
		wantCommit  string
	}{
		{"fills unset values", Info{Version: "dev"}, "v1.2.3", "0123456789abcdef"},
		{"ldflags win", Info{Version: "v9.0.0", Commit: "feedface"}, "v9.0.0", "feedface"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tt.start
			fillFromBuildInfo(&info, bi)
			if info.Version != tt.wantVersion {
				t.Errorf("Version = %q, want %q", info.Version, tt.wantVersion)
			}
			if info.Commit != tt.wantCommit {
				t.Errorf("Commit = %q, want %q", info.Commit, tt.wantCommit)
			}
			if !info.Modified || info.BuildTime != "2026-01-02T03:04:05Z" {
				t.Errorf("vcs settings not applied: %+v", info)
			}
		})
	}
}

func TestInfo_String(t *testing.T) {
	s := Info{Version: "v1.0.0", Commit: "0123456789abcdef", BuildTime: "now", GoVersion: "go1.24", Modified: true}.String()
	for _, want := range []string{"v1.0.0", "0123456789ab-dirty", "go1.24"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
	if strings.Contains(s, "0123456789abc") {
		t.Errorf("String() = %q, commit not shortened", s)
	}
}
