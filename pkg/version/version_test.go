package version

import (
	"runtime/debug"
	"testing"
)

func TestInfoStrings(t *testing.T) {
	type tcase struct {
		info     Info
		wantStr  string
		wantFull string
	}
	tests := map[string]tcase{
		"release": {
			info:     Info{Tag: "v1.2.0", Commit: "abc1234", Date: "2026-01-01"},
			wantStr:  "v1.2.0",
			wantFull: "v1.2.0 (abc1234) built 2026-01-01",
		},
		"untagged": {
			info:     Info{Commit: "abc1234", Date: "2026-01-01"},
			wantStr:  "abc1234",
			wantFull: "abc1234 built 2026-01-01",
		},
		"dirty": {
			info:     Info{Commit: "abc1234", Modified: true},
			wantStr:  "abc1234-dirty",
			wantFull: "abc1234-dirty",
		},
		"dev": {
			info:     Info{Date: "2026-01-01"},
			wantStr:  "dev",
			wantFull: "dev",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := tc.info.String(); got != tc.wantStr {
				t.Errorf("String() = %q, want %q", got, tc.wantStr)
			}
			if got := tc.info.Full(); got != tc.wantFull {
				t.Errorf("Full() = %q, want %q", got, tc.wantFull)
			}
		})
	}
}

func TestFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.time", Value: "2026-03-04T05:06:07Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	got := fromBuildInfo(Info{}, bi)
	want := Info{Commit: "0123456", Date: "2026-03-04T05:06:07Z", Modified: true}
	if got != want {
		t.Fatalf("fromBuildInfo = %+v, want %+v", got, want)
	}

	bi.Main.Version = "v0.3.1"
	if got := fromBuildInfo(Info{Date: "ldflags"}, bi); got.Tag != "v0.3.1" || got.Date != "ldflags" {
		t.Fatalf("fromBuildInfo kept %+v", got)
	}
}
