// Package version reports the Photon build.
//
// Release builds inject the values with ldflags:
//
//	go build -ldflags "-X github.com/photonchat/photon/pkg/version.tag=v1.0.0
//	  -X github.com/photonchat/photon/pkg/version.commit=abc1234
//	  -X github.com/photonchat/photon/pkg/version.date=2026-01-01"
//
// Other builds fall back to the VCS stamp recorded by the go command.
package version

import (
	"runtime/debug"
	"sync"
)

var (
	tag    string
	commit string
	date   string
)

// Info describes one build.
type Info struct {
	Tag      string
	Commit   string
	Date     string
	Modified bool // built from a dirty tree
}

var (
	once sync.Once
	info Info
)

// Get returns the build info, reading the embedded VCS stamp once when
// ldflags left the commit empty.
func Get() Info {
	once.Do(func() {
		info = Info{Tag: tag, Commit: commit, Date: date}
		if info.Commit != "" {
			return
		}
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		info = fromBuildInfo(info, bi)
	})
	return info
}

func fromBuildInfo(i Info, bi *debug.BuildInfo) Info {
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			i.Commit = s.Value
			if len(i.Commit) > 7 {
				i.Commit = i.Commit[:7]
			}
		case "vcs.time":
			if i.Date == "" {
				i.Date = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
	if i.Tag == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		i.Tag = bi.Main.Version
	}
	return i
}

// String returns the tag, else the short commit, else "dev".
func (i Info) String() string {
	switch {
	case i.Tag != "":
		return i.Tag
	case i.Commit != "":
		if i.Modified {
			return i.Commit + "-dirty"
		}
		return i.Commit
	default:
		return "dev"
	}
}

// Full returns "tag (commit) built date", dropping the parts that are unknown.
func (i Info) Full() string {
	s := i.String()
	if i.Tag != "" && i.Commit != "" {
		s += " (" + i.Commit + ")"
	}
	if i.Date != "" && s != "dev" {
		s += " built " + i.Date
	}
	return s
}

// String is shorthand for Get().String().
func String() string { return Get().String() }

// Full is shorthand for Get().Full().
func Full() string { return Get().Full() }
