// Package version reports the relay build identity.
package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// Version, CommitHash and BuildTime are overridden with -ldflags at release time.
var (
	Version    = "dev"
	CommitHash = ""
	BuildTime  = ""
)

var readBuildInfo sync.Once

func fillFromBuildInfo() {
	readBuildInfo.Do(func() {
		if CommitHash != "" {
			return
		}
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				CommitHash = setting.Value
			case "vcs.time":
				if BuildTime == "" {
					BuildTime = setting.Value
				}
			}
		}
	})
}

// GetInfo returns "<version> (<short hash>)", or just the version when no hash is known.
func GetInfo() string {
	fillFromBuildInfo()
	if CommitHash == "" {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, shortHash(CommitHash))
}

// Detailed adds the build time to GetInfo when available.
func Detailed() string {
	info := GetInfo()
	if BuildTime == "" {
		return info
	}
	return info + " built " + BuildTime
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
