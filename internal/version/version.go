// Package version exposes the build version, set via -ldflags at release time.
package version

var version = "dev"

func Version() string {
	return version
}
