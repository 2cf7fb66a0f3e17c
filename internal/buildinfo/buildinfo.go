package buildinfo

// Version can be overridden at build time with:
// -ldflags "-X github.com/synqronlabs/mxprobe/internal/buildinfo.Version=v0.1.0"
var Version = "dev"

func String() string {
	return Version
}
