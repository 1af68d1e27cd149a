package version

// Name is the tool name reported in banners and request headers
const Name = "cleanip"

// Version is overridden at build time via ldflags
var Version = "v0.1.0"

// GetVersion returns the version string
func GetVersion() string {
	return Version
}

// UserAgent returns the User-Agent sent with every probe
func UserAgent() string {
	return Name + "/" + Version
}
