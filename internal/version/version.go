package version

// Version is the lm-cli release version, overridable at build time via
// -ldflags "-X lm-cli/internal/version.Version=...".
var Version = "0.2.0"
