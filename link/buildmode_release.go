//go:build release

package link

// isReleaseBuild reports whether this binary was built with the "release"
// build tag; such builds refuse to start unless Config.AllowRelease is set
// (spec.md §4.6, §7f).
const isReleaseBuild = true
