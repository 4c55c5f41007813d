//go:build !release

package link

// isReleaseBuild reports whether this binary was built with the "release"
// build tag. Debug builds (the default) are always allowed to start.
const isReleaseBuild = false
