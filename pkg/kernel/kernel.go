// Package kernel detects the running kernel version and answers the
// feature-gate questions the rest of the tree asks of it, most notably
// whether the bpf LSM hook surface exists at all (kernel >= 5.7).
// Release-string parsing and version comparison are delegated to the
// docker parsers (github.com/docker/docker/pkg/parsers/kernel).
package kernel

import (
	dkernel "github.com/docker/docker/pkg/parsers/kernel"
)

// VersionInfo holds a parsed kernel.major.minor triple.
type VersionInfo = dkernel.VersionInfo

// ParseRelease parses a uname release string into a VersionInfo.
func ParseRelease(release string) (*VersionInfo, error) {
	return dkernel.ParseRelease(release)
}

// CompareKernelVersion returns -1 if a < b, 0 if a == b, 1 if a > b.
func CompareKernelVersion(a, b VersionInfo) int {
	return dkernel.CompareKernelVersion(a, b)
}
