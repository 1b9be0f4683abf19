package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// VersionInfo represents parsed version components
type VersionInfo struct {
	Major int
	Minor int
	Patch int
}

// ParseVersionInfo parses "major.minor" with an optional ".patch" suffix.
// Components must be non-negative decimal numbers.
func ParseVersionInfo(version string) (*VersionInfo, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, fmt.Errorf("version string cannot be empty")
	}

	parts := strings.Split(version, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("invalid version format: %s (expected major.minor[.patch])", version)
	}

	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || strings.HasPrefix(part, "+") {
			return nil, fmt.Errorf("invalid version component %q in %s", part, version)
		}
		nums[i] = n
	}

	return &VersionInfo{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// Compare returns -1, 0 or 1 as v is older than, equal to or newer than o.
func (v VersionInfo) Compare(o VersionInfo) int {
	for _, d := range [][2]int{{v.Major, o.Major}, {v.Minor, o.Minor}, {v.Patch, o.Patch}} {
		if d[0] < d[1] {
			return -1
		}
		if d[0] > d[1] {
			return 1
		}
	}
	return 0
}
