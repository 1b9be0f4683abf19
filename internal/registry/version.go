package registry

import (
	"errors"
	"fmt"

	"github.com/jchantrell/gamepak/internal/utils"
)

// ErrPluginVersion is returned for plugins built against an incompatible
// loader interface.
var ErrPluginVersion = errors.New("incompatible plugin interface version")

// Version is a loader interface version.
type Version struct {
	Major int
	Minor int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// InterfaceVersion is the loader interface this host provides.
var InterfaceVersion = Version{Major: 1, Minor: 0}

// ParseVersion parses "MAJOR.MINOR" with an optional patch suffix.
func ParseVersion(s string) (Version, error) {
	info, err := utils.ParseVersionInfo(s)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %w", ErrPluginVersion, err)
	}
	return Version{Major: info.Major, Minor: info.Minor}, nil
}

// CheckVersion accepts plugins with the host's major version and a minor
// version no newer than the host's.
func CheckVersion(v Version) error {
	if v.Major != InterfaceVersion.Major {
		return fmt.Errorf("%w: plugin wants %s, host provides %s", ErrPluginVersion, v, InterfaceVersion)
	}
	if v.Minor > InterfaceVersion.Minor {
		return fmt.Errorf("%w: plugin wants %s, host only provides %s", ErrPluginVersion, v, InterfaceVersion)
	}
	return nil
}
