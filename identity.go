package vtpatch

import (
	"strconv"
	"strings"
)

// Family is a category of interface handed out by the Steamworks library.
// Each family evolves through numbered revisions.
type Family uint8

const (
	// Unknown is the zero Family. Identities with this family are passed
	// through untouched.
	Unknown Family = iota
	Apps
	Client
	User
)

func (f Family) String() string {
	switch f {
	case Apps:
		return "Apps"
	case Client:
		return "Client"
	case User:
		return "User"
	default:
		return "Unknown"
	}
}

// Version string prefixes, e.g. "STEAMAPPS_INTERFACE_VERSION008",
// "SteamClient021", "SteamUser023".
var familyPrefixes = []struct {
	prefix string
	family Family
}{
	{"STEAMAPPS_INTERFACE_VERSION", Apps},
	{"SteamClient", Client},
	{"SteamUser", User},
}

// Identity is a classified interface version.
type Identity struct {
	Family   Family
	Revision uint16
}

// Known reports whether id names a recognized family.
func (id Identity) Known() bool {
	return id.Family != Unknown
}

func (id Identity) String() string {
	return id.Family.String() + "/" + strconv.Itoa(int(id.Revision))
}

// Classify parses an interface version string. It returns false if the string
// has no known family prefix or if the rest of the string is not a one to
// three digit decimal revision.
func Classify(version string) (Identity, bool) {
	for _, fp := range familyPrefixes {
		rest, ok := strings.CutPrefix(version, fp.prefix)
		if !ok {
			continue
		}
		rev, ok := parseRevision(rest)
		if !ok {
			// "SteamUserStats012" shares a prefix with "SteamUser".
			continue
		}
		return Identity{Family: fp.family, Revision: rev}, true
	}
	return Identity{}, false
}

func parseRevision(s string) (uint16, bool) {
	if len(s) == 0 || len(s) > 3 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}
