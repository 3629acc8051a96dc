package vtpatch

import (
	"fmt"

	"github.com/apex/log"
)

// Replacement identifies a stand-in for one virtual method.
type Replacement uint8

const (
	// DLCInstalled replaces ISteamApps::BIsDlcInstalled(AppId_t) and
	// always returns true.
	DLCInstalled Replacement = iota
	// LicenseGranted replaces ISteamUser::UserHasLicenseForApp(CSteamID,
	// AppId_t) and always returns k_EUserHasLicenseResultHasLicense.
	LicenseGranted
	// DelegateGetUser replaces ISteamClient::GetISteamUser.
	DelegateGetUser
	// DelegateGetGeneric replaces ISteamClient::GetISteamGenericInterface.
	DelegateGetGeneric
	// DelegateGetApps replaces ISteamClient::GetISteamApps.
	DelegateGetApps

	numReplacements
)

// Indexes into Originals for the delegating replacements.
const (
	origGetUser = iota
	origGetGeneric
	origGetApps

	numOriginals
)

type replacementInfo struct {
	name string

	// Fixed-answer replacements.
	fixed     bool
	value     uint32
	stackArgs uint16 // bytes of arguments after this on a 32-bit stack

	// Delegating replacements.
	original int
}

var replacements = [numReplacements]replacementInfo{
	DLCInstalled:       {name: "BIsDlcInstalled", fixed: true, value: 1, stackArgs: 4},
	LicenseGranted:     {name: "UserHasLicenseForApp", fixed: true, value: 0, stackArgs: 12},
	DelegateGetUser:    {name: "GetISteamUser", original: origGetUser},
	DelegateGetGeneric: {name: "GetISteamGenericInterface", original: origGetGeneric},
	DelegateGetApps:    {name: "GetISteamApps", original: origGetApps},
}

func (r Replacement) String() string {
	if r >= numReplacements {
		return "invalid"
	}
	return replacements[r].name
}

// Delegating reports whether r calls through to the original method.
func (r Replacement) Delegating() bool {
	return r < numReplacements && !replacements[r].fixed
}

// factoryMethod is the logical signature of the delegating replacements:
//
//	void *GetISteamX(HSteamUser user, HSteamPipe pipe, const char *version)
//
// this is always the first argument. The Convention takes care of where the
// native caller actually put it.
type factoryMethod = func(this, user, pipe, version uintptr) uintptr

func hex(v uintptr) string {
	return fmt.Sprintf("%#x", v)
}

// delegate returns the body of the delegating replacement r.
func (e *Engine) delegate(r Replacement) factoryMethod {
	orig := replacements[r].original
	return func(this, user, pipe, version uintptr) uintptr {
		originals, ok := e.originals.lookup(vtableOf(this))
		if !ok || originals[orig] == 0 {
			log.WithFields(log.Fields{
				"method": r.String(),
				"vtable": hex(uintptr(vtableOf(this))),
			}).Warn("no original recorded")
			return 0
		}

		ret := e.conv.CallMethod(originals[orig], this, user, pipe, version)
		log.WithFields(log.Fields{
			"method":  r.String(),
			"version": cString(version),
			"result":  hex(ret),
		}).Debug("delegated")
		return e.PatchVersion(version, ret)
	}
}
