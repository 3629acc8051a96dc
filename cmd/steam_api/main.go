// Command steam_api builds a drop-in replacement for the Steamworks API
// library. Build it with -buildmode=c-shared, rename the real library to
// one of the names steamlib.Candidates lists, and put this one in its
// place.
//
// Only the interface factories and flat accessors are exported here. Every
// other entry point has to be provided by the real library.
package main

/*
#include <stdint.h>

typedef int32_t HSteamUser;
*/
import "C"

import (
	"unsafe"

	"github.com/pboyd/vtpatch/internal/shim"
)

func ptr(p uintptr) unsafe.Pointer {
	return unsafe.Pointer(p)
}

//export SteamInternal_FindOrCreateUserInterface
func SteamInternal_FindOrCreateUserInterface(user C.HSteamUser, version *C.char) unsafe.Pointer {
	return ptr(shim.Default().FindOrCreateUserInterface(int32(user), uintptr(unsafe.Pointer(version))))
}

//export SteamInternal_FindOrCreateGameServerInterface
func SteamInternal_FindOrCreateGameServerInterface(user C.HSteamUser, version *C.char) unsafe.Pointer {
	return ptr(shim.Default().FindOrCreateGameServerInterface(int32(user), uintptr(unsafe.Pointer(version))))
}

//export SteamInternal_CreateInterface
func SteamInternal_CreateInterface(version *C.char) unsafe.Pointer {
	return ptr(shim.Default().CreateInterface(uintptr(unsafe.Pointer(version))))
}

//export SteamAPI_SteamApps_v008
func SteamAPI_SteamApps_v008() unsafe.Pointer {
	return ptr(shim.Default().Accessor("SteamAPI_SteamApps_v008"))
}

//export SteamAPI_SteamGameServerApps_v008
func SteamAPI_SteamGameServerApps_v008() unsafe.Pointer {
	return ptr(shim.Default().Accessor("SteamAPI_SteamGameServerApps_v008"))
}

//export SteamAPI_SteamUser_v021
func SteamAPI_SteamUser_v021() unsafe.Pointer {
	return ptr(shim.Default().Accessor("SteamAPI_SteamUser_v021"))
}

//export SteamAPI_SteamUser_v022
func SteamAPI_SteamUser_v022() unsafe.Pointer {
	return ptr(shim.Default().Accessor("SteamAPI_SteamUser_v022"))
}

//export SteamAPI_SteamUser_v023
func SteamAPI_SteamUser_v023() unsafe.Pointer {
	return ptr(shim.Default().Accessor("SteamAPI_SteamUser_v023"))
}

func main() {}
