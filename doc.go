// Patch virtual methods on Steamworks interface objects
//
// The Steamworks flat library hands out C++ interface objects whose vtables
// are laid out differently for every interface revision. This package
// classifies the version string an object was requested with, picks the
// slots to override for that revision, and rewrites them in place:
//
//   - fixed-answer methods (ISteamApps::BIsDlcInstalled,
//     ISteamUser::UserHasLicenseForApp) are replaced with tiny machine code
//     stubs;
//   - factory methods on ISteamClient are replaced with Go callbacks that
//     call the original and patch whatever it returns.
//
// Each vtable is patched once per process. Unknown versions are passed
// through untouched.
//
// Limitations:
//   - Slot offsets come from the SDK headers and have to match the shipped
//     library.
//   - Supports darwin and linux on amd64/arm64, and windows on
//     386/amd64/arm64.
//   - Vtables are written in place; nothing is restored at exit.
package vtpatch
