//go:build !(((darwin || linux) && (amd64 || arm64)) || (windows && (386 || amd64 || arm64)))

package vtpatch

// Replacement stubs and calling conventions exist for darwin and linux on
// amd64/arm64 and windows on 386/amd64/arm64 only.
func init() {
	vtpatch_does_not_support_this_platform()
}
