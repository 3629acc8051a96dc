//go:build windows && (amd64 || arm64)

package steamlib

const (
	libName = "steam_api64"
	libExt  = ".dll"
)
