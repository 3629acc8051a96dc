package steamlib

const (
	libName = "steam_api"
	libExt  = ".dll"
)
