package steamlib

const (
	libName = "libsteam_api"
	libExt  = ".so"
)
