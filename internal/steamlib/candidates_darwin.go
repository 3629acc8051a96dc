package steamlib

const (
	libName = "libsteam_api"
	libExt  = ".dylib"
)
