package steamlib

// Candidates lists the files Open should try, most specific first. The real
// library is expected next to the shim under a renamed file.
func Candidates(override string) []string {
	var c []string
	if override != "" {
		c = append(c, override)
	}
	return append(c,
		"./"+libName+".orig"+libExt,
		libName+".orig"+libExt,
		"./"+libName+"_o"+libExt,
	)
}
