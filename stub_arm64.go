package vtpatch

func assembleFixedReturn(info replacementInfo) []byte {
	return fixedReturnARM64(uint16(info.value))
}
