package vtpatch

func assembleFixedReturn(info replacementInfo) []byte {
	return fixedReturnX86(info.value, 0)
}
