package model

// IntrinsicCode is the stable error-code identifier returned by script
// intrinsics and the network/file flows behind them.
type IntrinsicCode string

const (
	CodeOK                  IntrinsicCode = "OK"
	CodeInvalidArgs         IntrinsicCode = "ERR_INVALID_ARGS"
	CodeNotFound            IntrinsicCode = "ERR_NOT_FOUND"
	CodePermissionDenied    IntrinsicCode = "ERR_PERMISSION_DENIED"
	CodeIsDirectory         IntrinsicCode = "ERR_IS_DIRECTORY"
	CodeNotDirectory        IntrinsicCode = "ERR_NOT_DIRECTORY"
	CodeNotFile             IntrinsicCode = "ERR_NOT_FILE"
	CodeNotTextFile         IntrinsicCode = "ERR_NOT_TEXT_FILE"
	CodeTooLarge            IntrinsicCode = "ERR_TOO_LARGE"
	CodeAlreadyExists       IntrinsicCode = "ERR_ALREADY_EXISTS"
	CodeNetDenied           IntrinsicCode = "ERR_NET_DENIED"
	CodePortClosed          IntrinsicCode = "ERR_PORT_CLOSED"
	CodeRateLimited         IntrinsicCode = "ERR_RATE_LIMITED"
	CodeAuthFailed          IntrinsicCode = "ERR_AUTH_FAILED"
	CodeUnknownCommand      IntrinsicCode = "ERR_UNKNOWN_COMMAND"
	CodeImportAmbiguous     IntrinsicCode = "ERR_IMPORT_AMBIGUOUS"
	CodeImportCycle         IntrinsicCode = "ERR_IMPORT_CYCLE"
	CodeNotALibrary         IntrinsicCode = "ERR_NOT_A_LIBRARY"
	CodeToolMissing         IntrinsicCode = "ERR_TOOL_MISSING"
	CodeInternalError       IntrinsicCode = "ERR_INTERNAL_ERROR"
)

// IntrinsicResult builds the uniform `{ok, code, err?, ...payload}` map every
// intrinsic module call returns.
func IntrinsicResult(code IntrinsicCode, errMsg string, payload map[string]interface{}) map[string]interface{} {
	res := map[string]interface{}{
		"code": string(code),
	}
	if code == CodeOK {
		res["ok"] = 1
	} else {
		res["ok"] = 0
		if errMsg == "" {
			errMsg = string(code)
		}
		res["err"] = errMsg
	}
	for k, v := range payload {
		res[k] = v
	}
	return res
}

// Ok is a convenience wrapper for the common success case.
func Ok(payload map[string]interface{}) map[string]interface{} {
	return IntrinsicResult(CodeOK, "", payload)
}

// Err is a convenience wrapper for the common failure case.
func Err(code IntrinsicCode, msg string) map[string]interface{} {
	return IntrinsicResult(code, msg, nil)
}
