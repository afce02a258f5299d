package termcli

// Command is a parsed, ready-to-dispatch terminal syscall: a verb plus a
// flat positional Args slice.
type Command struct {
	Verb     string   // command verb as typed, e.g. "ls"; lookup is case-insensitive
	Args     []string // remaining positional tokens
	Original string   // original raw input line, for history/echo
}

// Code is the narrow taxonomy of syscall result codes, a subset of
// model.IntrinsicCode relevant to built-in terminal commands rather than
// script intrinsics.
type Code string

const (
	CodeOK               Code = "OK"
	CodeInvalidArgs      Code = "ERR_INVALID_ARGS"
	CodeNotFound         Code = "ERR_NOT_FOUND"
	CodePermissionDenied Code = "ERR_PERMISSION_DENIED"
	CodeIsDirectory      Code = "ERR_IS_DIRECTORY"
	CodeNotDirectory     Code = "ERR_NOT_DIRECTORY"
	CodeNotFile          Code = "ERR_NOT_FILE"
	CodeNotTextFile      Code = "ERR_NOT_TEXT_FILE"
	CodeTooLarge         Code = "ERR_TOO_LARGE"
	CodeAlreadyExists    Code = "ERR_ALREADY_EXISTS"
	CodeNetDenied        Code = "ERR_NET_DENIED"
	CodePortClosed       Code = "ERR_PORT_CLOSED"
	CodeRateLimited      Code = "ERR_RATE_LIMITED"
	CodeAuthFailed       Code = "ERR_AUTH_FAILED"
	CodeUnknownCommand   Code = "ERR_UNKNOWN_COMMAND"
	CodeToolMissing      Code = "ERR_TOOL_MISSING"
	CodeInternalError    Code = "ERR_INTERNAL_ERROR"
)

// Result is the uniform envelope every built-in command and program
// returns: line-oriented output for the terminal display plus optional
// structured data for transition-consuming callers.
type Result struct {
	Code  Code
	Lines []string
	Data  map[string]interface{}
}

// Ok builds a successful result with the given output lines.
func Ok(lines ...string) Result {
	return Result{Code: CodeOK, Lines: lines}
}

// OkData builds a successful result carrying structured data for callers
// that need more than text (e.g. `ls --json` style consumers).
func OkData(data map[string]interface{}, lines ...string) Result {
	return Result{Code: CodeOK, Lines: lines, Data: data}
}

// Err builds a failed result. msg becomes the single output line.
func Err(code Code, msg string) Result {
	return Result{Code: code, Lines: []string{msg}}
}

// Success reports whether the result represents successful execution.
func (r Result) Success() bool {
	return r.Code == CodeOK
}
