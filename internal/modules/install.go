package modules

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/crypto/sha3"

	"github.com/mailtwo/nexus-link-sub005/internal/model"
)

// argString extracts the nth argument as a string, defaulting to "" when
// absent or not a string — intrinsics validate explicitly rather than
// letting goja panic on a type assertion.
func argString(call goja.FunctionCall, n int) string {
	if n >= len(call.Arguments) {
		return ""
	}
	return call.Arguments[n].String()
}

func argInt(call goja.FunctionCall, n int, def int) int {
	if n >= len(call.Arguments) || goja.IsUndefined(call.Arguments[n]) {
		return def
	}
	return int(call.Arguments[n].ToInteger())
}

func argBool(call goja.FunctionCall, n int) bool {
	if n >= len(call.Arguments) {
		return false
	}
	return call.Arguments[n].ToBoolean()
}

func result(vm *goja.Runtime, m map[string]interface{}) goja.Value {
	return vm.ToValue(m)
}

// Install injects every intrinsic module (term/fs/net/ssh/ftp/time/
// crypto/import) as a global binding on vm, scoped to ctx for the
// duration of one script run.
func Install(vm *goja.Runtime, host Host, ctx ScriptContext) {
	vm.Set("term", buildTerm(vm, host, ctx))
	vm.Set("fs", buildFs(vm, host, ctx))
	vm.Set("net", buildNet(vm, host, ctx))
	vm.Set("ssh", buildSSH(vm, host, ctx))
	vm.Set("ftp", buildFTP(vm, host, ctx))
	vm.Set("time", buildTime(vm, host))
	vm.Set("crypto", buildCrypto(vm, host))
	loader := buildImport(vm, host, ctx)
	vm.Set("import", loader)
	// `import` is a reserved word to the parser, so scripts reach the
	// loader as require(...) or this["import"](...)
	vm.Set("require", loader)
}

func buildTerm(vm *goja.Runtime, host Host, ctx ScriptContext) *goja.Object {
	obj := vm.NewObject()
	mk := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			host.Print(ctx, level, argString(call, 0))
			return result(vm, model.Ok(nil))
		}
	}
	obj.Set("print", mk("print"))
	obj.Set("warn", mk("warn"))
	obj.Set("error", mk("error"))
	return obj
}

func buildFs(vm *goja.Runtime, host Host, ctx ScriptContext) *goja.Object {
	obj := vm.NewObject()

	obj.Set("resolve", func(call goja.FunctionCall) goja.Value {
		e, ok := host.FsResolve(ctx, argString(call, 0))
		if !ok {
			return result(vm, model.Err(model.CodeNotFound, "not found"))
		}
		return result(vm, model.Ok(map[string]interface{}{
			"kind":     e.Kind.String(),
			"fileKind": e.FileKind.String(),
			"size":     e.Size,
		}))
	})

	obj.Set("listChildren", func(call goja.FunctionCall) goja.Value {
		names, code := host.FsListChildren(ctx, argString(call, 0))
		if code != model.CodeOK {
			return result(vm, model.Err(code, string(code)))
		}
		return result(vm, model.Ok(map[string]interface{}{"names": names}))
	})

	obj.Set("readText", func(call goja.FunctionCall) goja.Value {
		text, code := host.FsReadText(ctx, argString(call, 0))
		if code != model.CodeOK {
			return result(vm, model.Err(code, string(code)))
		}
		return result(vm, model.Ok(map[string]interface{}{"text": text}))
	})

	obj.Set("writeFile", func(call goja.FunctionCall) goja.Value {
		code := host.FsWriteFile(ctx, argString(call, 0), []byte(argString(call, 1)))
		if code != model.CodeOK {
			return result(vm, model.Err(code, string(code)))
		}
		return result(vm, model.Ok(nil))
	})

	obj.Set("mkdir", func(call goja.FunctionCall) goja.Value {
		code := host.FsMkdir(ctx, argString(call, 0), argBool(call, 1))
		if code != model.CodeOK {
			return result(vm, model.Err(code, string(code)))
		}
		return result(vm, model.Ok(nil))
	})

	obj.Set("delete", func(call goja.FunctionCall) goja.Value {
		code := host.FsDelete(ctx, argString(call, 0), argBool(call, 1))
		if code != model.CodeOK {
			return result(vm, model.Err(code, string(code)))
		}
		return result(vm, model.Ok(nil))
	})

	obj.Set("find", func(call goja.FunctionCall) goja.Value {
		paths := host.FsFind(ctx, argString(call, 0), argString(call, 1))
		return result(vm, model.Ok(map[string]interface{}{"paths": paths}))
	})

	return obj
}

func buildNet(vm *goja.Runtime, host Host, ctx ScriptContext) *goja.Object {
	obj := vm.NewObject()

	obj.Set("known", func(call goja.FunctionCall) goja.Value {
		groups := host.NetKnown(ctx)
		out := make(map[string]interface{}, len(groups))
		for netID, hosts := range groups {
			rows := make([]map[string]interface{}, 0, len(hosts))
			for _, h := range hosts {
				rows = append(rows, map[string]interface{}{"hostname": h.Hostname, "ip": h.IP})
			}
			out[netID] = rows
		}
		return result(vm, model.Ok(map[string]interface{}{"nets": out}))
	})

	obj.Set("scan", func(call goja.FunctionCall) goja.Value {
		neighbors, code := host.NetScan(ctx, argString(call, 0))
		if code != model.CodeOK {
			return result(vm, model.Err(code, string(code)))
		}
		return result(vm, model.Ok(map[string]interface{}{"neighbors": neighbors}))
	})

	return obj
}

func buildSSH(vm *goja.Runtime, host Host, ctx ScriptContext) *goja.Object {
	obj := vm.NewObject()

	obj.Set("connect", func(call goja.FunctionCall) goja.Value {
		port := argInt(call, 1, 22)
		outcome, code := host.SSHConnect(ctx, argString(call, 0), port, argString(call, 2), argString(call, 3))
		if code != model.CodeOK {
			return result(vm, model.Err(code, string(code)))
		}
		return result(vm, model.Ok(map[string]interface{}{
			"nodeId":     outcome.NodeID,
			"userKey":    outcome.UserKey,
			"cwd":        outcome.Cwd,
			"promptUser": outcome.PromptUser,
			"promptHost": outcome.PromptHost,
			"motdLines":  outcome.MotdLines,
		}))
	})

	obj.Set("disconnect", func(call goja.FunctionCall) goja.Value {
		code := host.SSHDisconnect(ctx)
		if code != model.CodeOK {
			return result(vm, model.Err(code, string(code)))
		}
		return result(vm, model.Ok(nil))
	})

	return obj
}

func buildFTP(vm *goja.Runtime, host Host, ctx ScriptContext) *goja.Object {
	obj := vm.NewObject()

	obj.Set("get", func(call goja.FunctionCall) goja.Value {
		port := argInt(call, 0, 21)
		code := host.FTPGet(ctx, port, argString(call, 1), argString(call, 2))
		if code != model.CodeOK {
			return result(vm, model.Err(code, string(code)))
		}
		return result(vm, model.Ok(nil))
	})

	obj.Set("put", func(call goja.FunctionCall) goja.Value {
		port := argInt(call, 0, 21)
		code := host.FTPPut(ctx, port, argString(call, 1), argString(call, 2))
		if code != model.CodeOK {
			return result(vm, model.Err(code, string(code)))
		}
		return result(vm, model.Ok(nil))
	})

	return obj
}

func buildTime(vm *goja.Runtime, host Host) *goja.Object {
	obj := vm.NewObject()
	obj.Set("nowMs", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(host.NowMs())
	})
	return obj
}

// buildCrypto exposes TOTP code generation plus three digest families
// (md5/sha256/sha3) hex-encoded, so scripts checksumming a planted file
// have a choice the way a real hacking-terminal toolkit would.
func buildCrypto(vm *goja.Runtime, host Host) *goja.Object {
	obj := vm.NewObject()
	obj.Set("totpNow", func(call goja.FunctionCall) goja.Value {
		code, err := host.TOTPNow(argString(call, 0))
		if err != nil {
			return result(vm, model.Err(model.CodeInvalidArgs, err.Error()))
		}
		return result(vm, model.Ok(map[string]interface{}{"code": code}))
	})
	obj.Set("md5", func(call goja.FunctionCall) goja.Value {
		sum := md5.Sum([]byte(argString(call, 0)))
		return result(vm, model.Ok(map[string]interface{}{"hex": hex.EncodeToString(sum[:])}))
	})
	obj.Set("sha256", func(call goja.FunctionCall) goja.Value {
		sum := sha256.Sum256([]byte(argString(call, 0)))
		return result(vm, model.Ok(map[string]interface{}{"hex": hex.EncodeToString(sum[:])}))
	})
	obj.Set("sha3", func(call goja.FunctionCall) goja.Value {
		sum := sha3.Sum256([]byte(argString(call, 0)))
		return result(vm, model.Ok(map[string]interface{}{"hex": hex.EncodeToString(sum[:])}))
	})
	return obj
}

// importState is one run's module bookkeeping: executed module values
// keyed by (nodeId, canonicalPath), the set of paths currently executing
// for cycle detection, and a directory stack so a module's own imports
// resolve relative to its file rather than the top-level script.
type importState struct {
	loaded  map[string]goja.Value
	loading map[string]bool
	dirs    []string
}

func (s *importState) currentDir(fallback string) string {
	if len(s.dirs) > 0 {
		return s.dirs[len(s.dirs)-1]
	}
	return fallback
}

// libraryName scans a module's leading comment block for the required
// `// @name <ident>` marker. Scanning stops at the first non-comment
// line: the marker must sit in the contiguous header block.
func libraryName(source string) (string, bool) {
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "//") {
			return "", false
		}
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "//"))
		if strings.HasPrefix(rest, "@name ") {
			if ident := strings.TrimSpace(strings.TrimPrefix(rest, "@name ")); ident != "" {
				return ident, true
			}
		}
	}
	return "", false
}

// throwCode raises a JS exception carrying an intrinsic error-code token,
// so a failed import surfaces as a script runtime error rather than a
// result map.
func throwCode(vm *goja.Runtime, code model.IntrinsicCode, detail string) {
	msg := string(code)
	if detail != "" {
		msg += ": " + detail
	}
	panic(vm.ToValue(msg))
}

// runModule executes module source in vm's global scope. A module whose
// last statement is an expression yields that value; otherwise the
// module's new top-level bindings are collected into an object.
func runModule(vm *goja.Runtime, source, canon string) goja.Value {
	global := vm.GlobalObject()
	before := make(map[string]bool)
	for _, k := range global.Keys() {
		before[k] = true
	}

	v, err := vm.RunScript(canon, source)
	if err != nil {
		if ex, ok := err.(*goja.Exception); ok {
			panic(ex)
		}
		throwCode(vm, model.CodeInternalError, err.Error())
	}
	if v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		return v
	}

	exports := vm.NewObject()
	for _, k := range global.Keys() {
		if !before[k] {
			exports.Set(k, global.Get(k))
		}
	}
	return exports
}

func fileStem(p string) string {
	base := model.BaseName(p)
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}

// buildImport returns the callable module loader: import(name, alias?)
// resolves name (script directory first, stdlib root second), runs the
// module once per canonical path, binds the value as a global under
// alias (default: the file stem), and returns it. Re-entry during load
// raises ERR_IMPORT_CYCLE; a source without a `// @name` header raises
// ERR_NOT_A_LIBRARY. A `resolve` property exposes the raw source lookup
// for tooling scripts.
func buildImport(vm *goja.Runtime, host Host, ctx ScriptContext) *goja.Object {
	state := &importState{
		loaded:  make(map[string]goja.Value),
		loading: make(map[string]bool),
	}

	scriptDir := ctx.ScriptDir
	if scriptDir == "" {
		scriptDir = ctx.Cwd
	}

	importFn := func(call goja.FunctionCall) goja.Value {
		name := argString(call, 0)
		if name == "" {
			throwCode(vm, model.CodeInvalidArgs, "import needs a module name")
		}
		alias := argString(call, 1)

		source, canon, code := host.ResolveModule(ctx, state.currentDir(scriptDir), name)
		if code != model.CodeOK {
			throwCode(vm, code, name)
		}

		bind := func(v goja.Value) goja.Value {
			bindName := alias
			if bindName == "" {
				bindName = fileStem(canon)
			}
			vm.Set(bindName, v)
			return v
		}

		key := ctx.NodeID + "\x00" + canon
		if v, ok := state.loaded[key]; ok {
			return bind(v)
		}
		if state.loading[key] {
			throwCode(vm, model.CodeImportCycle, canon)
		}
		if _, ok := libraryName(source); !ok {
			throwCode(vm, model.CodeNotALibrary, canon)
		}

		state.loading[key] = true
		state.dirs = append(state.dirs, model.ParentPath(canon))
		defer func() {
			delete(state.loading, key)
			state.dirs = state.dirs[:len(state.dirs)-1]
		}()

		v := runModule(vm, source, canon)
		state.loaded[key] = v
		return bind(v)
	}

	obj := vm.ToValue(importFn).ToObject(vm)
	obj.Set("resolve", func(call goja.FunctionCall) goja.Value {
		source, canonicalPath, code := host.ResolveModule(ctx, argString(call, 0), argString(call, 1))
		if code != model.CodeOK {
			return result(vm, model.Err(code, string(code)))
		}
		return result(vm, model.Ok(map[string]interface{}{
			"source":        source,
			"canonicalPath": canonicalPath,
		}))
	})
	return obj
}
