package world

import (
	"github.com/mailtwo/nexus-link-sub005/internal/model"
	"github.com/mailtwo/nexus-link-sub005/internal/modules"
	"github.com/mailtwo/nexus-link-sub005/internal/scriptrt"
)

// registerExecHandlers installs the builtin "hardcoded executable"
// dispatch table: noop, miniscript, inspect.
func registerExecHandlers(w *World) {
	w.RegisterExecHandler("noop", execNoop)
	w.RegisterExecHandler("miniscript", execMiniscript)
	w.RegisterExecHandler("inspect", execInspect)
}

func execNoop(w *World, ctx modules.ScriptContext, argv []string) map[string]interface{} {
	return model.Ok(nil)
}

// execMiniscript loads the script named by argv[0] (relative to cwd) and
// runs it to completion synchronously, the "hardcoded executable that is
// itself a thin script loader" shape minigame-style blueprints use to seed
// a reusable tool without authoring a full executableScript entry.
func execMiniscript(w *World, ctx modules.ScriptContext, argv []string) map[string]interface{} {
	if len(argv) < 1 {
		return model.Err(model.CodeInvalidArgs, "usage: miniscript <path>")
	}
	srv, ok := w.Servers[ctx.NodeID]
	if !ok {
		return model.Err(model.CodeNotFound, "no such server")
	}

	path := model.NormalizePath(argv[0], ctx.Cwd)
	entry, ok := srv.Overlay.Resolve(path)
	if !ok || entry.IsDir() {
		return model.Err(model.CodeNotFound, "no such script")
	}
	source, err := srv.Overlay.ReadText(path)
	if err != nil {
		return model.Err(model.CodeNotFound, "no such script")
	}

	ctx.ScriptDir = model.ParentPath(path)
	_, res := scriptrt.Start(source, ctx, argv[1:], w)
	if !res.OK {
		return model.Err(model.CodeInternalError, res.Err)
	}
	return model.Ok(nil)
}

// execInspect reports the acting context, a diagnostic aid scenario
// scripts use to confirm where a connected session landed.
func execInspect(w *World, ctx modules.ScriptContext, argv []string) map[string]interface{} {
	srv, ok := w.Servers[ctx.NodeID]
	hostname := ""
	if ok {
		hostname = srv.Name
	}
	return model.Ok(map[string]interface{}{
		"nodeId":   ctx.NodeID,
		"hostname": hostname,
		"userKey":  ctx.UserKey,
		"cwd":      ctx.Cwd,
	})
}
