package world

import (
	"path"
	"sort"
	"strings"

	"github.com/mailtwo/nexus-link-sub005/internal/model"
	"github.com/mailtwo/nexus-link-sub005/internal/modules"
)

// attachedScript bookkeeps a running script that startScript attached to
// a terminal session, so StepScript and interruptTerminalProgram know
// which *scriptrt.Run to step or cancel.
type attachedScript struct {
	pid               int
	terminalSessionID string
	nodeID            string
	userKey           string
	scriptDir         string
	run               interface{} // *scriptrt.Run; kept as interface{} to avoid an import cycle concern with process.go's lighter callers
}

// ExecHandlerFunc is the signature a builtin "hardcoded executable" must
// implement.
type ExecHandlerFunc func(w *World, ctx modules.ScriptContext, argv []string) map[string]interface{}

// RegisterExecHandler adds a builtin program to the exec-id dispatch table.
func (w *World) RegisterExecHandler(execID string, fn ExecHandlerFunc) {
	w.execHandlers[execID] = fn
}

var _ modules.Host = (*World)(nil)

func (w *World) FsResolve(ctx modules.ScriptContext, p string) (model.Entry, bool) {
	srv, ok := w.Servers[ctx.NodeID]
	if !ok {
		return model.Entry{}, false
	}
	return srv.Overlay.Resolve(model.NormalizePath(p, ctx.Cwd))
}

func (w *World) FsListChildren(ctx modules.ScriptContext, p string) ([]string, model.IntrinsicCode) {
	srv, ok := w.Servers[ctx.NodeID]
	if !ok {
		return nil, model.CodeNotFound
	}
	norm := model.NormalizePath(p, ctx.Cwd)
	entry, ok := srv.Overlay.Resolve(norm)
	if !ok {
		return nil, model.CodeNotFound
	}
	if entry.Kind != model.KindDir {
		return nil, model.CodeNotDirectory
	}
	return srv.Overlay.ListChildren(norm), model.CodeOK
}

func (w *World) FsReadText(ctx modules.ScriptContext, p string) (string, model.IntrinsicCode) {
	srv, ok := w.Servers[ctx.NodeID]
	if !ok {
		return "", model.CodeNotFound
	}
	norm := model.NormalizePath(p, ctx.Cwd)
	entry, ok := srv.Overlay.Resolve(norm)
	if !ok {
		return "", model.CodeNotFound
	}
	if entry.Kind == model.KindDir {
		return "", model.CodeIsDirectory
	}
	if entry.FileKind != model.FileKindText {
		return "", model.CodeNotTextFile
	}
	text, err := srv.Overlay.ReadText(norm)
	if err != nil {
		return "", model.CodeNotFound
	}
	return text, model.CodeOK
}

func (w *World) FsWriteFile(ctx modules.ScriptContext, p string, data []byte) model.IntrinsicCode {
	srv, ok := w.Servers[ctx.NodeID]
	if !ok {
		return model.CodeNotFound
	}
	norm := model.NormalizePath(p, ctx.Cwd)
	if err := srv.Overlay.WriteFile(norm, data, model.FileKindText); err != nil {
		return model.CodeInvalidArgs
	}
	return model.CodeOK
}

func (w *World) FsMkdir(ctx modules.ScriptContext, p string, parents bool) model.IntrinsicCode {
	srv, ok := w.Servers[ctx.NodeID]
	if !ok {
		return model.CodeNotFound
	}
	norm := model.NormalizePath(p, ctx.Cwd)
	if parents {
		segs := strings.Split(strings.Trim(norm, "/"), "/")
		cur := ""
		for _, seg := range segs {
			if seg == "" {
				continue
			}
			cur = path.Join(cur, seg)
			_ = srv.Overlay.AddDir("/" + cur)
		}
		return model.CodeOK
	}
	if err := srv.Overlay.AddDir(norm); err != nil {
		return model.CodeAlreadyExists
	}
	return model.CodeOK
}

func (w *World) FsDelete(ctx modules.ScriptContext, p string, recursive bool) model.IntrinsicCode {
	srv, ok := w.Servers[ctx.NodeID]
	if !ok {
		return model.CodeNotFound
	}
	norm := model.NormalizePath(p, ctx.Cwd)
	var err error
	if recursive {
		err = srv.Overlay.DeleteSubtree(norm)
	} else {
		err = srv.Overlay.Delete(norm)
	}
	if err != nil {
		return model.CodeNotFound
	}
	return model.CodeOK
}

func (w *World) FsFind(ctx modules.ScriptContext, root, substring string) []string {
	srv, ok := w.Servers[ctx.NodeID]
	if !ok {
		return nil
	}
	return srv.Overlay.Find(model.NormalizePath(root, ctx.Cwd), substring)
}

func (w *World) NetKnown(ctx modules.ScriptContext) map[string][]modules.HostInfo {
	out := make(map[string][]modules.HostInfo)
	for netID, nodes := range w.KnownNodesByNet {
		ids := make([]string, 0, len(nodes))
		for id := range nodes {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			srv, ok := w.Servers[id]
			if !ok {
				continue
			}
			out[netID] = append(out[netID], modules.HostInfo{Hostname: srv.Name, IP: srv.PrimaryIP()})
		}
	}
	return out
}

func (w *World) NetScan(ctx modules.ScriptContext, netID string) ([]string, model.IntrinsicCode) {
	srv, ok := w.Servers[ctx.NodeID]
	if !ok {
		return nil, model.CodeNotFound
	}
	if !srv.SubnetMembership[netID] {
		return nil, model.CodeNetDenied
	}

	var out []string
	for _, nodeID := range srv.LanNeighbors[netID] {
		neighbor, ok := w.Servers[nodeID]
		if !ok {
			continue
		}
		for p := range neighbor.Ports {
			if neighbor.ExposedByNet[netID] || neighbor.Ports[p].Exposure == model.ExposurePublic {
				w.AddKnownNode(netID, nodeID)
				break
			}
		}
		out = append(out, nodeID)
	}
	sort.Strings(out)
	return out, model.CodeOK
}

func (w *World) NowMs() int64 {
	return w.WorldTick
}

func (w *World) TOTPNow(secretBase32 string) (string, error) {
	return currentTOTP(secretBase32, w.WorldTick)
}

// libRoot is the stdlib fallback for module resolution.
const libRoot = "/lib"

// ResolveModule looks a module name up first relative to fromDir (the
// importing script's directory), then under the stdlib root, returning
// its source text and canonical path. Resolved sources are cached per
// (serverId, canonicalPath) so repeated imports skip the overlay read.
func (w *World) ResolveModule(ctx modules.ScriptContext, fromDir, name string) (string, string, model.IntrinsicCode) {
	srv, ok := w.Servers[ctx.NodeID]
	if !ok {
		return "", "", model.CodeNotFound
	}
	if fromDir == "" {
		fromDir = ctx.Cwd
	}

	for _, dir := range []string{fromDir, libRoot} {
		canon, code := moduleInDir(srv, dir, name, ctx.Cwd)
		if code == model.CodeNotFound {
			continue
		}
		if code != model.CodeOK {
			return "", "", code
		}

		cacheKey := ctx.NodeID + "\x00" + canon
		if source, hit := w.moduleSources[cacheKey]; hit {
			return source, canon, model.CodeOK
		}

		entry, ok := srv.Overlay.Resolve(canon)
		if !ok || entry.IsDir() {
			continue
		}
		if entry.FileKind != model.FileKindExecutableScript && entry.FileKind != model.FileKindText {
			return "", "", model.CodeNotALibrary
		}
		text, err := srv.Overlay.ReadText(canon)
		if err != nil {
			continue
		}
		w.moduleSources[cacheKey] = text
		return text, canon, model.CodeOK
	}
	return "", "", model.CodeNotFound
}

// moduleInDir resolves name within dir, treating a bare name and its .js
// sibling as the same module; both existing at once is ambiguous.
func moduleInDir(srv *Server, dir, name, cwd string) (string, model.IntrinsicCode) {
	exact := model.NormalizePath(path.Join(dir, name), cwd)
	_, exactOK := srv.Overlay.Resolve(exact)

	if strings.HasSuffix(name, ".js") {
		if exactOK {
			return exact, model.CodeOK
		}
		return "", model.CodeNotFound
	}

	withExt := exact + ".js"
	_, extOK := srv.Overlay.Resolve(withExt)
	switch {
	case exactOK && extOK:
		return "", model.CodeImportAmbiguous
	case exactOK:
		return exact, model.CodeOK
	case extOK:
		return withExt, model.CodeOK
	}
	return "", model.CodeNotFound
}

// Print delivers a line of script output to the terminal that owns ctx.
func (w *World) Print(ctx modules.ScriptContext, level string, text string) {
	prefix := ""
	switch level {
	case "warn":
		prefix = "warning: "
	case "error":
		prefix = "error: "
	}
	w.QueueEventLine(ctx.NodeID, ctx.UserKey, prefix+text)
}
