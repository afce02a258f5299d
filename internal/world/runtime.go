package world

import (
	"fmt"

	"github.com/mailtwo/nexus-link-sub005/internal/model"
	"github.com/mailtwo/nexus-link-sub005/internal/modules"
	"github.com/mailtwo/nexus-link-sub005/internal/scriptrt"
	"github.com/mailtwo/nexus-link-sub005/internal/termcli"
)

// maxCatBytes bounds `cat`/fs.readText to keep a terminal responsive; a
// round, generous-enough limit for the kind of planted report files
// scenarios use.
const maxCatBytes = 1 << 20

var staticPath = []string{"/opt/bin", "/bin", "/usr/bin"}

// TermContext is the execution context a syscall handler runs against.
// It is passed to termcli.Registry handlers as the opaque ctx value.
type TermContext struct {
	World             *World
	NodeID            string
	UserKey           string
	Cwd               string
	TerminalSessionID string
	PromptUser        string
	PromptHost        string
}

// Server returns the server the context is currently executing against,
// or nil if it no longer exists.
func (tc *TermContext) Server() (*Server, bool) {
	srv, ok := tc.World.Servers[tc.NodeID]
	return srv, ok
}

// User returns the acting user on the context's current server.
func (tc *TermContext) User() (model.User, bool) {
	srv, ok := tc.Server()
	if !ok {
		return model.User{}, false
	}
	return srv.UserByKey(tc.UserKey)
}

func (tc *TermContext) scriptCtx() modules.ScriptContext {
	return modules.ScriptContext{
		NodeID:            tc.NodeID,
		UserKey:           tc.UserKey,
		Cwd:               tc.Cwd,
		TerminalSessionID: tc.TerminalSessionID,
	}
}

// requirePrivilege checks the acting user's r/w/x bits against need,
// returning PermissionDenied if any required bit is missing.
func (tc *TermContext) requirePrivilege(need model.Privilege) error {
	u, ok := tc.User()
	if !ok {
		return fmt.Errorf("no such user")
	}
	if !u.Privilege.Satisfies(need) {
		return fmt.Errorf("permission denied")
	}
	return nil
}

// getDefaultTerminalContext builds the starting context for a freshly
// opened terminal on the player workstation.
func (w *World) getDefaultTerminalContext(userKey string) (TermContext, bool) {
	nodeID, ok := w.workstationNodeID()
	if !ok {
		return TermContext{}, false
	}
	srv := w.Servers[nodeID]
	u, ok := srv.UserByKey(userKey)
	if !ok {
		return TermContext{}, false
	}
	return TermContext{
		World:             w,
		NodeID:            nodeID,
		UserKey:           userKey,
		Cwd:               "/",
		TerminalSessionID: newSessionID(),
		PromptUser:        u.UserID,
		PromptHost:        srv.Name,
	}, true
}

// executeTerminalCommand parses and dispatches a single command line
// through the syscall core, falling back to PATH program
// resolution when the verb isn't a registered builtin.
func (w *World) executeTerminalCommand(tc *TermContext, line string) termcli.Result {
	cmd, err := w.Registry.Compile(line)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}
	if cmd == nil {
		return termcli.Ok()
	}

	if h, ok := w.Registry.Lookup(cmd.Verb); ok {
		return h.Call(tc, cmd)
	}
	return w.resolveAndRunProgram(tc, cmd, false)
}

// tryStartTerminalProgram is executeTerminalCommand's asynchronous
// sibling: scripts run under the script host with per-tick stepping
// rather than to completion inline.
func (w *World) tryStartTerminalProgram(tc *TermContext, line string) termcli.Result {
	cmd, err := w.Registry.Compile(line)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}
	if cmd == nil {
		return termcli.Ok()
	}
	if h, ok := w.Registry.Lookup(cmd.Verb); ok {
		return h.Call(tc, cmd)
	}
	return w.resolveAndRunProgram(tc, cmd, true)
}

// resolveAndRunProgram resolves a non-builtin verb against cwd and the
// static PATH, on the current server first and the player workstation
// second, then runs the matching executable.
func (w *World) resolveAndRunProgram(tc *TermContext, cmd *termcli.Command, async bool) termcli.Result {
	entry, absPath, srv, ok := w.resolveProgram(tc, cmd.Verb)
	if !ok {
		return termcli.Err(termcli.CodeUnknownCommand, fmt.Sprintf("unknown command: %s", cmd.Verb))
	}

	u, _ := srv.UserByKey(tc.UserKey)
	if !u.Privilege.R || !u.Privilege.X {
		return termcli.Err(termcli.CodePermissionDenied, "permission denied")
	}

	switch entry.FileKind {
	case model.FileKindExecutableScript:
		text, err := srv.Overlay.ReadText(absPath)
		if err != nil {
			return termcli.Err(termcli.CodeNotFound, "program not found")
		}
		sctx := tc.scriptCtx()
		sctx.ScriptDir = model.ParentPath(absPath)
		if async {
			return w.startScript(sctx, text, cmd.Args)
		}
		return w.runScriptSync(sctx, text, cmd.Args)
	case model.FileKindExecutableHardcode:
		return w.runHardcoded(tc, absPath, cmd.Args)
	default:
		return termcli.Err(termcli.CodeUnknownCommand, fmt.Sprintf("unknown command: %s", cmd.Verb))
	}
}

func (w *World) resolveProgram(tc *TermContext, verb string) (model.Entry, string, *Server, bool) {
	candidateDirs := make([]string, 0, len(staticPath)+1)
	candidateDirs = append(candidateDirs, tc.Cwd)
	candidateDirs = append(candidateDirs, staticPath...)

	srvOrder := []*Server{}
	if srv, ok := tc.Server(); ok {
		srvOrder = append(srvOrder, srv)
	}
	if wsID, ok := w.workstationNodeID(); ok && wsID != tc.NodeID {
		srvOrder = append(srvOrder, w.Servers[wsID])
	}

	for _, srv := range srvOrder {
		for _, dir := range candidateDirs {
			abs := model.NormalizePath(dir+"/"+verb, tc.Cwd)
			entry, ok := srv.Overlay.Resolve(abs)
			if !ok || !entry.FileKind.IsExecutable() {
				continue
			}
			return entry, abs, srv, true
		}
	}
	return model.Entry{}, "", nil, false
}

func (w *World) runScriptSync(sctx modules.ScriptContext, source string, argv []string) termcli.Result {
	_, res := scriptrt.Start(source, sctx, argv, w)
	if !res.OK {
		return termcli.Err(termcli.CodeInternalError, res.Err)
	}
	return termcli.Ok()
}

// startScript schedules a script for asynchronous execution,
// recording it as an attachedScript so interruptTerminalProgram and the
// scheduler can reach it again.
func (w *World) startScript(sctx modules.ScriptContext, source string, argv []string) termcli.Result {
	run, res := scriptrt.Start(source, sctx, argv, w)
	if !res.OK {
		return termcli.Err(termcli.CodeInternalError, res.Err)
	}

	pid := w.AllocPID()
	proc := model.Process{
		PID:               pid,
		Name:              "script",
		HostNodeID:        sctx.NodeID,
		UserKey:           sctx.UserKey,
		Path:              sctx.Cwd,
		ProcessType:       model.ProcessGeneric,
		TerminalSessionID: sctx.TerminalSessionID,
		EndAtMs:           w.WorldTick,
	}
	w.StartProcess(proc)

	as := &attachedScript{
		pid:               pid,
		terminalSessionID: sctx.TerminalSessionID,
		nodeID:            sctx.NodeID,
		userKey:           sctx.UserKey,
		scriptDir:         sctx.ScriptDir,
		run:               run,
	}
	w.scripts[sctx.TerminalSessionID] = as
	w.runsByPID[pid] = as

	return termcli.Ok(fmt.Sprintf("started (pid %d)", pid))
}

// StepScript advances a single running script one quantum (called from
// the world's tick loop once per attached script, not part of Tick itself
// since scripts progress once per real wall-clock poll rather than once
// per simulated tick).
func (w *World) StepScript(terminalSessionID string) {
	as, ok := w.scripts[terminalSessionID]
	if !ok {
		return
	}
	run := as.run.(*scriptrt.Run)
	ctx := modules.ScriptContext{
		NodeID:            as.nodeID,
		UserKey:           as.userKey,
		TerminalSessionID: terminalSessionID,
		ScriptDir:         as.scriptDir,
	}
	scriptrt.Step(run, ctx, w)
	if run.Finished() {
		w.CancelProcess(as.pid)
		delete(w.scripts, terminalSessionID)
		delete(w.runsByPID, as.pid)
	}
}

// interruptTerminalProgram cancels a running script attached to a
// terminal session.
func (w *World) interruptTerminalProgram(terminalSessionID string) bool {
	as, ok := w.scripts[terminalSessionID]
	if !ok {
		return false
	}
	scriptrt.Cancel(as.run.(*scriptrt.Run))
	w.CancelProcess(as.pid)
	delete(w.scripts, terminalSessionID)
	delete(w.runsByPID, as.pid)
	return true
}

func (w *World) runHardcoded(tc *TermContext, execPath string, argv []string) termcli.Result {
	srv, _ := tc.Server()
	raw, err := srv.Overlay.ReadBytes(execPath)
	if err != nil {
		return termcli.Err(termcli.CodeNotFound, "program not found")
	}
	token := string(raw)
	if len(token) < len("exec:") || token[:5] != "exec:" {
		return termcli.Err(termcli.CodeInternalError, "malformed executable token")
	}
	execID := token[5:]
	fn, ok := w.execHandlers[execID]
	if !ok {
		return termcli.Err(termcli.CodeUnknownCommand, fmt.Sprintf("unknown exec id: %s", execID))
	}
	data := fn(w, tc.scriptCtx(), argv)
	return resultFromIntrinsic(data)
}

// resultFromIntrinsic folds an intrinsic-module-shaped {ok, code, err?}
// result map into a termcli.Result; ok is an
// int (1/0) in that shape, not a bool.
func resultFromIntrinsic(data map[string]interface{}) termcli.Result {
	okVal, _ := data["ok"].(int)
	if okVal == 0 {
		code, _ := data["code"].(string)
		msg, _ := data["err"].(string)
		return termcli.Err(termcli.Code(code), msg)
	}
	return termcli.OkData(data)
}

// saveEditorContent is a permission-checked overlay write used by the
// `edit` transition's save callback.
func (w *World) saveEditorContent(nodeID, userKey, cwd, path, text string) error {
	srv, ok := w.Servers[nodeID]
	if !ok {
		return fmt.Errorf("no such server")
	}
	u, ok := srv.UserByKey(userKey)
	if !ok || !u.Privilege.W {
		return fmt.Errorf("permission denied")
	}
	norm := model.NormalizePath(path, cwd)
	return srv.Overlay.WriteFile(norm, []byte(text), model.FileKindText)
}
