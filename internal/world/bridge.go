package world

import (
	"github.com/mailtwo/nexus-link-sub005/internal/model"
	"github.com/mailtwo/nexus-link-sub005/internal/termcli"
)

// TerminalRequest is one command line submitted by a terminal window.
type TerminalRequest struct {
	NodeID            string
	UserID            string
	Cwd               string
	CommandLine       string
	TerminalSessionID string
}

// TerminalResponse is the envelope the UI consumes after dispatching a
// command line. Transition fields are only set when the command moved the
// terminal somewhere (cd, connect, disconnect) or opened an editor.
type TerminalResponse struct {
	OK    bool
	Code  termcli.Code
	Lines []string

	NextCwd        string
	NextNodeID     string
	NextUserID     string
	NextPromptUser string
	NextPromptHost string

	OpenEditor        bool
	EditorPath        string
	EditorContent     string
	EditorReadOnly    bool
	EditorDisplayMode string // "text" | "hex"
	EditorPathExists  bool

	Data map[string]interface{}
}

// AsyncTerminalResponse is TerminalResponse's asynchronous sibling: when
// the resolved program is a script, Started reports that it was scheduled
// for cooperative execution instead of running inline.
type AsyncTerminalResponse struct {
	Handled  bool
	Started  bool
	Response TerminalResponse
}

// DefaultTerminalContext returns the starting context for a freshly
// opened terminal on the player workstation: node, user, cwd, a fresh
// terminal session id, prompt strings, and the workstation's MOTD.
type DefaultTerminalContext struct {
	NodeID            string
	UserKey           string
	Cwd               string
	TerminalSessionID string
	PromptUser        string
	PromptHost        string
	MotdLines         []string
}

// GetDefaultTerminalContext builds the starting context for userKey on
// the player workstation, or false if no workstation or user exists.
func (w *World) GetDefaultTerminalContext(userKey string) (DefaultTerminalContext, bool) {
	tc, ok := w.getDefaultTerminalContext(userKey)
	if !ok {
		return DefaultTerminalContext{}, false
	}

	var motd []string
	if srv, ok := w.Servers[tc.NodeID]; ok {
		if text, err := srv.Overlay.ReadText("/etc/motd"); err == nil {
			motd = append(motd, text)
		}
	}

	return DefaultTerminalContext{
		NodeID:            tc.NodeID,
		UserKey:           tc.UserKey,
		Cwd:               tc.Cwd,
		TerminalSessionID: tc.TerminalSessionID,
		PromptUser:        tc.PromptUser,
		PromptHost:        tc.PromptHost,
		MotdLines:         motd,
	}, true
}

// buildContext resolves a request into a live execution context. The
// request's UserID is matched against user map keys first, then against
// user display ids, so both internal callers and the UI's prompt-derived
// id resolve to the same account.
func (w *World) buildContext(req TerminalRequest) (*TermContext, termcli.Code, string) {
	if req.NodeID == "" || req.UserID == "" {
		return nil, termcli.CodeInvalidArgs, "missing nodeId or userId"
	}
	srv, ok := w.Servers[req.NodeID]
	if !ok {
		return nil, termcli.CodeNotFound, "no such server"
	}

	userKey := req.UserID
	u, ok := srv.UserByKey(userKey)
	if !ok {
		var found bool
		userKey, u, found = findUserByID(srv, req.UserID)
		if !found {
			return nil, termcli.CodeNotFound, "no such user"
		}
	}

	cwd := req.Cwd
	if cwd == "" {
		cwd = "/"
	}
	cwd = model.NormalizePath(cwd, "/")
	entry, ok := srv.Overlay.Resolve(cwd)
	if !ok {
		return nil, termcli.CodeNotFound, "no such directory"
	}
	if !entry.IsDir() {
		return nil, termcli.CodeNotDirectory, "cwd is not a directory"
	}

	return &TermContext{
		World:             w,
		NodeID:            req.NodeID,
		UserKey:           userKey,
		Cwd:               cwd,
		TerminalSessionID: req.TerminalSessionID,
		PromptUser:        u.UserID,
		PromptHost:        srv.Name,
	}, termcli.CodeOK, ""
}

// ExecuteTerminalCommand parses, resolves, and dispatches one command
// line synchronously, folding the handler result into the UI envelope.
func (w *World) ExecuteTerminalCommand(req TerminalRequest) TerminalResponse {
	tc, code, msg := w.buildContext(req)
	if code != termcli.CodeOK {
		return responseFrom(termcli.Err(code, "error: "+msg))
	}
	return responseFrom(w.executeTerminalCommand(tc, req.CommandLine))
}

// TryStartTerminalProgram is ExecuteTerminalCommand's asynchronous
// variant: a resolved script program is scheduled for cooperative
// execution and the response carries its handle line instead of final
// output.
func (w *World) TryStartTerminalProgram(req TerminalRequest) AsyncTerminalResponse {
	tc, code, msg := w.buildContext(req)
	if code != termcli.CodeOK {
		return AsyncTerminalResponse{Handled: true, Response: responseFrom(termcli.Err(code, "error: "+msg))}
	}

	res := w.tryStartTerminalProgram(tc, req.CommandLine)
	_, started := w.scripts[req.TerminalSessionID]
	return AsyncTerminalResponse{
		Handled:  true,
		Started:  started,
		Response: responseFrom(res),
	}
}

// InterruptTerminalProgram cancels the script attached to a terminal
// session, if any.
func (w *World) InterruptTerminalProgram(terminalSessionID string) bool {
	return w.interruptTerminalProgram(terminalSessionID)
}

// SaveEditorContent is the editor's save callback: a permission-checked
// overlay write at the edited path.
func (w *World) SaveEditorContent(nodeID, userKey, cwd, path, text string) error {
	return w.saveEditorContent(nodeID, userKey, cwd, path, text)
}

func responseFrom(res termcli.Result) TerminalResponse {
	out := TerminalResponse{
		OK:    res.Success(),
		Code:  res.Code,
		Lines: res.Lines,
		Data:  res.Data,
	}
	if res.Data == nil {
		return out
	}

	str := func(key string) string {
		v, _ := res.Data[key].(string)
		return v
	}
	out.NextCwd = str("nextCwd")
	out.NextNodeID = str("nextNodeId")
	out.NextUserID = str("nextUserKey")
	out.NextPromptUser = str("promptUser")
	out.NextPromptHost = str("promptHost")

	if open, _ := res.Data["openEditor"].(bool); open {
		out.OpenEditor = true
		out.EditorPath = str("editorPath")
		out.EditorDisplayMode = "text"
		out.EditorContent = str("editorText")
		if hex := str("editorHex"); hex != "" {
			out.EditorDisplayMode = "hex"
			out.EditorContent = hex
		}
		out.EditorReadOnly, _ = res.Data["editorReadOnly"].(bool)
		isNew, _ := res.Data["editorNew"].(bool)
		out.EditorPathExists = !isNew
	}
	return out
}
