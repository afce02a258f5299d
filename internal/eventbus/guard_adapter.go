package eventbus

import (
	"github.com/mailtwo/nexus-link-sub005/internal/guard"
	"github.com/mailtwo/nexus-link-sub005/internal/mlog"
	"github.com/mailtwo/nexus-link-sub005/internal/model"
)

// ScriptGuard adapts a compiled JS guard expression (internal/guard) to
// model.Guard, translating an *model.Event into the plain map goja binds
// as `event`.
type ScriptGuard struct {
	Compiled *guard.Compiled
}

// NewScriptGuard compiles expr, returning an error the caller should log
// and fall back to an always-false guard for.
func NewScriptGuard(expr string) (*ScriptGuard, error) {
	c, err := guard.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &ScriptGuard{Compiled: c}, nil
}

// Eval implements model.Guard.
func (g *ScriptGuard) Eval(evt *model.Event, state map[string]interface{}) bool {
	if g == nil || g.Compiled == nil {
		return true
	}
	res := g.Compiled.Eval(eventToMap(evt), state)
	if res.EvalError != nil {
		mlog.Warn("guard evaluation failed (timedOut=%v): %v", res.TimedOut, res.EvalError)
		return false
	}
	return res.Value
}

func eventToMap(evt *model.Event) map[string]interface{} {
	m := map[string]interface{}{
		"type":   evt.Type.String(),
		"timeMs": evt.TimeMs,
		"seq":    evt.Seq,
	}
	switch p := evt.Payload.(type) {
	case model.ProcessFinishedPayload:
		m["pid"] = p.PID
		m["nodeId"] = p.HostNodeID
		m["userKey"] = p.UserKey
		m["name"] = p.Name
	case model.PrivilegeAcquirePayload:
		m["nodeId"] = p.NodeID
		m["userKey"] = p.UserKey
		m["via"] = p.Via
		m["privilegeRead"] = p.Privilege.R
		m["privilegeWrite"] = p.Privilege.W
		m["privilegeExecute"] = p.Privilege.X
		m["unlockedNetIds"] = p.UnlockedNetIDs
		m["acquiredAtMs"] = p.AcquiredAtMs
	case model.FileAcquirePayload:
		m["fromNodeId"] = p.FromNodeID
		m["userKey"] = p.UserKey
		m["fileName"] = p.FileName
		m["remotePath"] = p.RemotePath
		m["localPath"] = p.LocalPath
		m["sizeBytes"] = p.SizeBytes
		m["transferMethod"] = p.TransferMethod
		m["acquiredAtMs"] = p.AcquiredAtMs
	}
	return m
}
