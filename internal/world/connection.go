package world

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mailtwo/nexus-link-sub005/internal/model"
	"github.com/mailtwo/nexus-link-sub005/internal/modules"
)

// newSessionID mints an opaque session identifier. UUIDs rather than a
// world counter so session ids leak nothing about world activity to
// scripts that see them.
func newSessionID() string {
	return "sess-" + uuid.NewString()
}

// connectLimit is the per-(source,target) node connect attempt budget: a
// small burst, refilling slowly, so a script hammering `connect` against
// the same host trips ERR_RATE_LIMITED instead of brute-forcing passwords
// at simulation speed.
const (
	connectRateRefill = 2 * time.Second
	connectBurst      = 3
)

// allowConnectAttempt consumes one token from the (src,dst) pair's
// limiter, lazily creating it on first use.
func (w *World) allowConnectAttempt(srcNodeID, dstNodeID string) bool {
	key := srcNodeID + "\x00" + dstNodeID
	lim, ok := w.connectLimiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(connectRateRefill), connectBurst)
		w.connectLimiters[key] = lim
	}
	return lim.Allow()
}

// reachable reports whether a port on dst is addressable from src:
// either the two share a subnet on which dst's interface is exposed, or
// the port itself is public and dst has an exposed internet interface.
// Shared membership alone is not enough; an unexposed interface refuses
// connections even from its own LAN.
func reachable(src, dst *Server, port model.Port) bool {
	for netID := range src.SubnetMembership {
		if dst.SubnetMembership[netID] && dst.ExposedByNet[netID] {
			return true
		}
	}
	return port.Exposure == model.ExposurePublic && dst.ExposedByNet[model.InternetNetID]
}

func findUserByID(srv *Server, userID string) (string, model.User, bool) {
	for _, key := range srv.SortedUserKeys() {
		u := srv.Users[key]
		if u.UserID == userID {
			return key, u, true
		}
	}
	return "", model.User{}, false
}

// SSHConnect implements the ssh.connect intrinsic: port
// lookup, reachability, authentication by the target user's authMode, and
// on success a new session plus a pushed connection frame so disconnect
// can restore the caller's prior context.
func (w *World) SSHConnect(ctx modules.ScriptContext, hostOrIP string, port int, user, passwd string) (modules.ConnectOutcome, model.IntrinsicCode) {
	src, srcOK := w.Servers[ctx.NodeID]
	if !srcOK {
		return modules.ConnectOutcome{}, model.CodeNotFound
	}

	dst, ok := w.ResolveHostOrIP(hostOrIP)
	if !ok {
		return modules.ConnectOutcome{}, model.CodeNotFound
	}

	if !w.allowConnectAttempt(src.NodeID, dst.NodeID) {
		return modules.ConnectOutcome{}, model.CodeRateLimited
	}

	p, ok := dst.Ports[port]
	if !ok || p.Type != model.PortTypeSSH {
		return modules.ConnectOutcome{}, model.CodePortClosed
	}
	if !reachable(src, dst, p) {
		return modules.ConnectOutcome{}, model.CodeNetDenied
	}

	userKey, u, ok := findUserByID(dst, user)
	if !ok {
		return modules.ConnectOutcome{}, model.CodeAuthFailed
	}

	switch u.AuthMode {
	case model.AuthNone:
		// unconditional
	case model.AuthStatic:
		if passwd != u.Passwd {
			return modules.ConnectOutcome{}, model.CodeAuthFailed
		}
	case model.AuthOtp:
		code, err := currentTOTP(u.Passwd, w.WorldTick)
		if err != nil || passwd != code {
			return modules.ConnectOutcome{}, model.CodeAuthFailed
		}
	default:
		return modules.ConnectOutcome{}, model.CodeAuthFailed
	}

	sess := model.Session{
		SessionID: newSessionID(),
		UserKey:   userKey,
		RemoteIP:  src.PrimaryIP(),
		Cwd:       "/",
	}
	dst.UpsertSession(sess)

	prevPromptUser := ctx.UserKey
	if srcUser, ok := src.UserByKey(ctx.UserKey); ok {
		prevPromptUser = srcUser.UserID
	}

	frame := model.ConnFrame{
		PrevNodeID:     src.NodeID,
		PrevUserKey:    ctx.UserKey,
		PrevCwd:        ctx.Cwd,
		PrevPromptUser: prevPromptUser,
		PrevPromptHost: src.Name,
		SessionNodeID:  dst.NodeID,
		SessionID:      sess.SessionID,
	}
	w.TerminalStacks[ctx.TerminalSessionID] = append(w.TerminalStacks[ctx.TerminalSessionID], frame)

	w.AddKnownNode(firstNetID(dst), dst.NodeID)
	w.Events.Enqueue(model.Event{
		Type:   model.EventPrivilegeAcquire,
		TimeMs: w.WorldTick,
		Payload: model.PrivilegeAcquirePayload{
			NodeID:       dst.NodeID,
			UserKey:      userKey,
			Privilege:    u.Privilege,
			Via:          "connect",
			AcquiredAtMs: w.WorldTick,
		},
	})

	var motd []string
	if text, err := dst.Overlay.ReadText("/etc/motd"); err == nil {
		motd = append(motd, text)
	}

	return modules.ConnectOutcome{
		NodeID:     dst.NodeID,
		UserKey:    userKey,
		Cwd:        sess.Cwd,
		PromptUser: u.UserID,
		PromptHost: dst.Name,
		MotdLines:  motd,
	}, model.CodeOK
}

func firstNetID(s *Server) string {
	for _, iface := range s.Interfaces {
		return iface.NetID
	}
	return ""
}

// SSHDisconnect pops the top connection frame for ctx's terminal session
// and removes the session it opened, restoring the caller's prior node,
// user, and cwd.
func (w *World) SSHDisconnect(ctx modules.ScriptContext) model.IntrinsicCode {
	stack := w.TerminalStacks[ctx.TerminalSessionID]
	if len(stack) == 0 {
		return model.CodeInvalidArgs
	}

	top := stack[len(stack)-1]
	w.TerminalStacks[ctx.TerminalSessionID] = stack[:len(stack)-1]

	if srv, ok := w.Servers[top.SessionNodeID]; ok {
		srv.RemoveSession(top.SessionID)
	}
	return model.CodeOK
}
