package world

import (
	"path"

	"github.com/mailtwo/nexus-link-sub005/internal/model"
	"github.com/mailtwo/nexus-link-sub005/internal/modules"
)

// destinationPath appends the source file's base name when dstPath names
// an existing directory.
func destinationPath(dst vfsResolver, cwd, dstPath, srcBaseName string) string {
	norm := model.NormalizePath(dstPath, cwd)
	if entry, ok := dst.Resolve(norm); ok && entry.IsDir() {
		return model.NormalizePath(path.Join(norm, srcBaseName), cwd)
	}
	return norm
}

// vfsResolver is the narrow slice of *vfs.Overlay ftp.go needs, named
// locally so this file doesn't have to import internal/vfs directly for a
// single method.
type vfsResolver interface {
	Resolve(p string) (model.Entry, bool)
}

func portOK(srv *Server, port int, wantType model.PortType) (model.Port, model.IntrinsicCode) {
	p, ok := srv.Ports[port]
	if !ok || p.Type != wantType {
		return model.Port{}, model.CodePortClosed
	}
	return p, model.CodeOK
}

// ftpEndpoints resolves the two sides of a transfer over the established
// session at the top of ctx's connection stack. Once connected, the
// terminal context targets the remote node, so the local workstation side
// is the frame's pre-connect endpoint.
func (w *World) ftpEndpoints(ctx modules.ScriptContext, port int) (local, remote *Server, frame model.ConnFrame, code model.IntrinsicCode) {
	remote, frame, code = w.activeRemote(ctx)
	if code != model.CodeOK {
		return nil, nil, frame, code
	}

	local, ok := w.Servers[frame.PrevNodeID]
	if !ok {
		return nil, nil, frame, model.CodeNotFound
	}

	p, code := portOK(remote, port, model.PortTypeFTP)
	if code != model.CodeOK {
		return nil, nil, frame, code
	}
	if !reachable(local, remote, p) {
		return nil, nil, frame, model.CodeNetDenied
	}
	return local, remote, frame, model.CodeOK
}

// ftpUsers checks the transfer's permission pair: read on the session's
// remote account, write on the local account the session was opened from.
func ftpUsers(local, remote *Server, frame model.ConnFrame, remoteUserKey string) model.IntrinsicCode {
	ru, ok := remote.UserByKey(remoteUserKey)
	if !ok || !ru.Privilege.R {
		return model.CodePermissionDenied
	}
	lu, ok := local.UserByKey(frame.PrevUserKey)
	if !ok || !lu.Privilege.W {
		return model.CodePermissionDenied
	}
	return model.CodeOK
}

// FTPGet reads remotePath on the connected remote endpoint and writes it
// into the local workstation overlay at localPath, emitting fileAcquire.
// Remote paths resolve against the session's cwd, local paths against the
// cwd the terminal had before connecting.
func (w *World) FTPGet(ctx modules.ScriptContext, port int, remotePath, localPath string) model.IntrinsicCode {
	local, remote, frame, code := w.ftpEndpoints(ctx, port)
	if code != model.CodeOK {
		return code
	}
	if code := ftpUsers(local, remote, frame, ctx.UserKey); code != model.CodeOK {
		return code
	}

	remoteNorm := model.NormalizePath(remotePath, ctx.Cwd)
	entry, ok := remote.Overlay.Resolve(remoteNorm)
	if !ok {
		return model.CodeNotFound
	}
	if entry.IsDir() {
		return model.CodeIsDirectory
	}

	data, err := remote.Overlay.ReadBytes(remoteNorm)
	if err != nil {
		return model.CodeNotFound
	}

	dstPath := destinationPath(local.Overlay, frame.PrevCwd, localPath, path.Base(remoteNorm))
	if err := local.Overlay.WriteFile(dstPath, data, entry.FileKind); err != nil {
		return model.CodeInvalidArgs
	}

	w.Events.Enqueue(model.Event{
		Type:   model.EventFileAcquire,
		TimeMs: w.WorldTick,
		Payload: model.FileAcquirePayload{
			FromNodeID:     remote.NodeID,
			UserKey:        frame.PrevUserKey,
			FileName:       path.Base(remoteNorm),
			RemotePath:     remoteNorm,
			LocalPath:      dstPath,
			SizeBytes:      int64(len(data)),
			ContentID:      entry.ContentID,
			TransferMethod: "ftp",
			AcquiredAtMs:   w.WorldTick,
		},
	})
	return model.CodeOK
}

// FTPPut is FTPGet's mirror direction. It deliberately does not emit
// fileAcquire: the transfer lands on a node the player already controls,
// so there is nothing newly acquired for scenario handlers to react to.
func (w *World) FTPPut(ctx modules.ScriptContext, port int, localPath, remotePath string) model.IntrinsicCode {
	local, remote, frame, code := w.ftpEndpoints(ctx, port)
	if code != model.CodeOK {
		return code
	}

	// mirror permission pair: read locally, write remotely
	lu, ok := local.UserByKey(frame.PrevUserKey)
	if !ok || !lu.Privilege.R {
		return model.CodePermissionDenied
	}
	ru, ok := remote.UserByKey(ctx.UserKey)
	if !ok || !ru.Privilege.W {
		return model.CodePermissionDenied
	}

	localNorm := model.NormalizePath(localPath, frame.PrevCwd)
	entry, ok := local.Overlay.Resolve(localNorm)
	if !ok {
		return model.CodeNotFound
	}
	if entry.IsDir() {
		return model.CodeIsDirectory
	}

	data, err := local.Overlay.ReadBytes(localNorm)
	if err != nil {
		return model.CodeNotFound
	}

	dstPath := destinationPath(remote.Overlay, ctx.Cwd, remotePath, path.Base(localNorm))
	if err := remote.Overlay.WriteFile(dstPath, data, entry.FileKind); err != nil {
		return model.CodeInvalidArgs
	}
	return model.CodeOK
}

// activeRemote resolves the session at the top of ctx's connection stack,
// the currently connected remote every transfer operates against.
func (w *World) activeRemote(ctx modules.ScriptContext) (*Server, model.ConnFrame, model.IntrinsicCode) {
	stack := w.TerminalStacks[ctx.TerminalSessionID]
	if len(stack) == 0 {
		return nil, model.ConnFrame{}, model.CodeInvalidArgs
	}
	frame := stack[len(stack)-1]
	remote, ok := w.Servers[frame.SessionNodeID]
	if !ok {
		return nil, model.ConnFrame{}, model.CodeNotFound
	}
	return remote, frame, model.CodeOK
}
