package world

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/mailtwo/nexus-link-sub005/internal/model"
	"github.com/mailtwo/nexus-link-sub005/internal/termcli"
)

// registerFsBuiltins installs the filesystem-facing syscall handlers
// into reg.
func registerFsBuiltins(reg *termcli.Registry) {
	reg.Register(&termcli.Handler{Verb: "pwd", HelpShort: "print working directory", Call: cmdPwd})
	reg.Register(&termcli.Handler{Verb: "ls", HelpShort: "list directory contents", Call: cmdLs})
	reg.Register(&termcli.Handler{Verb: "cd", HelpShort: "change working directory", Call: cmdCd})
	reg.Register(&termcli.Handler{Verb: "cat", HelpShort: "print a text file", Call: cmdCat})
	reg.Register(&termcli.Handler{Verb: "mkdir", HelpShort: "create a directory", Call: cmdMkdir})
	reg.Register(&termcli.Handler{Verb: "rm", HelpShort: "remove a file or directory", Call: cmdRm})
	reg.Register(&termcli.Handler{Verb: "cp", HelpShort: "copy a file", Call: cmdCp})
	reg.Register(&termcli.Handler{Verb: "mv", HelpShort: "move/rename a file", Call: cmdMv})
	reg.Register(&termcli.Handler{Verb: "edit", HelpShort: "open a file for editing", Call: cmdEdit})
	reg.Register(&termcli.Handler{Verb: "findtext", HelpShort: "search file contents for a substring", Call: cmdFindtext})
	reg.Register(&termcli.Handler{Verb: "man", HelpShort: "show help for a command", Call: cmdMan})
	reg.Register(&termcli.Handler{Verb: "ps", HelpShort: "list running processes on this node", Call: cmdPs})
}

func asTermCtx(ctx interface{}) (*TermContext, error) {
	tc, ok := ctx.(*TermContext)
	if !ok {
		return nil, fmt.Errorf("invalid execution context")
	}
	return tc, nil
}

func resolveEntry(tc *TermContext, p string) (*Server, model.Entry, string, bool) {
	srv, ok := tc.Server()
	if !ok {
		return nil, model.Entry{}, "", false
	}
	norm := model.NormalizePath(p, tc.Cwd)
	entry, ok := srv.Overlay.Resolve(norm)
	return srv, entry, norm, ok
}

func cmdPwd(ctx interface{}, cmd *termcli.Command) termcli.Result {
	tc, err := asTermCtx(ctx)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}
	return termcli.Ok(tc.Cwd)
}

func cmdLs(ctx interface{}, cmd *termcli.Command) termcli.Result {
	tc, err := asTermCtx(ctx)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}
	target := tc.Cwd
	if len(cmd.Args) > 0 {
		target = cmd.Args[0]
	}

	srv, entry, norm, ok := resolveEntry(tc, target)
	if !ok {
		return termcli.Err(termcli.CodeNotFound, "no such file or directory")
	}
	if !entry.IsDir() {
		return termcli.Err(termcli.CodeNotDirectory, "not a directory")
	}
	if err := tc.requirePrivilege(model.Privilege{R: true}); err != nil {
		return termcli.Err(termcli.CodePermissionDenied, err.Error())
	}

	children := srv.Overlay.ListChildren(norm)
	sort.Strings(children)
	return termcli.Ok(children...)
}

func cmdCd(ctx interface{}, cmd *termcli.Command) termcli.Result {
	tc, err := asTermCtx(ctx)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}
	target := "/"
	if len(cmd.Args) > 0 {
		target = cmd.Args[0]
	}

	_, entry, norm, ok := resolveEntry(tc, target)
	if !ok {
		return termcli.Err(termcli.CodeNotFound, "no such file or directory")
	}
	if !entry.IsDir() {
		return termcli.Err(termcli.CodeNotDirectory, "not a directory")
	}
	if err := tc.requirePrivilege(model.Privilege{R: true}); err != nil {
		return termcli.Err(termcli.CodePermissionDenied, err.Error())
	}

	return termcli.OkData(map[string]interface{}{"nextCwd": norm})
}

func cmdCat(ctx interface{}, cmd *termcli.Command) termcli.Result {
	tc, err := asTermCtx(ctx)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}
	if len(cmd.Args) < 1 {
		return termcli.Err(termcli.CodeInvalidArgs, "usage: cat <path>")
	}

	srv, entry, norm, ok := resolveEntry(tc, cmd.Args[0])
	if !ok {
		return termcli.Err(termcli.CodeNotFound, "no such file or directory")
	}
	if entry.IsDir() {
		return termcli.Err(termcli.CodeIsDirectory, "is a directory")
	}
	if entry.FileKind != model.FileKindText {
		return termcli.Err(termcli.CodeNotTextFile, "not a text file")
	}
	if entry.Size > maxCatBytes {
		return termcli.Err(termcli.CodeTooLarge, "file too large")
	}
	if err := tc.requirePrivilege(model.Privilege{R: true}); err != nil {
		return termcli.Err(termcli.CodePermissionDenied, err.Error())
	}

	text, rerr := srv.Overlay.ReadText(norm)
	if rerr != nil {
		return termcli.Err(termcli.CodeInternalError, rerr.Error())
	}
	return termcli.Ok(strings.Split(text, "\n")...)
}

func cmdMkdir(ctx interface{}, cmd *termcli.Command) termcli.Result {
	tc, err := asTermCtx(ctx)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}
	if len(cmd.Args) < 1 {
		return termcli.Err(termcli.CodeInvalidArgs, "usage: mkdir <path> [-p]")
	}

	target, parents := cmd.Args[0], false
	for _, a := range cmd.Args[1:] {
		if a == "-p" {
			parents = true
		}
	}

	srv, ok := tc.Server()
	if !ok {
		return termcli.Err(termcli.CodeNotFound, "no such server")
	}
	if err := tc.requirePrivilege(model.Privilege{W: true}); err != nil {
		return termcli.Err(termcli.CodePermissionDenied, err.Error())
	}

	norm := model.NormalizePath(target, tc.Cwd)
	parent := path.Dir(norm)
	if parent != "/" {
		pEntry, ok := srv.Overlay.Resolve(parent)
		if !ok && !parents {
			return termcli.Err(termcli.CodeNotFound, "parent does not exist")
		}
		if ok && !pEntry.IsDir() {
			return termcli.Err(termcli.CodeNotDirectory, "parent is not a directory")
		}
	}

	code := tc.World.FsMkdir(tc.scriptCtx(), norm, parents)
	if code != model.CodeOK && code != model.CodeAlreadyExists {
		return termcli.Err(termcli.CodeNotFound, string(code))
	}
	if code == model.CodeAlreadyExists && !parents {
		return termcli.Err(termcli.CodeAlreadyExists, "already exists")
	}
	return termcli.Ok()
}

func cmdRm(ctx interface{}, cmd *termcli.Command) termcli.Result {
	tc, err := asTermCtx(ctx)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}
	if len(cmd.Args) < 1 {
		return termcli.Err(termcli.CodeInvalidArgs, "usage: rm <path> [-r]")
	}

	target, recursive := cmd.Args[0], false
	for _, a := range cmd.Args[1:] {
		if a == "-r" {
			recursive = true
		}
	}

	srv, entry, norm, ok := resolveEntry(tc, target)
	if !ok {
		return termcli.Err(termcli.CodeNotFound, "no such file or directory")
	}
	if norm == "/" {
		return termcli.Err(termcli.CodeInvalidArgs, "cannot remove root")
	}
	if entry.IsDir() && len(srv.Overlay.ListChildren(norm)) > 0 && !recursive {
		return termcli.Err(termcli.CodeNotDirectory, "directory not empty")
	}
	if err := tc.requirePrivilege(model.Privilege{W: true}); err != nil {
		return termcli.Err(termcli.CodePermissionDenied, err.Error())
	}

	var derr error
	if recursive {
		derr = srv.Overlay.DeleteSubtree(norm)
	} else {
		derr = srv.Overlay.Delete(norm)
	}
	if derr != nil {
		return termcli.Err(termcli.CodeInternalError, derr.Error())
	}
	return termcli.Ok()
}

func cmdCp(ctx interface{}, cmd *termcli.Command) termcli.Result {
	return copyOrMove(ctx, cmd, false)
}

func cmdMv(ctx interface{}, cmd *termcli.Command) termcli.Result {
	return copyOrMove(ctx, cmd, true)
}

// copyOrMove implements cp/mv: cp retains then installs the
// source content id, mv additionally deletes the source atomically.
func copyOrMove(ctx interface{}, cmd *termcli.Command, move bool) termcli.Result {
	tc, err := asTermCtx(ctx)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}
	if len(cmd.Args) < 2 {
		return termcli.Err(termcli.CodeInvalidArgs, "usage: cp|mv <src> <dst>")
	}
	if err := tc.requirePrivilege(model.Privilege{R: true, W: true}); err != nil {
		return termcli.Err(termcli.CodePermissionDenied, err.Error())
	}

	srv, srcEntry, srcNorm, ok := resolveEntry(tc, cmd.Args[0])
	if !ok {
		return termcli.Err(termcli.CodeNotFound, "no such file or directory")
	}
	if srcEntry.IsDir() {
		return termcli.Err(termcli.CodeIsDirectory, "source is a directory")
	}

	dstNorm := model.NormalizePath(cmd.Args[1], tc.Cwd)
	if dstEntry, ok := srv.Overlay.Resolve(dstNorm); ok && dstEntry.IsDir() {
		dstNorm = path.Join(dstNorm, path.Base(srcNorm))
	}

	// retain before install so the destination holds its own reference
	tc.World.Store.Retain(srcEntry.ContentID)
	if err := srv.Overlay.InstallContentID(dstNorm, srcEntry.ContentID, srcEntry.FileKind, srcEntry.Size); err != nil {
		tc.World.Store.Release(srcEntry.ContentID)
		return termcli.Err(termcli.CodeInternalError, err.Error())
	}
	if move {
		if err := srv.Overlay.Delete(srcNorm); err != nil {
			return termcli.Err(termcli.CodeInternalError, err.Error())
		}
	}
	return termcli.Ok()
}

func cmdEdit(ctx interface{}, cmd *termcli.Command) termcli.Result {
	tc, err := asTermCtx(ctx)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}
	if len(cmd.Args) < 1 {
		return termcli.Err(termcli.CodeInvalidArgs, "usage: edit <path>")
	}
	if err := tc.requirePrivilege(model.Privilege{R: true, W: true}); err != nil {
		return termcli.Err(termcli.CodePermissionDenied, err.Error())
	}

	srv, entry, norm, ok := resolveEntry(tc, cmd.Args[0])
	if !ok {
		return termcli.OkData(map[string]interface{}{
			"openEditor": true, "editorPath": norm, "editorText": "", "editorNew": true,
		})
	}
	if entry.IsDir() {
		return termcli.Err(termcli.CodeIsDirectory, "is a directory")
	}

	if entry.FileKind == model.FileKindText {
		text, rerr := srv.Overlay.ReadText(norm)
		if rerr != nil {
			return termcli.Err(termcli.CodeInternalError, rerr.Error())
		}
		return termcli.OkData(map[string]interface{}{"openEditor": true, "editorPath": norm, "editorText": text})
	}

	data, rerr := srv.Overlay.ReadBytes(norm)
	if rerr != nil {
		return termcli.Err(termcli.CodeInternalError, rerr.Error())
	}
	return termcli.OkData(map[string]interface{}{
		"openEditor": true, "editorPath": norm, "editorHex": fmt.Sprintf("% x", data), "editorReadOnly": true,
	})
}

func cmdFindtext(ctx interface{}, cmd *termcli.Command) termcli.Result {
	tc, err := asTermCtx(ctx)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}
	if len(cmd.Args) < 1 {
		return termcli.Err(termcli.CodeInvalidArgs, "usage: findtext <substring> [path]")
	}
	root := tc.Cwd
	if len(cmd.Args) > 1 {
		root = cmd.Args[1]
	}
	srv, ok := tc.Server()
	if !ok {
		return termcli.Err(termcli.CodeNotFound, "no such server")
	}
	if err := tc.requirePrivilege(model.Privilege{R: true}); err != nil {
		return termcli.Err(termcli.CodePermissionDenied, err.Error())
	}

	matches := srv.Overlay.FindText(model.NormalizePath(root, tc.Cwd), cmd.Args[0])
	sort.Strings(matches)
	return termcli.Ok(matches...)
}

func cmdMan(ctx interface{}, cmd *termcli.Command) termcli.Result {
	tc, err := asTermCtx(ctx)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}
	verb := ""
	if len(cmd.Args) > 0 {
		verb = cmd.Args[0]
	}
	return termcli.Ok(strings.Split(tc.World.Registry.Help(verb), "\n")...)
}

func cmdPs(ctx interface{}, cmd *termcli.Command) termcli.Result {
	tc, err := asTermCtx(ctx)
	if err != nil {
		return termcli.Err(termcli.CodeInvalidArgs, err.Error())
	}
	srv, ok := tc.Server()
	if !ok {
		return termcli.Err(termcli.CodeNotFound, "no such server")
	}

	pids := make([]int, 0, len(srv.ProcessIDs))
	for pid := range srv.ProcessIDs {
		pids = append(pids, pid)
	}
	sort.Ints(pids)

	lines := make([]string, 0, len(pids))
	for _, pid := range pids {
		proc, ok := tc.World.ProcessList[pid]
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("%d\t%s\t%s", proc.PID, proc.Name, proc.State))
	}
	return termcli.Ok(lines...)
}
