// Package modules defines the intrinsic module surface the embedded
// script runtime (internal/scriptrt) injects into every run: term, fs,
// net, ssh, ftp, time, crypto, import. Each module is a thin goja-object
// adapter over the Host interface below. internal/world implements Host;
// this package never imports internal/world, keeping the dependency
// graph acyclic.
package modules

import "github.com/mailtwo/nexus-link-sub005/internal/model"

// ScriptContext is the (node, user, cwd, session) tuple every intrinsic
// call is evaluated against.
type ScriptContext struct {
	NodeID            string
	UserKey           string
	Cwd               string
	TerminalSessionID string

	// ScriptDir is the directory of the running script's own file, the
	// first stop for module resolution. Empty for guard/inline contexts,
	// which fall back to Cwd.
	ScriptDir string
}

// ConnectOutcome is the host-side result of an ssh.connect call.
type ConnectOutcome struct {
	NodeID     string
	UserKey    string
	Cwd        string
	PromptUser string
	PromptHost string
	MotdLines  []string
}

// HostInfo is one row of `known`/net.known output.
type HostInfo struct {
	Hostname string
	IP       string
}

// Host is the world-side capability surface intrinsics call into. Every
// method returns either a value plus ok/error suitable for folding into a
// model.IntrinsicResult, or a model.IntrinsicCode directly for operations
// with a narrow, well-known failure taxonomy.
type Host interface {
	// fs
	FsResolve(ctx ScriptContext, path string) (model.Entry, bool)
	FsListChildren(ctx ScriptContext, path string) ([]string, model.IntrinsicCode)
	FsReadText(ctx ScriptContext, path string) (string, model.IntrinsicCode)
	FsWriteFile(ctx ScriptContext, path string, data []byte) model.IntrinsicCode
	FsMkdir(ctx ScriptContext, path string, parents bool) model.IntrinsicCode
	FsDelete(ctx ScriptContext, path string, recursive bool) model.IntrinsicCode
	FsFind(ctx ScriptContext, root, substring string) []string

	// net
	NetKnown(ctx ScriptContext) map[string][]HostInfo
	NetScan(ctx ScriptContext, netID string) ([]string, model.IntrinsicCode)

	// ssh
	SSHConnect(ctx ScriptContext, hostOrIP string, port int, user, passwd string) (ConnectOutcome, model.IntrinsicCode)
	SSHDisconnect(ctx ScriptContext) model.IntrinsicCode

	// ftp
	FTPGet(ctx ScriptContext, port int, remotePath, localPath string) model.IntrinsicCode
	FTPPut(ctx ScriptContext, port int, localPath, remotePath string) model.IntrinsicCode

	// time
	NowMs() int64

	// crypto: the current TOTP code for a base32 secret, computed against
	// the host's clock.
	TOTPNow(secretBase32 string) (string, error)

	// import
	ResolveModule(ctx ScriptContext, fromDir, name string) (source string, canonicalPath string, err model.IntrinsicCode)

	// term output sink
	Print(ctx ScriptContext, level string, text string)
}
