package scriptrt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailtwo/nexus-link-sub005/internal/model"
	"github.com/mailtwo/nexus-link-sub005/internal/modules"
	"github.com/mailtwo/nexus-link-sub005/internal/scriptrt"
)

type nopHost struct{ printed []string }

func (h *nopHost) FsResolve(ctx modules.ScriptContext, path string) (model.Entry, bool) {
	return model.Entry{}, false
}
func (h *nopHost) FsListChildren(ctx modules.ScriptContext, path string) ([]string, model.IntrinsicCode) {
	return nil, model.CodeNotFound
}
func (h *nopHost) FsReadText(ctx modules.ScriptContext, path string) (string, model.IntrinsicCode) {
	return "", model.CodeNotFound
}
func (h *nopHost) FsWriteFile(ctx modules.ScriptContext, path string, data []byte) model.IntrinsicCode {
	return model.CodeOK
}
func (h *nopHost) FsMkdir(ctx modules.ScriptContext, path string, parents bool) model.IntrinsicCode {
	return model.CodeOK
}
func (h *nopHost) FsDelete(ctx modules.ScriptContext, path string, recursive bool) model.IntrinsicCode {
	return model.CodeOK
}
func (h *nopHost) FsFind(ctx modules.ScriptContext, root, substring string) []string { return nil }
func (h *nopHost) NetKnown(ctx modules.ScriptContext) map[string][]modules.HostInfo  { return nil }
func (h *nopHost) NetScan(ctx modules.ScriptContext, netID string) ([]string, model.IntrinsicCode) {
	return nil, model.CodeNotFound
}
func (h *nopHost) SSHConnect(ctx modules.ScriptContext, hostOrIP string, port int, user, passwd string) (modules.ConnectOutcome, model.IntrinsicCode) {
	return modules.ConnectOutcome{}, model.CodeNotFound
}
func (h *nopHost) SSHDisconnect(ctx modules.ScriptContext) model.IntrinsicCode { return model.CodeOK }
func (h *nopHost) FTPGet(ctx modules.ScriptContext, port int, remotePath, localPath string) model.IntrinsicCode {
	return model.CodeOK
}
func (h *nopHost) FTPPut(ctx modules.ScriptContext, port int, localPath, remotePath string) model.IntrinsicCode {
	return model.CodeOK
}
func (h *nopHost) NowMs() int64                                 { return 0 }
func (h *nopHost) TOTPNow(secret string) (string, error)        { return "000000", nil }
func (h *nopHost) ResolveModule(ctx modules.ScriptContext, fromDir, name string) (string, string, model.IntrinsicCode) {
	return "", "", model.CodeNotFound
}
func (h *nopHost) Print(ctx modules.ScriptContext, level string, text string) {
	h.printed = append(h.printed, text)
}

func TestStartRunsTopLevelCode(t *testing.T) {
	h := &nopHost{}
	run, res := scriptrt.Start(`term.print("hello"); ({ok: 1, code: "OK"})`, modules.ScriptContext{}, nil, h)
	require.NotNil(t, run)
	assert.True(t, res.OK)
	assert.Equal(t, []string{"hello"}, h.printed)
	assert.True(t, run.Finished(), "script with no onTick registration finishes after Start")
}

func TestStartRegistersOnTickAndStepsAcrossTicks(t *testing.T) {
	h := &nopHost{}
	run, _ := scriptrt.Start(`
		var n = 0;
		process.onTick(function() {
			n++;
			term.print("tick " + n);
			return {ok: 1, code: "OK"};
		});
	`, modules.ScriptContext{}, nil, h)

	assert.False(t, run.Finished())

	scriptrt.Step(run, modules.ScriptContext{}, h)
	scriptrt.Step(run, modules.ScriptContext{}, h)

	assert.Equal(t, []string{"tick 1", "tick 2"}, h.printed)
}

func TestCancelStopsFurtherSteps(t *testing.T) {
	h := &nopHost{}
	run, _ := scriptrt.Start(`process.onTick(function() { term.print("x"); });`, modules.ScriptContext{}, nil, h)

	scriptrt.Cancel(run)
	res := scriptrt.Step(run, modules.ScriptContext{}, h)

	assert.False(t, res.OK)
	assert.True(t, run.Finished())
	assert.Empty(t, h.printed)
}

func TestStartPassesThroughIntrinsicResult(t *testing.T) {
	h := &nopHost{}
	// the host builds its result map with a native Go int ok field; a
	// script handing that map back untouched must still read as success
	_, res := scriptrt.Start(`fs.writeFile("/tmp/a.txt", "data")`, modules.ScriptContext{}, nil, h)
	assert.True(t, res.OK)
	assert.Equal(t, "OK", res.Code)
}

func TestStartCapturesThrownError(t *testing.T) {
	h := &nopHost{}
	_, res := scriptrt.Start(`throw new Error("boom")`, modules.ScriptContext{}, nil, h)
	assert.False(t, res.OK)
	assert.Contains(t, res.Err, "boom")
}
