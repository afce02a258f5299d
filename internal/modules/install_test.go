package modules_test

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailtwo/nexus-link-sub005/internal/model"
	"github.com/mailtwo/nexus-link-sub005/internal/modules"
)

type fakeHost struct {
	printed []string
	files   map[string]string
	modules map[string]string
}

func (f *fakeHost) FsResolve(ctx modules.ScriptContext, path string) (model.Entry, bool) {
	if path == "/etc/motd" {
		return model.Entry{Kind: model.KindFile, FileKind: model.FileKindText, Size: 5}, true
	}
	return model.Entry{}, false
}
func (f *fakeHost) FsListChildren(ctx modules.ScriptContext, path string) ([]string, model.IntrinsicCode) {
	return []string{"motd"}, model.CodeOK
}
func (f *fakeHost) FsReadText(ctx modules.ScriptContext, path string) (string, model.IntrinsicCode) {
	if path == "/missing" {
		return "", model.CodeNotFound
	}
	return "hello", model.CodeOK
}
func (f *fakeHost) FsWriteFile(ctx modules.ScriptContext, path string, data []byte) model.IntrinsicCode {
	if f.files == nil {
		f.files = make(map[string]string)
	}
	f.files[path] = string(data)
	return model.CodeOK
}
func (f *fakeHost) FsMkdir(ctx modules.ScriptContext, path string, parents bool) model.IntrinsicCode {
	return model.CodeOK
}
func (f *fakeHost) FsDelete(ctx modules.ScriptContext, path string, recursive bool) model.IntrinsicCode {
	return model.CodeOK
}
func (f *fakeHost) FsFind(ctx modules.ScriptContext, root, substring string) []string {
	return []string{"/etc/motd"}
}
func (f *fakeHost) NetKnown(ctx modules.ScriptContext) map[string][]modules.HostInfo {
	return map[string][]modules.HostInfo{"internet": {{Hostname: "srv", IP: "10.0.0.2"}}}
}
func (f *fakeHost) NetScan(ctx modules.ScriptContext, netID string) ([]string, model.IntrinsicCode) {
	return []string{"10.0.0.3"}, model.CodeOK
}
func (f *fakeHost) SSHConnect(ctx modules.ScriptContext, hostOrIP string, port int, user, passwd string) (modules.ConnectOutcome, model.IntrinsicCode) {
	if passwd != "correct" {
		return modules.ConnectOutcome{}, model.CodeAuthFailed
	}
	return modules.ConnectOutcome{NodeID: "srv", UserKey: user, Cwd: "/"}, model.CodeOK
}
func (f *fakeHost) SSHDisconnect(ctx modules.ScriptContext) model.IntrinsicCode { return model.CodeOK }
func (f *fakeHost) FTPGet(ctx modules.ScriptContext, port int, remotePath, localPath string) model.IntrinsicCode {
	return model.CodeOK
}
func (f *fakeHost) FTPPut(ctx modules.ScriptContext, port int, localPath, remotePath string) model.IntrinsicCode {
	return model.CodeOK
}
func (f *fakeHost) NowMs() int64 { return 12345 }
func (f *fakeHost) TOTPNow(secretBase32 string) (string, error) { return "123456", nil }
func (f *fakeHost) ResolveModule(ctx modules.ScriptContext, fromDir, name string) (string, string, model.IntrinsicCode) {
	if src, ok := f.modules[name]; ok {
		return src, "/lib/" + name + ".js", model.CodeOK
	}
	return "", "", model.CodeNotFound
}
func (f *fakeHost) Print(ctx modules.ScriptContext, level string, text string) {
	f.printed = append(f.printed, level+":"+text)
}

func newVM(t *testing.T, host modules.Host) *goja.Runtime {
	vm := goja.New()
	modules.Install(vm, host, modules.ScriptContext{NodeID: "n1", UserKey: "u1", Cwd: "/"})
	return vm
}

func TestTermPrintCallsHost(t *testing.T) {
	h := &fakeHost{}
	vm := newVM(t, h)
	_, err := vm.RunString(`term.print("hi there")`)
	require.NoError(t, err)
	assert.Equal(t, []string{"print:hi there"}, h.printed)
}

func TestFsReadTextSuccess(t *testing.T) {
	vm := newVM(t, &fakeHost{})
	v, err := vm.RunString(`fs.readText("/etc/motd")`)
	require.NoError(t, err)
	m := v.Export().(map[string]interface{})
	assert.EqualValues(t, 1, m["ok"])
	assert.Equal(t, "hello", m["text"])
}

func TestFsReadTextNotFound(t *testing.T) {
	vm := newVM(t, &fakeHost{})
	v, err := vm.RunString(`fs.readText("/missing")`)
	require.NoError(t, err)
	m := v.Export().(map[string]interface{})
	assert.EqualValues(t, 0, m["ok"])
	assert.Equal(t, "ERR_NOT_FOUND", m["code"])
}

func TestSSHConnectAuthFailed(t *testing.T) {
	vm := newVM(t, &fakeHost{})
	v, err := vm.RunString(`ssh.connect("10.0.0.2", 22, "root", "wrong")`)
	require.NoError(t, err)
	m := v.Export().(map[string]interface{})
	assert.Equal(t, "ERR_AUTH_FAILED", m["code"])
}

func TestSSHConnectSuccess(t *testing.T) {
	vm := newVM(t, &fakeHost{})
	v, err := vm.RunString(`ssh.connect("10.0.0.2", 22, "root", "correct")`)
	require.NoError(t, err)
	m := v.Export().(map[string]interface{})
	assert.EqualValues(t, 1, m["ok"])
	assert.Equal(t, "srv", m["nodeId"])
}

func TestRequireExecutesAndBindsModule(t *testing.T) {
	h := &fakeHost{modules: map[string]string{
		"mathlib": "// @name mathlib\n({double: function(n) { return n * 2; }})",
	}}
	vm := newVM(t, h)

	v, err := vm.RunString(`require("mathlib").double(21)`)
	require.NoError(t, err)
	assert.EqualValues(t, 42, v.ToInteger())

	// the module value is also bound globally under its file stem
	v, err = vm.RunString(`mathlib.double(2)`)
	require.NoError(t, err)
	assert.EqualValues(t, 4, v.ToInteger())
}

func TestRequireAliasBinding(t *testing.T) {
	h := &fakeHost{modules: map[string]string{
		"mathlib": "// @name mathlib\n({double: function(n) { return n * 2; }})",
	}}
	vm := newVM(t, h)

	_, err := vm.RunString(`require("mathlib", "m")`)
	require.NoError(t, err)
	v, err := vm.RunString(`m.double(3)`)
	require.NoError(t, err)
	assert.EqualValues(t, 6, v.ToInteger())
}

func TestRequireRunsModuleOnce(t *testing.T) {
	h := &fakeHost{modules: map[string]string{
		"counter": "// @name counter\nif (typeof hits === \"undefined\") { hits = 0; }\nhits = hits + 1;\n({})",
	}}
	vm := newVM(t, h)

	_, err := vm.RunString(`require("counter"); require("counter");`)
	require.NoError(t, err)
	v, err := vm.RunString(`hits`)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v.ToInteger())
}

func TestRequireCollectsTopLevelBindings(t *testing.T) {
	h := &fakeHost{modules: map[string]string{
		"strlib": "// @name strlib\nvar shout = function(s) { return s.toUpperCase(); };",
	}}
	vm := newVM(t, h)

	v, err := vm.RunString(`require("strlib").shout("abc")`)
	require.NoError(t, err)
	assert.Equal(t, "ABC", v.String())
}

func TestRequireCycleRaises(t *testing.T) {
	h := &fakeHost{modules: map[string]string{
		"a": "// @name a\nrequire(\"b\");\n({})",
		"b": "// @name b\nrequire(\"a\");\n({})",
	}}
	vm := newVM(t, h)

	_, err := vm.RunString(`require("a")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_IMPORT_CYCLE")
}

func TestRequireWithoutNameHeaderRaises(t *testing.T) {
	h := &fakeHost{modules: map[string]string{"plain": "var x = 1;"}}
	vm := newVM(t, h)

	_, err := vm.RunString(`require("plain")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_NOT_A_LIBRARY")
}

func TestRequireMissingRaises(t *testing.T) {
	vm := newVM(t, &fakeHost{})
	_, err := vm.RunString(`require("missing")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_NOT_FOUND")
}

func TestRequireResolveMissing(t *testing.T) {
	vm := newVM(t, &fakeHost{})
	v, err := vm.RunString(`require.resolve(".", "missing")`)
	require.NoError(t, err)
	m := v.Export().(map[string]interface{})
	assert.Equal(t, "ERR_NOT_FOUND", m["code"])
}

func TestImportGlobalAliasesRequire(t *testing.T) {
	vm := newVM(t, &fakeHost{})
	v, err := vm.RunString(`this["import"] === require`)
	require.NoError(t, err)
	assert.True(t, v.ToBoolean())
}

func TestCryptoTotpNow(t *testing.T) {
	vm := newVM(t, &fakeHost{})
	v, err := vm.RunString(`crypto.totpNow("JBSWY3DPEHPK3PXP")`)
	require.NoError(t, err)
	m := v.Export().(map[string]interface{})
	assert.Equal(t, "123456", m["code"])
}

func TestTimeNowMs(t *testing.T) {
	vm := newVM(t, &fakeHost{})
	v, err := vm.RunString(`time.nowMs()`)
	require.NoError(t, err)
	assert.EqualValues(t, 12345, v.ToInteger())
}
