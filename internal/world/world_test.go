package world_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailtwo/nexus-link-sub005/internal/blueprint"
	"github.com/mailtwo/nexus-link-sub005/internal/model"
	"github.com/mailtwo/nexus-link-sub005/internal/modules"
	"github.com/mailtwo/nexus-link-sub005/internal/savecodec"
	"github.com/mailtwo/nexus-link-sub005/internal/world"
)

const termSession = "term-test-1"

func testCatalog() blueprint.Catalog {
	return blueprint.Catalog{
		ServerSpecs: []blueprint.ServerSpec{
			{
				SpecID: "ws",
				Role:   "workstation",
				Users: []blueprint.UserSpec{{
					UserKey: "player", UserID: "player", AuthMode: "none",
					Privilege: blueprint.PrivilegeSpec{R: true, W: true, X: true},
				}},
				Ports: []blueprint.PortSpec{{Num: 22, Type: "ssh", Exposure: "private"}},
				Overlay: []blueprint.OverlayEntrySpec{
					{Path: "/opt/bin/hello", Kind: "file", FileKind: "executableScript",
						Content: `term.print("hello from script")`},
					{Path: "/opt/bin/shout", Kind: "file", FileKind: "executableScript",
						Content: `term.print(require("strutil").shout(argv[0]))`},
					{Path: "/lib/strutil.js", Kind: "file", FileKind: "executableScript",
						Content: "// @name strutil\n({shout: function(s) { return s.toUpperCase(); }})"},
					{Path: "/opt/bin/probe", Kind: "file", FileKind: "executableHardcode", ExecID: "inspect"},
				},
			},
			{
				SpecID: "srv",
				Role:   "server",
				Users: []blueprint.UserSpec{{
					UserKey: "ops", UserID: "ops", Passwd: "pw2", AuthMode: "static",
					Privilege: blueprint.PrivilegeSpec{R: true, W: true, X: true},
				}},
				Ports: []blueprint.PortSpec{
					{Num: 22, Type: "ssh", Exposure: "public"},
					{Num: 21, Type: "ftp", Exposure: "public"},
				},
				Overlay: []blueprint.OverlayEntrySpec{
					{Path: "/etc/motd", Kind: "file", FileKind: "text", Content: "restricted access only"},
					{Path: "/etc/banner.txt", Kind: "file", FileKind: "text", Content: "property of nexus corp"},
					{Path: "/opt/data", Kind: "dir"},
					{Path: "/opt/data/report.txt", Kind: "file", FileKind: "text", Content: "quarterly numbers"},
				},
			},
		},
		Campaigns: []blueprint.Campaign{{
			WorldSeed: "test",
			Subnets:   []blueprint.SubnetSpec{{NetID: "internet", CIDR: "10.0.20.0/24"}},
			Spawns: []blueprint.ServerSpawn{
				{NodeID: "workstation", SpecRef: "ws", Hostname: "home",
					Interfaces: []blueprint.InterfaceSpec{{NetID: "internet"}}},
				{NodeID: "srv", SpecRef: "srv", Hostname: "srv",
					Interfaces: []blueprint.InterfaceSpec{{NetID: "internet", HostSuffix: "9", InitiallyExposed: true}}},
			},
		}},
	}
}

func seedBase(w *world.World) {
	w.Base.AddDir("/home/player")
	w.Base.AddDir("/opt/bin")
	w.Base.AddDir("/lib")
	w.Base.AddFile("/etc/motd", []byte("welcome home"), model.FileKindText, true)
}

func buildTestWorld(t *testing.T) *world.World {
	t.Helper()
	w := world.New("test")
	seedBase(w)
	require.NoError(t, w.Apply(testCatalog()))
	return w
}

func exec(w *world.World, nodeID, userID, cwd, line string) world.TerminalResponse {
	return w.ExecuteTerminalCommand(world.TerminalRequest{
		NodeID:            nodeID,
		UserID:            userID,
		Cwd:               cwd,
		CommandLine:       line,
		TerminalSessionID: termSession,
	})
}

func TestBlueprintAssignsExplicitHostSuffix(t *testing.T) {
	w := buildTestWorld(t)
	assert.Equal(t, "srv", w.IPIndex["10.0.20.9"])
	assert.Equal(t, "10.0.20.9", w.Servers["srv"].PrimaryIP())
}

func TestConnectRemoteCatDisconnect(t *testing.T) {
	w := buildTestWorld(t)

	resp := exec(w, "workstation", "player", "/home/player", "connect 10.0.20.9 ops pw2")
	require.True(t, resp.OK, resp.Lines)
	assert.Equal(t, "srv", resp.NextNodeID)
	assert.Equal(t, "/", resp.NextCwd)
	assert.Equal(t, "ops", resp.NextPromptUser)
	assert.Equal(t, "srv", resp.NextPromptHost)
	assert.Contains(t, resp.Lines, "restricted access only")

	resp = exec(w, "srv", "ops", "/", "cat /etc/banner.txt")
	require.True(t, resp.OK, resp.Lines)
	assert.Equal(t, []string{"property of nexus corp"}, resp.Lines)

	resp = exec(w, "srv", "ops", "/", "disconnect")
	require.True(t, resp.OK, resp.Lines)
	assert.Equal(t, "workstation", resp.NextNodeID)
	assert.Equal(t, "/home/player", resp.NextCwd)
	assert.Equal(t, "player", resp.NextUserID)
}

func TestConnectByHostname(t *testing.T) {
	w := buildTestWorld(t)
	resp := exec(w, "workstation", "player", "/", "connect srv ops pw2")
	require.True(t, resp.OK, resp.Lines)
	assert.Equal(t, "srv", resp.NextNodeID)
}

func TestConnectFailureCodes(t *testing.T) {
	w := buildTestWorld(t)

	resp := exec(w, "workstation", "player", "/", "connect nowhere ops pw2")
	assert.Equal(t, "ERR_NOT_FOUND", string(resp.Code))

	resp = exec(w, "workstation", "player", "/", "connect srv ops wrongpw")
	assert.Equal(t, "ERR_AUTH_FAILED", string(resp.Code))

	resp = exec(w, "workstation", "player", "/", "connect -p 8080 srv ops pw2")
	assert.Equal(t, "ERR_PORT_CLOSED", string(resp.Code))
}

func TestRepeatedConnectAttemptsRateLimited(t *testing.T) {
	w := buildTestWorld(t)

	var last world.TerminalResponse
	for i := 0; i < 4; i++ {
		last = exec(w, "workstation", "player", "/", "connect srv ops wrongpw")
	}
	assert.Equal(t, "ERR_RATE_LIMITED", string(last.Code))
}

func TestDisconnectWithoutConnection(t *testing.T) {
	w := buildTestWorld(t)
	resp := exec(w, "workstation", "player", "/", "disconnect")
	assert.Equal(t, "ERR_INVALID_ARGS", string(resp.Code))
}

func TestFtpGetTransfersAndEmitsFileAcquire(t *testing.T) {
	w := buildTestWorld(t)
	w.Events.RegisterHandler(model.HandlerDescriptor{
		ScenarioID:    "test",
		EventID:       "got-report",
		ConditionType: model.ConditionFileAcquired,
		NodeIDKey:     "srv",
		UserKey:       model.AnyKey,
		FileNameKey:   "report.txt",
		Actions:       []model.Action{{Type: model.ActionPrint, Text: "report acquired"}},
	})

	resp := exec(w, "workstation", "player", "/home/player", "connect 10.0.20.9 ops pw2")
	require.True(t, resp.OK, resp.Lines)

	resp = exec(w, "srv", "ops", "/", "ftp get /opt/data/report.txt /home/player/report.txt")
	require.True(t, resp.OK, resp.Lines)

	// transferred payload landed in the workstation overlay
	local := exec(w, "workstation", "player", "/home/player", "cat report.txt")
	require.True(t, local.OK, local.Lines)
	assert.Equal(t, []string{"quarterly numbers"}, local.Lines)

	// the fileAcquire event dispatches on the next tick
	w.Tick(16, t.Logf)
	assert.Contains(t, w.DrainTerminalEventLines("srv", "player"), "report acquired")
}

func TestFtpPutMirrorsWithoutFileAcquire(t *testing.T) {
	w := buildTestWorld(t)

	resp := exec(w, "workstation", "player", "/home/player", "connect 10.0.20.9 ops pw2")
	require.True(t, resp.OK, resp.Lines)

	resp = exec(w, "workstation", "player", "/home/player", "edit notes.txt")
	require.True(t, resp.OK)
	require.NoError(t, w.SaveEditorContent("workstation", "player", "/home/player", "notes.txt", "drop point"))

	pending := w.Events.Len()
	resp = exec(w, "srv", "ops", "/", "ftp put /home/player/notes.txt /opt/data/notes.txt")
	require.True(t, resp.OK, resp.Lines)
	assert.Equal(t, pending, w.Events.Len(), "put must not enqueue fileAcquire")

	remote := exec(w, "srv", "ops", "/", "cat /opt/data/notes.txt")
	assert.Equal(t, []string{"drop point"}, remote.Lines)
}

func TestFtpWithoutSessionFails(t *testing.T) {
	w := buildTestWorld(t)
	resp := exec(w, "workstation", "player", "/", "ftp get /opt/data/report.txt /tmp.txt")
	assert.Equal(t, "ERR_INVALID_ARGS", string(resp.Code))
}

func TestBootingProcessCompletesAtEndTime(t *testing.T) {
	w := buildTestWorld(t)
	srv := w.Servers["srv"]
	srv.SetStatus(model.StatusOffline, model.ReasonPoweredOff)

	pid := w.AllocPID()
	w.StartProcess(model.Process{
		PID:         pid,
		Name:        "boot",
		HostNodeID:  "srv",
		UserKey:     "ops",
		ProcessType: model.ProcessBooting,
		EndAtMs:     10_000,
	})

	w.Tick(5_000, t.Logf)
	assert.Equal(t, model.StatusOffline, srv.Status, "must not complete early")

	w.Tick(5_000, t.Logf)
	assert.Equal(t, model.StatusOnline, srv.Status)
	assert.Equal(t, model.ReasonOk, srv.Reason)
	assert.Equal(t, model.ProcessFinished, w.ProcessList[pid].State)
	assert.NotContains(t, srv.ProcessIDs, pid)
}

func TestProcessTableAgreesWithServerSets(t *testing.T) {
	w := buildTestWorld(t)
	p1 := w.AllocPID()
	p2 := w.AllocPID()
	w.StartProcess(model.Process{PID: p1, Name: "a", HostNodeID: "workstation", EndAtMs: 1000})
	w.StartProcess(model.Process{PID: p2, Name: "b", HostNodeID: "srv", EndAtMs: 2000})

	seen := make(map[int]string)
	for nodeID, srv := range w.Servers {
		for pid := range srv.ProcessIDs {
			_, dup := seen[pid]
			assert.False(t, dup, "pid %d owned by two servers", pid)
			seen[pid] = nodeID
			assert.Contains(t, w.ProcessList, pid)
		}
	}
	assert.Equal(t, "workstation", seen[p1])
	assert.Equal(t, "srv", seen[p2])
}

func TestStartScriptProgramAsync(t *testing.T) {
	w := buildTestWorld(t)

	resp := w.TryStartTerminalProgram(world.TerminalRequest{
		NodeID:            "workstation",
		UserID:            "player",
		Cwd:               "/home/player",
		CommandLine:       "hello",
		TerminalSessionID: termSession,
	})
	require.True(t, resp.Handled)
	assert.True(t, resp.Started)
	require.True(t, resp.Response.OK, resp.Response.Lines)

	lines := w.DrainTerminalEventLines("workstation", "player")
	assert.Contains(t, lines, "hello from script")
}

func TestScriptProgramImportsLibrary(t *testing.T) {
	w := buildTestWorld(t)

	resp := w.TryStartTerminalProgram(world.TerminalRequest{
		NodeID:            "workstation",
		UserID:            "player",
		Cwd:               "/home/player",
		CommandLine:       "shout mixed",
		TerminalSessionID: termSession,
	})
	require.True(t, resp.Response.OK, resp.Response.Lines)

	assert.Contains(t, w.DrainTerminalEventLines("workstation", "player"), "MIXED")
}

func TestModuleResolutionAmbiguity(t *testing.T) {
	w := buildTestWorld(t)
	overlay := w.Servers["workstation"].Overlay
	require.NoError(t, overlay.WriteFile("/lib/util", []byte("// @name util\n({})"), model.FileKindExecutableScript))
	require.NoError(t, overlay.WriteFile("/lib/util.js", []byte("// @name util\n({})"), model.FileKindExecutableScript))

	ctx := modules.ScriptContext{NodeID: "workstation", Cwd: "/"}
	_, _, code := w.ResolveModule(ctx, "/home/player", "util")
	assert.Equal(t, model.CodeImportAmbiguous, code)
}

func TestModuleResolutionCached(t *testing.T) {
	w := buildTestWorld(t)
	ctx := modules.ScriptContext{NodeID: "workstation", Cwd: "/"}

	src1, canon, code := w.ResolveModule(ctx, "/opt/bin", "strutil")
	require.Equal(t, model.CodeOK, code)
	require.Equal(t, "/lib/strutil.js", canon)

	require.NoError(t, w.Servers["workstation"].Overlay.WriteFile(
		"/lib/strutil.js", []byte("// @name strutil\n({})"), model.FileKindExecutableScript))

	src2, _, code := w.ResolveModule(ctx, "/opt/bin", "strutil")
	require.Equal(t, model.CodeOK, code)
	assert.Equal(t, src1, src2, "resolution is cached per (server, canonical path)")
}

func lanCatalog() blueprint.Catalog {
	opsUser := []blueprint.UserSpec{{
		UserKey: "ops", UserID: "ops", Passwd: "pw2", AuthMode: "static",
		Privilege: blueprint.PrivilegeSpec{R: true, W: true, X: true},
	}}
	return blueprint.Catalog{
		ServerSpecs: []blueprint.ServerSpec{
			{
				SpecID: "ws",
				Role:   "workstation",
				Users: []blueprint.UserSpec{{
					UserKey: "player", UserID: "player", AuthMode: "none",
					Privilege: blueprint.PrivilegeSpec{R: true, W: true, X: true},
				}},
			},
			{
				SpecID: "gw",
				Role:   "server",
				Users:  opsUser,
				Ports:  []blueprint.PortSpec{{Num: 22, Type: "ssh", Exposure: "public"}},
			},
			{
				SpecID: "node",
				Role:   "server",
				Users:  opsUser,
				Ports:  []blueprint.PortSpec{{Num: 22, Type: "ssh", Exposure: "private"}},
			},
		},
		Campaigns: []blueprint.Campaign{{
			WorldSeed: "lan-test",
			Subnets: []blueprint.SubnetSpec{
				{NetID: "internet", CIDR: "10.0.20.0/24"},
				{NetID: "lan", CIDR: "192.168.1.0/24"},
			},
			Spawns: []blueprint.ServerSpawn{
				{NodeID: "workstation", SpecRef: "ws", Hostname: "home",
					Interfaces: []blueprint.InterfaceSpec{{NetID: "internet"}}},
				{NodeID: "gateway", SpecRef: "gw", Hostname: "gateway",
					Interfaces: []blueprint.InterfaceSpec{
						{NetID: "internet", HostSuffix: "5", InitiallyExposed: true},
						{NetID: "lan", HostSuffix: "1"},
					}},
				{NodeID: "open-host", SpecRef: "node", Hostname: "open-host",
					Interfaces: []blueprint.InterfaceSpec{{NetID: "lan", HostSuffix: "2", InitiallyExposed: true}}},
				{NodeID: "dark-host", SpecRef: "node", Hostname: "dark-host",
					Interfaces: []blueprint.InterfaceSpec{{NetID: "lan", HostSuffix: "3"}}},
			},
		}},
	}
}

func TestLanExposureGatesConnect(t *testing.T) {
	w := world.New("lan-test")
	w.Base.AddDir("/home/player")
	require.NoError(t, w.Apply(lanCatalog()))

	assert.True(t, w.Servers["open-host"].ExposedByNet["lan"])
	assert.False(t, w.Servers["dark-host"].ExposedByNet["lan"])

	resp := exec(w, "workstation", "player", "/", "connect 10.0.20.5 ops pw2")
	require.True(t, resp.OK, resp.Lines)
	assert.Equal(t, "gateway", resp.NextNodeID)

	// exposed LAN interface accepts a same-subnet private port
	resp = exec(w, "gateway", "ops", "/", "connect 192.168.1.2 ops pw2")
	assert.True(t, resp.OK, resp.Lines)

	// unexposed LAN interface refuses even its own subnet
	resp = exec(w, "gateway", "ops", "/", "connect 192.168.1.3 ops pw2")
	assert.Equal(t, "ERR_NET_DENIED", string(resp.Code))

	// and the unexposed host is unreachable from the internet side too
	resp = exec(w, "workstation", "player", "/", "connect 192.168.1.3 ops pw2")
	assert.Equal(t, "ERR_NET_DENIED", string(resp.Code))
}

func TestInterruptWithoutProgram(t *testing.T) {
	w := buildTestWorld(t)
	assert.False(t, w.InterruptTerminalProgram(termSession))
}

func TestHardcodedExecutableDispatch(t *testing.T) {
	w := buildTestWorld(t)
	resp := exec(w, "workstation", "player", "/home/player", "probe")
	require.True(t, resp.OK, resp.Lines)
	assert.Equal(t, "workstation", resp.Data["nodeId"])
}

func TestUnknownCommand(t *testing.T) {
	w := buildTestWorld(t)
	resp := exec(w, "workstation", "player", "/", "frobnicate")
	assert.Equal(t, "ERR_UNKNOWN_COMMAND", string(resp.Code))
}

func TestSnapshotRoundTrip(t *testing.T) {
	w := buildTestWorld(t)

	// move the world away from its freshly-built state
	require.True(t, exec(w, "workstation", "player", "/home/player", "connect 10.0.20.9 ops pw2").OK)
	require.NoError(t, w.SaveEditorContent("workstation", "player", "/home/player", "loot.txt", "stash"))
	require.True(t, exec(w, "srv", "ops", "/", "rm /etc/banner.txt").OK)
	w.ScenarioFlags["phase"] = "two"
	w.Servers["srv"].AppendLog(100, "auth accepted for ops")
	w.StartProcess(model.Process{PID: w.AllocPID(), Name: "job", HostNodeID: "srv", EndAtMs: 9_000})
	w.Tick(16, t.Logf)

	snap := w.Capture()

	restored := world.New("other-seed")
	seedBase(restored)
	require.NoError(t, restored.Apply(testCatalog()))
	require.NoError(t, restored.Restore(snap))

	again := restored.Capture()
	snap.Meta.SavedAtMs = 0
	again.Meta.SavedAtMs = 0
	assert.Equal(t, snap, again)

	// restored world behaves, not just serializes: the tombstone and the
	// overlay write both survived
	resp := exec(restored, "srv", "ops", "/", "cat /etc/banner.txt")
	assert.Equal(t, "ERR_NOT_FOUND", string(resp.Code))
	resp = exec(restored, "workstation", "player", "/home/player", "cat loot.txt")
	assert.Equal(t, []string{"stash"}, resp.Lines)
}

func TestSnapshotSurvivesSaveCodec(t *testing.T) {
	w := buildTestWorld(t)
	require.NoError(t, w.SaveEditorContent("workstation", "player", "/home/player", "x.txt", "keep"))
	snap := w.Capture()

	key := []byte("save-key")
	blob, err := savecodec.Encode(snap, key)
	require.NoError(t, err)

	var decoded world.Snapshot
	require.NoError(t, savecodec.Decode(blob, key, &decoded))

	restored := world.New("seed")
	seedBase(restored)
	require.NoError(t, restored.Apply(testCatalog()))
	require.NoError(t, restored.Restore(decoded))

	resp := exec(restored, "workstation", "player", "/home/player", "cat x.txt")
	assert.Equal(t, []string{"keep"}, resp.Lines)
}

func TestRestoreRejectsSchemaMismatch(t *testing.T) {
	w := buildTestWorld(t)
	snap := w.Capture()
	snap.Meta.SchemaVersion = 99

	before := w.WorldTick
	assert.Error(t, w.Restore(snap))
	assert.Equal(t, before, w.WorldTick)
}
