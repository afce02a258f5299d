package world

import (
	"sort"

	"golang.org/x/time/rate"

	"github.com/mailtwo/nexus-link-sub005/internal/blueprint"
	"github.com/mailtwo/nexus-link-sub005/internal/eventbus"
	"github.com/mailtwo/nexus-link-sub005/internal/model"
	"github.com/mailtwo/nexus-link-sub005/internal/scheduler"
	"github.com/mailtwo/nexus-link-sub005/internal/termcli"
	"github.com/mailtwo/nexus-link-sub005/internal/vfs"
)

// World is the single explicit state value threaded through every API;
// it is never a hidden dependency of any component.
type World struct {
	Store *vfs.BlobStore
	Base  *vfs.BaseImage

	Servers map[string]*Server
	IPIndex map[string]string // ip -> nodeId

	ProcessList map[int]*model.Process
	NextPID     int

	ScenarioFlags   map[string]interface{}
	KnownNodesByNet map[string]map[string]bool // netId -> set<nodeId>

	TerminalStacks map[string][]model.ConnFrame // terminalSessionId -> stack

	WorldTick int64
	WorldSeed string

	// ActiveScenarioID is the most recently installed scenario, recorded
	// for save capture.
	ActiveScenarioID string

	Scheduler *scheduler.Scheduler
	Events    *eventbus.Bus
	Registry  *termcli.Registry

	// scripts attached to a terminal session, keyed by terminalSessionId
	scripts map[string]*attachedScript

	// running program processes that carry a Run handle, keyed by pid
	runsByPID map[int]*attachedScript

	// terminal event line queues, keyed by "nodeId\x00userKey"
	eventLines map[string][]string

	execHandlers map[string]ExecHandlerFunc

	// pendingWrites stages the payload a FileWrite/FtpSend process commits
	// to an overlay on completion, keyed by pid.
	pendingWrites map[int]pendingWrite

	// connectLimiters throttles repeated connect attempts per (src,dst)
	// node pair, keyed "srcNodeId\x00dstNodeId".
	connectLimiters map[string]*rate.Limiter

	// moduleSources caches resolved script-module source text, keyed
	// "nodeId\x00canonicalPath".
	moduleSources map[string]string
}

// New returns an empty world ready for the blueprint applier.
func New(worldSeed string) *World {
	store := vfs.NewBlobStore()
	w := &World{
		Store:           store,
		Base:            vfs.NewBaseImage(store),
		Servers:         make(map[string]*Server),
		IPIndex:         make(map[string]string),
		ProcessList:     make(map[int]*model.Process),
		NextPID:         1,
		ScenarioFlags:   make(map[string]interface{}),
		KnownNodesByNet: make(map[string]map[string]bool),
		TerminalStacks:  make(map[string][]model.ConnFrame),
		WorldSeed:       worldSeed,
		Scheduler:       scheduler.New(),
		Events:          eventbus.New(),
		Registry:        termcli.NewRegistry(),
		scripts:         make(map[string]*attachedScript),
		runsByPID:       make(map[int]*attachedScript),
		eventLines:      make(map[string][]string),
		execHandlers:    make(map[string]ExecHandlerFunc),
		pendingWrites:   make(map[int]pendingWrite),
		connectLimiters: make(map[string]*rate.Limiter),
		moduleSources:   make(map[string]string),
	}
	w.registerBuiltins()
	return w
}

// registerBuiltins installs every syscall handler into the world's
// registry.
func (w *World) registerBuiltins() {
	registerFsBuiltins(w.Registry)
	registerNetBuiltins(w.Registry)
	registerExecHandlers(w)
}

// AllocPID returns the next strictly-increasing pid.
func (w *World) AllocPID() int {
	pid := w.NextPID
	w.NextPID++
	return pid
}

// AddKnownNode records a node's ip as known on a net.
func (w *World) AddKnownNode(netID, nodeID string) {
	if w.KnownNodesByNet[netID] == nil {
		w.KnownNodesByNet[netID] = make(map[string]bool)
	}
	w.KnownNodesByNet[netID][nodeID] = true
}

// ResolveHostOrIP accepts either an IP (preferred, via ipIndex) or a
// hostname match against server Name.
func (w *World) ResolveHostOrIP(hostOrIP string) (*Server, bool) {
	if nodeID, ok := w.IPIndex[hostOrIP]; ok {
		return w.Servers[nodeID], true
	}
	for _, s := range w.Servers {
		if s.Name == hostOrIP {
			return s, true
		}
	}
	return nil, false
}

// QueueEventLine appends a line to a terminal's event pump queue.
func (w *World) QueueEventLine(nodeID, userKey, line string) {
	key := nodeID + "\x00" + userKey
	w.eventLines[key] = append(w.eventLines[key], line)
}

// DrainTerminalEventLines returns and clears the queued print lines
// addressed to (nodeId, userKey).
func (w *World) DrainTerminalEventLines(nodeID, userKey string) []string {
	key := nodeID + "\x00" + userKey
	lines := w.eventLines[key]
	delete(w.eventLines, key)
	return lines
}

// workstationNodeID returns the nodeId of the (singular, by convention)
// player workstation, used by PATH program resolution fallback and scan's special-case.
func (w *World) workstationNodeID() (string, bool) {
	for id, s := range w.Servers {
		if s.Role == model.RoleWorkstation {
			return id, true
		}
	}
	return "", false
}

// sortedServerIDs returns server node ids in deterministic order, used
// for snapshot capture.
func (w *World) sortedServerIDs() []string {
	ids := make([]string, 0, len(w.Servers))
	for id := range w.Servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Apply runs the blueprint applier over cat, populating this world.
// Delegates to applyCatalog in blueprint_applier.go.
func (w *World) Apply(cat blueprint.Catalog) error {
	return w.applyCatalog(cat)
}
