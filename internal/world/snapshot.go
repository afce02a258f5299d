package world

import (
	"fmt"
	"sort"
	"time"

	"github.com/mailtwo/nexus-link-sub005/internal/model"
	"github.com/mailtwo/nexus-link-sub005/internal/vfs"
)

// SnapshotSchemaVersion is bumped whenever the snapshot layout changes
// incompatibly; Restore rejects snapshots from a different version.
const SnapshotSchemaVersion = 1

// Snapshot is the structured save tree the host's codec serializes. The
// core hands it out and takes it back; encoding, compression, and
// integrity protection live outside (internal/savecodec for the embedded
// host).
type Snapshot struct {
	Meta      SnapshotMeta    `yaml:"meta"`
	World     WorldState      `yaml:"world"`
	Events    EventState      `yaml:"events"`
	Processes []ProcessRecord `yaml:"processes"`
	Servers   []ServerState   `yaml:"servers"`
}

// SnapshotMeta identifies what was saved and when.
type SnapshotMeta struct {
	SchemaVersion    int    `yaml:"schemaVersion"`
	ActiveScenarioID string `yaml:"activeScenarioId"`
	WorldSeed        string `yaml:"worldSeed"`
	SavedAtMs        int64  `yaml:"savedAtMs"`
}

// WorldState is the world-global scalar state.
type WorldState struct {
	TickMs          int64                  `yaml:"tickMs"`
	EventSeq        int64                  `yaml:"eventSeq"`
	NextPID         int                    `yaml:"nextPid"`
	VisibleNets     []string               `yaml:"visibleNets"`
	KnownNodesByNet map[string][]string    `yaml:"knownNodesByNet"`
	ScenarioFlags   map[string]interface{} `yaml:"scenarioFlags"`
}

// EventState is the once-only handler bookkeeping.
type EventState struct {
	FiredHandlers []FiredHandler `yaml:"firedHandlers"`
}

// FiredHandler is one (scenarioId, eventId) pair that has already fired.
type FiredHandler struct {
	ScenarioID string `yaml:"scenarioId"`
	EventID    string `yaml:"eventId"`
}

// ProcessRecord is one process table entry, plus any staged write payload
// an FtpSend/FileWrite process will commit on completion.
type ProcessRecord struct {
	PID               int               `yaml:"pid"`
	Name              string            `yaml:"name"`
	HostNodeID        string            `yaml:"hostNodeId"`
	UserKey           string            `yaml:"userKey"`
	State             string            `yaml:"state"`
	Path              string            `yaml:"path"`
	ProcessType       string            `yaml:"processType"`
	ProcessArgs       map[string]string `yaml:"processArgs,omitempty"`
	EndAtMs           int64             `yaml:"endAtMs"`
	TerminalSessionID string            `yaml:"terminalSessionId,omitempty"`

	PendingWrite *PendingWriteRecord `yaml:"pendingWrite,omitempty"`
}

// PendingWriteRecord is the staged payload for a not-yet-completed
// FtpSend/FileWrite process.
type PendingWriteRecord struct {
	NodeID     string         `yaml:"nodeId"`
	Path       string         `yaml:"path"`
	Content    []byte         `yaml:"content"`
	FileKind   model.FileKind `yaml:"fileKind"`
	FromNodeID string         `yaml:"fromNodeId,omitempty"`
	UserKey    string         `yaml:"userKey,omitempty"`
	RemotePath string         `yaml:"remotePath,omitempty"`
}

// UserRecord is one server account.
type UserRecord struct {
	UserKey  string `yaml:"userKey"`
	UserID   string `yaml:"userId"`
	Passwd   string `yaml:"passwd"`
	AuthMode string `yaml:"authMode"`
	R        bool   `yaml:"r"`
	W        bool   `yaml:"w"`
	X        bool   `yaml:"x"`
}

// PortRecord is one listening port.
type PortRecord struct {
	Num       int    `yaml:"num"`
	Type      string `yaml:"type"`
	ServiceID string `yaml:"serviceId,omitempty"`
	Exposure  string `yaml:"exposure"`
}

// DaemonRecord is one daemon entry.
type DaemonRecord struct {
	Type string            `yaml:"type"`
	Args map[string]string `yaml:"args,omitempty"`
}

// ServerState is the per-node saved state. Topology (interfaces, subnet
// membership, lan neighbors) is not captured: it is rebuilt by re-applying
// the blueprint before Restore.
type ServerState struct {
	NodeID  string              `yaml:"nodeId"`
	Status  string              `yaml:"status"`
	Reason  string              `yaml:"reason"`
	Users   []UserRecord        `yaml:"users"`
	Overlay vfs.OverlaySnapshot `yaml:"overlay"`
	Logs    []model.LogEntry    `yaml:"logs"`
	LogSeq  int64               `yaml:"logSeq"`
	Ports   []PortRecord        `yaml:"ports"`
	Daemons []DaemonRecord      `yaml:"daemons,omitempty"`
}

// Capture snapshots the world's mutable state into a Snapshot tree. All
// map-backed collections are emitted in sorted order so identical worlds
// produce identical snapshots.
func (w *World) Capture() Snapshot {
	snap := Snapshot{
		Meta: SnapshotMeta{
			SchemaVersion:    SnapshotSchemaVersion,
			ActiveScenarioID: w.ActiveScenarioID,
			WorldSeed:        w.WorldSeed,
			SavedAtMs:        time.Now().UnixMilli(),
		},
		World: WorldState{
			TickMs:          w.WorldTick,
			EventSeq:        w.Events.Seq(),
			NextPID:         w.NextPID,
			KnownNodesByNet: make(map[string][]string, len(w.KnownNodesByNet)),
			ScenarioFlags:   make(map[string]interface{}, len(w.ScenarioFlags)),
		},
	}

	nets := make([]string, 0, len(w.KnownNodesByNet))
	for netID := range w.KnownNodesByNet {
		nets = append(nets, netID)
	}
	sort.Strings(nets)
	snap.World.VisibleNets = nets
	for _, netID := range nets {
		nodes := make([]string, 0, len(w.KnownNodesByNet[netID]))
		for id := range w.KnownNodesByNet[netID] {
			nodes = append(nodes, id)
		}
		sort.Strings(nodes)
		snap.World.KnownNodesByNet[netID] = nodes
	}
	for k, v := range w.ScenarioFlags {
		snap.World.ScenarioFlags[k] = v
	}

	for _, key := range w.Events.FiredKeys() {
		snap.Events.FiredHandlers = append(snap.Events.FiredHandlers, FiredHandler{
			ScenarioID: key[0],
			EventID:    key[1],
		})
	}

	pids := make([]int, 0, len(w.ProcessList))
	for pid := range w.ProcessList {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	for _, pid := range pids {
		proc := w.ProcessList[pid]
		rec := ProcessRecord{
			PID:               proc.PID,
			Name:              proc.Name,
			HostNodeID:        proc.HostNodeID,
			UserKey:           proc.UserKey,
			State:             proc.State.String(),
			Path:              proc.Path,
			ProcessType:       proc.ProcessType.String(),
			ProcessArgs:       proc.ProcessArgs,
			EndAtMs:           proc.EndAtMs,
			TerminalSessionID: proc.TerminalSessionID,
		}
		if write, ok := w.pendingWrites[pid]; ok {
			rec.PendingWrite = &PendingWriteRecord{
				NodeID:     write.nodeID,
				Path:       write.path,
				Content:    append([]byte(nil), write.content...),
				FileKind:   write.fileKind,
				FromNodeID: write.fromNodeID,
				UserKey:    write.userKey,
				RemotePath: write.remotePath,
			}
		}
		snap.Processes = append(snap.Processes, rec)
	}

	for _, nodeID := range w.sortedServerIDs() {
		snap.Servers = append(snap.Servers, captureServer(w.Servers[nodeID]))
	}

	return snap
}

func captureServer(s *Server) ServerState {
	st := ServerState{
		NodeID:  s.NodeID,
		Status:  s.Status.String(),
		Reason:  s.Reason.String(),
		Overlay: s.Overlay.Snapshot(),
		Logs:    s.Logs(),
		LogSeq:  s.LogSeq(),
	}

	for _, key := range s.SortedUserKeys() {
		u := s.Users[key]
		st.Users = append(st.Users, UserRecord{
			UserKey:  key,
			UserID:   u.UserID,
			Passwd:   u.Passwd,
			AuthMode: u.AuthMode.String(),
			R:        u.Privilege.R,
			W:        u.Privilege.W,
			X:        u.Privilege.X,
		})
	}

	ports := make([]int, 0, len(s.Ports))
	for num := range s.Ports {
		ports = append(ports, num)
	}
	sort.Ints(ports)
	for _, num := range ports {
		p := s.Ports[num]
		st.Ports = append(st.Ports, PortRecord{
			Num:       p.Num,
			Type:      p.Type.String(),
			ServiceID: p.ServiceID,
			Exposure:  p.Exposure.String(),
		})
	}

	daemonTypes := make([]string, 0, len(s.Daemons))
	for typ := range s.Daemons {
		daemonTypes = append(daemonTypes, typ)
	}
	sort.Strings(daemonTypes)
	for _, typ := range daemonTypes {
		st.Daemons = append(st.Daemons, DaemonRecord{Type: typ, Args: s.Daemons[typ]})
	}

	return st
}

// Restore rebuilds the world's mutable state from a snapshot. The caller
// must have already applied the same blueprint the snapshot was taken
// against: topology, handler descriptors, and the base image come from
// the blueprint; the snapshot overwrites everything that moved since.
// Validation runs before any mutation, so a failed Restore leaves the
// world unchanged.
func (w *World) Restore(snap Snapshot) error {
	if snap.Meta.SchemaVersion != SnapshotSchemaVersion {
		return fmt.Errorf("unsupported snapshot schema version %d", snap.Meta.SchemaVersion)
	}
	for _, st := range snap.Servers {
		if _, ok := w.Servers[st.NodeID]; !ok {
			return fmt.Errorf("snapshot references unknown server %q", st.NodeID)
		}
	}
	for _, rec := range snap.Processes {
		if _, ok := w.Servers[rec.HostNodeID]; !ok {
			return fmt.Errorf("snapshot process %d references unknown server %q", rec.PID, rec.HostNodeID)
		}
	}

	w.WorldTick = snap.World.TickMs
	w.WorldSeed = snap.Meta.WorldSeed
	w.ActiveScenarioID = snap.Meta.ActiveScenarioID
	w.NextPID = snap.World.NextPID
	w.Events.SetSeq(snap.World.EventSeq)

	w.ScenarioFlags = make(map[string]interface{}, len(snap.World.ScenarioFlags))
	for k, v := range snap.World.ScenarioFlags {
		w.ScenarioFlags[k] = v
	}

	w.KnownNodesByNet = make(map[string]map[string]bool, len(snap.World.KnownNodesByNet))
	for netID, nodes := range snap.World.KnownNodesByNet {
		set := make(map[string]bool, len(nodes))
		for _, id := range nodes {
			set[id] = true
		}
		w.KnownNodesByNet[netID] = set
	}

	for _, fh := range snap.Events.FiredHandlers {
		w.Events.MarkFired([2]string{fh.ScenarioID, fh.EventID})
	}

	for _, st := range snap.Servers {
		srv := w.Servers[st.NodeID]
		srv.Status = parseStatus(st.Status)
		srv.Reason = parseReason(st.Reason)

		srv.Users = make(map[string]model.User, len(st.Users))
		for _, u := range st.Users {
			srv.Users[u.UserKey] = model.User{
				UserID:    u.UserID,
				Passwd:    u.Passwd,
				AuthMode:  parseAuthMode(u.AuthMode),
				Privilege: model.Privilege{R: u.R, W: u.W, X: u.X},
			}
		}

		srv.Ports = make(map[int]model.Port, len(st.Ports))
		for _, p := range st.Ports {
			srv.Ports[p.Num] = model.Port{
				Num:       p.Num,
				Type:      parsePortType(p.Type),
				ServiceID: p.ServiceID,
				Exposure:  parseExposure(p.Exposure),
			}
		}

		srv.Daemons = make(map[string]map[string]string, len(st.Daemons))
		for _, d := range st.Daemons {
			srv.Daemons[d.Type] = d.Args
		}

		srv.Overlay = vfs.RestoreOverlay(w.Base, w.Store, st.Overlay)
		srv.RestoreLogs(st.Logs, st.LogSeq)
		srv.ProcessIDs = make(map[int]bool)
		srv.Sessions = make(map[string]model.Session)
	}

	w.ProcessList = make(map[int]*model.Process, len(snap.Processes))
	w.pendingWrites = make(map[int]pendingWrite)
	running := make(map[int]int64)
	for _, rec := range snap.Processes {
		proc := &model.Process{
			PID:               rec.PID,
			Name:              rec.Name,
			HostNodeID:        rec.HostNodeID,
			UserKey:           rec.UserKey,
			State:             parseProcessState(rec.State),
			Path:              rec.Path,
			ProcessType:       parseProcessType(rec.ProcessType),
			ProcessArgs:       rec.ProcessArgs,
			EndAtMs:           rec.EndAtMs,
			TerminalSessionID: rec.TerminalSessionID,
		}
		w.ProcessList[rec.PID] = proc
		if proc.State == model.ProcessRunning {
			w.Servers[rec.HostNodeID].AddProcess(rec.PID)
			running[rec.PID] = rec.EndAtMs
		}
		if rec.PendingWrite != nil {
			w.pendingWrites[rec.PID] = pendingWrite{
				nodeID:     rec.PendingWrite.NodeID,
				path:       rec.PendingWrite.Path,
				content:    append([]byte(nil), rec.PendingWrite.Content...),
				fileKind:   rec.PendingWrite.FileKind,
				fromNodeID: rec.PendingWrite.FromNodeID,
				userKey:    rec.PendingWrite.UserKey,
				remotePath: rec.PendingWrite.RemotePath,
			}
		}
	}
	w.Scheduler.Rebuild(running)

	w.TerminalStacks = make(map[string][]model.ConnFrame)
	// restored overlays may differ from whatever was cached
	w.moduleSources = make(map[string]string)
	return nil
}

func parseProcessState(s string) model.ProcessState {
	switch s {
	case "finished":
		return model.ProcessFinished
	case "canceled":
		return model.ProcessCanceled
	default:
		return model.ProcessRunning
	}
}

func parseProcessType(s string) model.ProcessType {
	switch s {
	case "booting":
		return model.ProcessBooting
	case "ftpSend":
		return model.ProcessFtpSend
	case "fileWrite":
		return model.ProcessFileWrite
	default:
		return model.ProcessGeneric
	}
}
