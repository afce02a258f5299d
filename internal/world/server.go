// Package world is the top-level assembler: server node state, the world
// registry, the blueprint applier, connection/FTP flows, and the built-in
// syscall handlers live together in one package. This keeps a single
// acyclic dependency edge: world imports vfs/model/termcli/scheduler/
// eventbus/guard/blueprint/modules/scriptrt; none of those import world
// back.
package world

import (
	"sort"

	"github.com/mailtwo/nexus-link-sub005/internal/model"
	"github.com/mailtwo/nexus-link-sub005/internal/vfs"
)

const defaultLogCapacity = 200

// Server is a single node's full runtime state.
type Server struct {
	NodeID   string
	Name     string
	Role     model.ServerRole
	Status   model.ServerStatus
	Reason   model.StatusReason

	Interfaces       []model.Interface
	SubnetMembership map[string]bool
	ExposedByNet     map[string]bool
	LanNeighbors     map[string][]string // netId -> neighbor nodeIds

	Users    map[string]model.User
	Sessions map[string]model.Session

	Ports   map[int]model.Port
	Daemons map[string]map[string]string

	Overlay *vfs.Overlay

	ProcessIDs map[int]bool

	logs     []model.LogEntry
	logCap   int
	logSeq   int64
}

// NewServer constructs an empty server node with the given overlay and
// log capacity.
func NewServer(nodeID, name string, role model.ServerRole, overlay *vfs.Overlay, logCapacity int) *Server {
	if logCapacity < 1 {
		logCapacity = defaultLogCapacity
	}
	return &Server{
		NodeID:           nodeID,
		Name:             name,
		Role:             role,
		Status:           model.StatusOnline,
		Reason:           model.ReasonOk,
		SubnetMembership: make(map[string]bool),
		ExposedByNet:     make(map[string]bool),
		LanNeighbors:     make(map[string][]string),
		Users:            make(map[string]model.User),
		Sessions:         make(map[string]model.Session),
		Ports:            make(map[int]model.Port),
		Daemons:          make(map[string]map[string]string),
		Overlay:          overlay,
		ProcessIDs:       make(map[int]bool),
		logCap:           logCapacity,
	}
}

// PrimaryIP returns the IP of the first "internet"-netId interface, or
// "" when the node has no public-facing attachment.
func (s *Server) PrimaryIP() string {
	for _, iface := range s.Interfaces {
		if iface.NetID == model.InternetNetID {
			return iface.IP
		}
	}
	return ""
}

// SetStatus enforces the (offline ⇒ reason≠Ok) invariant.
func (s *Server) SetStatus(status model.ServerStatus, reason model.StatusReason) {
	if status == model.StatusOffline && reason == model.ReasonOk {
		reason = model.ReasonPoweredOff
	}
	s.Status = status
	s.Reason = reason
}

// ResetInterfaces rebuilds SubnetMembership and recomputes ExposedByNet,
// preserving prior exposure flags for net ids that survive the reset.
func (s *Server) ResetInterfaces(ifaces []model.Interface) {
	prevExposed := s.ExposedByNet

	s.Interfaces = ifaces
	s.SubnetMembership = make(map[string]bool, len(ifaces))
	s.ExposedByNet = make(map[string]bool, len(ifaces))

	for _, iface := range ifaces {
		s.SubnetMembership[iface.NetID] = true
		if prevExposed[iface.NetID] {
			s.ExposedByNet[iface.NetID] = true
		}
	}
}

// UpsertSession adds or replaces a session by id.
func (s *Server) UpsertSession(sess model.Session) {
	s.Sessions[sess.SessionID] = sess
}

// RemoveSession deletes a session by id.
func (s *Server) RemoveSession(sessionID string) {
	delete(s.Sessions, sessionID)
}

// AddProcess records a pid as running on this server.
func (s *Server) AddProcess(pid int) {
	s.ProcessIDs[pid] = true
}

// RemoveProcess drops a pid from this server's process set.
func (s *Server) RemoveProcess(pid int) {
	delete(s.ProcessIDs, pid)
}

// AppendLog appends an immutable log line, evicting the oldest entry once
// capacity is exceeded.
func (s *Server) AppendLog(timeMs int64, text string) model.LogEntry {
	s.logSeq++
	entry := model.LogEntry{Seq: s.logSeq, TimeMs: timeMs, Text: text}
	s.logs = append(s.logs, entry)
	if len(s.logs) > s.logCap {
		s.logs = s.logs[len(s.logs)-s.logCap:]
	}
	return entry
}

// Logs returns a copy of the current ring-buffer contents, oldest first.
func (s *Server) Logs() []model.LogEntry {
	out := make([]model.LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

// MarkLogDirty captures an original snapshot on a log entry's first edit
// and marks it dirty, then applies newText. Returns false if seq is
// unknown.
func (s *Server) MarkLogDirty(seq int64, newText string) bool {
	for i := range s.logs {
		if s.logs[i].Seq != seq {
			continue
		}
		if !s.logs[i].Dirty {
			s.logs[i].Original = s.logs[i].Text
			s.logs[i].Dirty = true
		}
		s.logs[i].Text = newText
		return true
	}
	return false
}

// UserByKey looks up a user by its map key.
func (s *Server) UserByKey(userKey string) (model.User, bool) {
	u, ok := s.Users[userKey]
	return u, ok
}

// SortedUserKeys returns user keys in deterministic order, for snapshot
// capture and listings.
func (s *Server) SortedUserKeys() []string {
	keys := make([]string, 0, len(s.Users))
	for k := range s.Users {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LogSeq reports the last assigned log sequence number, for snapshot
// capture.
func (s *Server) LogSeq() int64 {
	return s.logSeq
}

// RestoreLogs replaces the log ring buffer from a snapshot, preserving the
// entries' own Seq/Dirty/Original fields and resuming AppendLog numbering
// from seq.
func (s *Server) RestoreLogs(entries []model.LogEntry, seq int64) {
	s.logs = append([]model.LogEntry(nil), entries...)
	s.logSeq = seq
}
