package world

import (
	"github.com/mailtwo/nexus-link-sub005/internal/eventbus"
	"github.com/mailtwo/nexus-link-sub005/internal/model"
)

// pendingWrite is staged content a FileWrite or FtpSend process commits to
// an overlay on completion.
type pendingWrite struct {
	nodeID   string
	path     string
	content  []byte
	fileKind model.FileKind

	// fileAcquire fields, set only for FtpSend
	fromNodeID string
	userKey    string
	remotePath string
}

// StartProcess registers a new process, schedules its completion, and
// records it against its host server.
func (w *World) StartProcess(proc model.Process) {
	proc.State = model.ProcessRunning
	w.ProcessList[proc.PID] = &proc
	if srv, ok := w.Servers[proc.HostNodeID]; ok {
		srv.AddProcess(proc.PID)
	}
	w.Scheduler.ScheduleOrUpdate(proc.PID, proc.EndAtMs)
}

// StageWrite records the payload a FileWrite or FtpSend process commits on
// completion, keyed by the pid that will carry it.
func (w *World) StageWrite(pid int, write pendingWrite) {
	if w.pendingWrites == nil {
		w.pendingWrites = make(map[int]pendingWrite)
	}
	w.pendingWrites[pid] = write
}

// CancelProcess marks a process Canceled and removes it from scheduling
// without applying its completion effect.
func (w *World) CancelProcess(pid int) {
	proc, ok := w.ProcessList[pid]
	if !ok || proc.State != model.ProcessRunning {
		return
	}
	proc.State = model.ProcessCanceled
	w.Scheduler.Cancel(pid)
	if srv, ok := w.Servers[proc.HostNodeID]; ok {
		srv.RemoveProcess(pid)
	}
	delete(w.pendingWrites, pid)
}

func (w *World) schedulerLookup(pid int) (running bool, endAt int64, ok bool) {
	proc, exists := w.ProcessList[pid]
	if !exists {
		return false, 0, false
	}
	return proc.State == model.ProcessRunning, proc.EndAtMs, true
}

// Tick advances the world clock by deltaMs, applies completion effects for
// every process whose endAt has passed, and drains the event bus.
func (w *World) Tick(deltaMs int64, logf func(format string, args ...interface{})) {
	w.WorldTick += deltaMs

	due := w.Scheduler.PopDue(w.WorldTick, w.schedulerLookup)
	for _, pid := range due {
		w.completeProcess(pid)
	}

	w.Events.Drain((*eventSink)(w), w.ScenarioFlags, logf)
}

func (w *World) completeProcess(pid int) {
	proc, ok := w.ProcessList[pid]
	if !ok || proc.State != model.ProcessRunning {
		return
	}

	switch proc.ProcessType {
	case model.ProcessBooting:
		if srv, ok := w.Servers[proc.HostNodeID]; ok {
			srv.SetStatus(model.StatusOnline, model.ReasonOk)
		}
	case model.ProcessFtpSend:
		w.commitFtpSend(pid)
	case model.ProcessFileWrite:
		w.commitFileWrite(pid)
	case model.ProcessGeneric:
		// no effect
	}

	proc.State = model.ProcessFinished
	if srv, ok := w.Servers[proc.HostNodeID]; ok {
		srv.RemoveProcess(pid)
	}

	w.Events.Enqueue(model.Event{
		Type:   model.EventProcessFinished,
		TimeMs: w.WorldTick,
		Payload: model.ProcessFinishedPayload{
			PID:        proc.PID,
			HostNodeID: proc.HostNodeID,
			UserKey:    proc.UserKey,
			Name:       proc.Name,
		},
	})

	if proc.TerminalSessionID != "" {
		w.QueueEventLine(proc.HostNodeID, proc.UserKey, proc.Name+": done")
	}
	delete(w.pendingWrites, pid)
}

func (w *World) commitFileWrite(pid int) {
	write, ok := w.pendingWrites[pid]
	if !ok {
		return
	}
	srv, ok := w.Servers[write.nodeID]
	if !ok {
		return
	}
	_ = srv.Overlay.WriteFile(write.path, write.content, write.fileKind)
}

// commitFtpSend writes the transferred payload into the destination
// overlay and emits fileAcquire.
func (w *World) commitFtpSend(pid int) {
	write, ok := w.pendingWrites[pid]
	if !ok {
		return
	}
	srv, ok := w.Servers[write.nodeID]
	if !ok {
		return
	}
	if err := srv.Overlay.WriteFile(write.path, write.content, write.fileKind); err != nil {
		return
	}

	w.Events.Enqueue(model.Event{
		Type:   model.EventFileAcquire,
		TimeMs: w.WorldTick,
		Payload: model.FileAcquirePayload{
			FromNodeID:     write.fromNodeID,
			UserKey:        write.userKey,
			FileName:       write.path,
			RemotePath:     write.remotePath,
			LocalPath:      write.path,
			SizeBytes:      int64(len(write.content)),
			TransferMethod: "ftp",
			AcquiredAtMs:   w.WorldTick,
		},
	})
}

// eventSink adapts *World to eventbus.Sink without importing eventbus into
// world.go's type declarations.
type eventSink World

func (s *eventSink) Print(target eventbus.PrintTarget, text string) {
	w := (*World)(s)
	w.QueueEventLine(target.NodeID, target.UserKey, text)
}

func (s *eventSink) SetFlag(key string, value interface{}) {
	w := (*World)(s)
	w.ScenarioFlags[key] = value
}
