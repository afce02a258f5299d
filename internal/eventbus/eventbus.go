// Package eventbus implements the world's event queue and scenario
// handler dispatcher: a FIFO queue with a single deferred-front slot, a
// handler index keyed by the cross product of expanded matching keys,
// once-only firing, and a per-tick wall-clock budget.
package eventbus

import (
	"sort"
	"time"

	"github.com/mailtwo/nexus-link-sub005/internal/model"
)

// PerTickBudget is the aggregate wall-clock budget for draining the queue
// on a single tick.
const PerTickBudget = 50 * time.Millisecond

// PrintTarget identifies which terminal session(s) an ActionPrint should
// reach, resolved per payload kind.
type PrintTarget struct {
	NodeID  string
	UserKey string
}

// Sink is how the bus reports action effects back to the world, keeping
// this package ignorant of world's concrete session/log types.
type Sink interface {
	Print(target PrintTarget, text string)
	SetFlag(key string, value interface{})
}

// PreDispatchHook runs for every dequeued event before scenario-trigger
// filtering, e.g. updating knownNodesByNet or pushing a UI
// line on processFinished.
type PreDispatchHook func(evt *model.Event)

// Bus is the event queue plus scenario handler index.
type Bus struct {
	queue         []*model.Event
	deferredFront *model.Event

	handlers []model.HandlerDescriptor
	index    map[string][]*model.HandlerDescriptor
	fired    map[[2]string]bool

	seq int64

	preDispatch []PreDispatchHook
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{
		index: make(map[string][]*model.HandlerDescriptor),
		fired: make(map[[2]string]bool),
	}
}

// OnPreDispatch registers a hook invoked for every dequeued event.
func (b *Bus) OnPreDispatch(h PreDispatchHook) {
	b.preDispatch = append(b.preDispatch, h)
}

// RegisterHandler adds a scenario handler descriptor and indexes it.
func (b *Bus) RegisterHandler(h model.HandlerDescriptor) {
	b.handlers = append(b.handlers, h)
	hp := &b.handlers[len(b.handlers)-1]

	third := hp.PrivilegeKey
	if hp.ConditionType == model.ConditionFileAcquired {
		third = hp.FileNameKey
	}
	key := indexKey(hp.ConditionType, hp.NodeIDKey, hp.UserKey, third)
	b.index[key] = append(b.index[key], hp)
}

// Enqueue appends evt to the tail of the queue, stamping a monotonic Seq.
func (b *Bus) Enqueue(evt model.Event) {
	b.seq++
	evt.Seq = b.seq
	b.queue = append(b.queue, &evt)
}

func indexKey(ct model.ConditionType, a, c, d string) string {
	return ct.String() + "\x00" + a + "\x00" + c + "\x00" + d
}

func expand(actual string) []string {
	if actual == model.AnyKey {
		return []string{model.AnyKey}
	}
	return []string{actual, model.AnyKey}
}

// matchingHandlers returns the unique handler set for an event via the
// cross product of expanded (nodeId, userKey, privilege|fileName) keys.
func (b *Bus) matchingHandlers(ct model.ConditionType, nodeID, userKey, third string) []*model.HandlerDescriptor {
	seen := make(map[*model.HandlerDescriptor]bool)
	var out []*model.HandlerDescriptor

	for _, a := range expand(nodeID) {
		for _, c := range expand(userKey) {
			for _, d := range expand(third) {
				key := indexKey(ct, a, c, d)
				for _, h := range b.index[key] {
					if !seen[h] {
						seen[h] = true
						out = append(out, h)
					}
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ScenarioID != out[j].ScenarioID {
			return out[i].ScenarioID < out[j].ScenarioID
		}
		return out[i].EventID < out[j].EventID
	})
	return out
}

// triggerKeys extracts the (conditionType, nodeId, userKey, third) tuple a
// scenario-trigger event is matched on.
func triggerKeys(evt *model.Event) (model.ConditionType, string, string, string, bool) {
	switch p := evt.Payload.(type) {
	case model.PrivilegeAcquirePayload:
		return model.ConditionPrivilegeAcquired, p.NodeID, p.UserKey, privilegeThirdKey(p.Privilege), true
	case model.FileAcquirePayload:
		return model.ConditionFileAcquired, p.FromNodeID, p.UserKey, p.FileName, true
	default:
		return 0, "", "", "", false
	}
}

// privilegeThirdKey renders a Privilege as the matching-key string authors
// declare in handler descriptors ("r", "w", "x", "rw", "rwx", ...).
func privilegeThirdKey(p model.Privilege) string {
	s := ""
	if p.R {
		s += "r"
	}
	if p.W {
		s += "w"
	}
	if p.X {
		s += "x"
	}
	if s == "" {
		return model.AnyKey
	}
	return s
}

// printTargetFor resolves the (nodeId, userKey) an action's Print effect
// should reach for a given event.
func printTargetFor(evt *model.Event) PrintTarget {
	switch p := evt.Payload.(type) {
	case model.PrivilegeAcquirePayload:
		return PrintTarget{NodeID: p.NodeID, UserKey: p.UserKey}
	case model.FileAcquirePayload:
		return PrintTarget{NodeID: p.FromNodeID, UserKey: p.UserKey}
	case model.ProcessFinishedPayload:
		return PrintTarget{NodeID: p.HostNodeID, UserKey: p.UserKey}
	default:
		return PrintTarget{}
	}
}

// Drain processes queued events up to PerTickBudget, applying pre-dispatch
// hooks, scenario-trigger filtering, guard evaluation, and action
// execution. A budget-exhausted event is re-enqueued
// at the head and draining stops for this tick.
func (b *Bus) Drain(sink Sink, flags map[string]interface{}, logf func(format string, args ...interface{})) {
	deadline := time.Now().Add(PerTickBudget)

	if b.deferredFront != nil {
		b.queue = append([]*model.Event{b.deferredFront}, b.queue...)
		b.deferredFront = nil
	}

	for len(b.queue) > 0 {
		if time.Now().After(deadline) {
			return
		}

		evt := b.queue[0]
		b.queue = b.queue[1:]

		for _, hook := range b.preDispatch {
			hook(evt)
		}

		ct, nodeID, userKey, third, ok := triggerKeys(evt)
		if !ok {
			continue
		}

		candidates := b.matchingHandlers(ct, nodeID, userKey, third)

		for _, h := range candidates {
			if time.Now().After(deadline) {
				b.deferredFront = evt
				return
			}

			fk := h.Key()
			if b.fired[fk] {
				continue
			}

			if h.Guard != nil && !h.Guard.Eval(evt, flags) {
				continue
			}

			for _, act := range h.Actions {
				b.runAction(act, evt, sink, logf)
			}
			b.fired[fk] = true
		}
	}
}

func (b *Bus) runAction(act model.Action, evt *model.Event, sink Sink, logf func(format string, args ...interface{})) {
	defer func() {
		if r := recover(); r != nil && logf != nil {
			logf("event action panic: %v", r)
		}
	}()

	switch act.Type {
	case model.ActionPrint:
		sink.Print(printTargetFor(evt), act.Text)
	case model.ActionSetFlag:
		sink.SetFlag(act.FlagKey, act.FlagValue)
	}
}

// Len reports the number of queued (non-deferred) events.
func (b *Bus) Len() int {
	return len(b.queue)
}

// HasFired reports whether a handler has already fired once.
func (b *Bus) HasFired(key [2]string) bool {
	return b.fired[key]
}

// FiredKeys returns every (scenarioId, eventId) pair recorded as fired.
func (b *Bus) FiredKeys() [][2]string {
	out := make([][2]string, 0, len(b.fired))
	for k := range b.fired {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

// MarkFired restores fired-handler bookkeeping from a snapshot.
func (b *Bus) MarkFired(key [2]string) {
	b.fired[key] = true
}

// Seq reports the next sequence number that will be assigned to an
// enqueued event, for snapshot capture.
func (b *Bus) Seq() int64 {
	return b.seq
}

// SetSeq restores the sequence counter from a snapshot.
func (b *Bus) SetSeq(seq int64) {
	b.seq = seq
}
