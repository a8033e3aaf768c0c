package dispatch

import (
	"container/heap"
	"sort"

	"parkcraft.ai/internal/sim/action"
)

// queued is one sealed action waiting for its tick.
type queued struct {
	tick   uint32
	seq    uint32
	action action.Action
	// callback is set only on the node the action originated from.
	callback Callback
	peer     PeerID
}

// actionQueue orders sealed actions by (tick, seq). Seq is unique per
// session, so the order is total.
type actionQueue []queued

func (q actionQueue) Len() int { return len(q) }
func (q actionQueue) Less(i, j int) bool {
	if q[i].tick != q[j].tick {
		return q[i].tick < q[j].tick
	}
	return q[i].seq < q[j].seq
}
func (q actionQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *actionQueue) Push(x any)   { *q = append(*q, x.(queued)) }
func (q *actionQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = queued{}
	*q = old[:n-1]
	return it
}

func (q *actionQueue) push(it queued) { heap.Push(q, it) }

// popDue removes every item due at or before tick, in order.
func (q *actionQueue) popDue(tick uint32) []queued {
	var out []queued
	for q.Len() > 0 && (*q)[0].tick <= tick {
		out = append(out, heap.Pop(q).(queued))
	}
	return out
}

// sorted returns the queued items in execution order without removing them.
func (q actionQueue) sorted() []queued {
	out := append([]queued(nil), q...)
	sort.Slice(out, func(i, j int) bool { return actionQueue(out).Less(i, j) })
	return out
}
