package sim

import (
	"container/list"
	"sync"
	"time"
)

type delivery struct {
	at   time.Time
	data []byte
	// set for the read-back that acknowledges an address assignment
	ack     bool
	ackAddr uint8
}

// fifo holds bytes on their way to the host, in send order.
type fifo struct {
	_list *list.List
	_lock sync.Mutex
}

func newFifo() *fifo {
	return &fifo{_list: list.New()}
}

func (ff *fifo) Push(d *delivery) {
	ff._lock.Lock()
	defer ff._lock.Unlock()
	ff._list.PushBack(d)
}

// PopDue removes every delivery whose time has come. Later deliveries
// overtake a delayed one, the way frames from nearer chips do.
func (ff *fifo) PopDue(now time.Time) []*delivery {
	ff._lock.Lock()
	defer ff._lock.Unlock()
	var out []*delivery
	for e := ff._list.Front(); e != nil; {
		next := e.Next()
		d := e.Value.(*delivery)
		if !d.at.After(now) {
			out = append(out, d)
			ff._list.Remove(e)
		}
		e = next
	}
	return out
}

// NextDue returns the earliest pending delivery time.
func (ff *fifo) NextDue() (time.Time, bool) {
	ff._lock.Lock()
	defer ff._lock.Unlock()
	var first time.Time
	found := false
	for e := ff._list.Front(); e != nil; e = e.Next() {
		d := e.Value.(*delivery)
		if !found || d.at.Before(first) {
			first, found = d.at, true
		}
	}
	return first, found
}

func (ff *fifo) Len() int {
	ff._lock.Lock()
	defer ff._lock.Unlock()
	return ff._list.Len()
}

func (ff *fifo) Clear() {
	ff._lock.Lock()
	defer ff._lock.Unlock()
	ff._list.Init()
}
