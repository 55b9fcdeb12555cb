package state

import (
	"sync"
	"time"

	"github.com/sakif/pickleit/internal/progress"
)

// DefaultNotifyDelay is how long an achievement notification stays visible.
const DefaultNotifyDelay = 5 * time.Second

// Notifier queues newly earned achievements and shows them one at a time.
// The visible one dismisses itself after the delay, or earlier via Dismiss.
type Notifier struct {
	delay  time.Duration
	onShow func(progress.Achievement)

	mu     sync.Mutex
	queue  []progress.Achievement
	timer  *time.Timer
	gen    uint64
	closed bool
}

// NewNotifier returns a Notifier. onShow, if non-nil, is called each time an
// achievement becomes the visible one. It runs without the lock held.
func NewNotifier(delay time.Duration, onShow func(progress.Achievement)) *Notifier {
	if delay <= 0 {
		delay = DefaultNotifyDelay
	}
	return &Notifier{delay: delay, onShow: onShow}
}

// Push appends achievements to the queue.
func (n *Notifier) Push(list ...progress.Achievement) {
	if len(list) == 0 {
		return
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	wasEmpty := len(n.queue) == 0
	n.queue = append(n.queue, list...)
	var show *progress.Achievement
	if wasEmpty {
		show = n.showLocked()
	}
	n.mu.Unlock()

	n.announce(show)
}

// Current returns the visible achievement, if any.
func (n *Notifier) Current() (progress.Achievement, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) == 0 {
		return progress.Achievement{}, false
	}
	return n.queue[0], true
}

// Len is the number of queued achievements, the visible one included.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

// Dismiss hides the visible achievement and shows the next one.
func (n *Notifier) Dismiss() {
	n.mu.Lock()
	show := n.advanceLocked()
	n.mu.Unlock()
	n.announce(show)
}

// Close stops the timer and drops anything still queued.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.queue = nil
	n.gen++
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}

func (n *Notifier) expire(gen uint64) {
	n.mu.Lock()
	if gen != n.gen {
		// dismissed by hand or closed in the meantime
		n.mu.Unlock()
		return
	}
	show := n.advanceLocked()
	n.mu.Unlock()
	n.announce(show)
}

func (n *Notifier) advanceLocked() *progress.Achievement {
	if len(n.queue) == 0 {
		return nil
	}
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.queue = n.queue[1:]
	n.gen++
	if len(n.queue) == 0 {
		return nil
	}
	return n.showLocked()
}

// showLocked arms the auto-dismiss timer for the head of the queue.
func (n *Notifier) showLocked() *progress.Achievement {
	gen := n.gen
	n.timer = time.AfterFunc(n.delay, func() { n.expire(gen) })
	head := n.queue[0]
	return &head
}

func (n *Notifier) announce(a *progress.Achievement) {
	if a != nil && n.onShow != nil {
		n.onShow(*a)
	}
}
