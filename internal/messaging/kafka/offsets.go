package kafka

import (
	"sync"

	kafkago "github.com/segmentio/kafka-go"
)

type topicPartition struct {
	topic     string
	partition int
}

type pendingOffset struct {
	msg     kafkago.Message
	settled bool
}

// offsetTracker orders commits per partition. Messages settle in any order,
// but a partition's commit position only advances past a message once every
// earlier fetched message on that partition has settled.
type offsetTracker struct {
	mu      sync.Mutex
	pending map[topicPartition][]*pendingOffset
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{pending: make(map[topicPartition][]*pendingOffset)}
}

// track registers a fetched message. Call it in fetch order.
func (t *offsetTracker) track(m kafkago.Message) {
	tp := topicPartition{m.Topic, m.Partition}
	t.mu.Lock()
	t.pending[tp] = append(t.pending[tp], &pendingOffset{msg: m})
	t.mu.Unlock()
}

// settle marks m done and returns the message the partition may now be
// committed through, if the contiguous settled prefix grew.
func (t *offsetTracker) settle(m kafkago.Message) (kafkago.Message, bool) {
	tp := topicPartition{m.Topic, m.Partition}
	t.mu.Lock()
	defer t.mu.Unlock()

	queue := t.pending[tp]
	for _, p := range queue {
		if p.msg.Offset == m.Offset {
			p.settled = true
			break
		}
	}

	var (
		through kafkago.Message
		ok      bool
	)
	for len(queue) > 0 && queue[0].settled {
		through, ok = queue[0].msg, true
		queue = queue[1:]
	}
	if len(queue) == 0 {
		delete(t.pending, tp)
	} else {
		t.pending[tp] = queue
	}
	return through, ok
}
