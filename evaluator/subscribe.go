package evaluator

import "github.com/inputlayer/inputlayer/dataflow"

// subscriberBuffer bounds how many pending batches a slow Subscribe
// consumer can queue before new notifications for that relation are
// dropped rather than blocking Commit; a consumer that falls behind
// should re-Materialize instead of trusting the stream to replay gaps.
const subscriberBuffer = 64

// Subscribe registers a channel that receives every future net change
// batch committed to relation. The returned cancel function
// unregisters and closes the channel; it must be called exactly once
// when the caller is done listening.
func (e *Evaluator) Subscribe(relation string) (<-chan dataflow.Batch, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan dataflow.Batch, subscriberBuffer)
	e.subscribers[relation] = append(e.subscribers[relation], ch)

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		subs := e.subscribers[relation]
		for i, c := range subs {
			if c == ch {
				e.subscribers[relation] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, cancel
}

// notifySubscribers forwards a relation's net change batch to every
// live Subscribe channel, dropping the notification for a channel
// whose buffer is currently full rather than blocking the commit that
// produced it.
func (e *Evaluator) notifySubscribers(relation string, net dataflow.Batch) {
	if len(net) == 0 {
		return
	}
	for _, ch := range e.subscribers[relation] {
		select {
		case ch <- net:
		default:
		}
	}
}
