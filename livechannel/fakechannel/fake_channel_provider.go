package fakechannel

import (
	"context"
	"sync"

	"github.com/attendhq/go-session-coordinator/livechannel"
)

var _ livechannel.Provider = (*FakeChannelProvider)(nil)

// FakeChannelProvider records every subscription it opens so tests can
// assert open/close counts and ordering. A single sequence number is stamped
// on every open and first close, which lets tests verify that teardown of an
// old set completes before a new set is opened.
type FakeChannelProvider struct {
	lock         sync.Mutex
	seq          int
	handles      []*FakeHandle
	subscribeErr error
}

// FakeHandle is a recording livechannel.Handle.
type FakeHandle struct {
	provider   *FakeChannelProvider
	topic      string
	filter     *livechannel.Filter
	onEvent    livechannel.OnEvent
	onError    livechannel.OnError
	openOrder  int
	closeOrder int
	closeCount int
}

func NewFakeChannelProvider() *FakeChannelProvider {
	return &FakeChannelProvider{}
}

// FailSubscribe forces Subscribe to return err until called again with nil.
func (cp *FakeChannelProvider) FailSubscribe(err error) {
	cp.lock.Lock()
	defer cp.lock.Unlock()
	cp.subscribeErr = err
}

// Handles returns every handle ever opened, in open order.
func (cp *FakeChannelProvider) Handles() []*FakeHandle {
	cp.lock.Lock()
	defer cp.lock.Unlock()
	out := make([]*FakeHandle, len(cp.handles))
	copy(out, cp.handles)
	return out
}

// OpenTopics returns the topics of handles that are currently open.
func (cp *FakeChannelProvider) OpenTopics() []string {
	cp.lock.Lock()
	defer cp.lock.Unlock()
	var topics []string
	for _, h := range cp.handles {
		if h.closeCount == 0 {
			topics = append(topics, h.topic)
		}
	}
	return topics
}

func (cp *FakeChannelProvider) Subscribe(_ context.Context, topic string, filter *livechannel.Filter, onEvent livechannel.OnEvent, onError livechannel.OnError) (livechannel.Handle, error) {
	cp.lock.Lock()
	defer cp.lock.Unlock()

	if cp.subscribeErr != nil {
		return nil, cp.subscribeErr
	}
	cp.seq++
	handle := &FakeHandle{
		provider:  cp,
		topic:     topic,
		filter:    filter,
		onEvent:   onEvent,
		onError:   onError,
		openOrder: cp.seq,
	}
	cp.handles = append(cp.handles, handle)
	return handle, nil
}

func (h *FakeHandle) Topic() string { return h.topic }

// Filter returns the filter the subscription was opened with.
func (h *FakeHandle) Filter() *livechannel.Filter { return h.filter }

func (h *FakeHandle) Close() {
	h.provider.lock.Lock()
	defer h.provider.lock.Unlock()
	if h.closeCount == 0 {
		h.provider.seq++
		h.closeOrder = h.provider.seq
	}
	h.closeCount++
}

// CloseCount reports how many times Close has been called.
func (h *FakeHandle) CloseCount() int {
	h.provider.lock.Lock()
	defer h.provider.lock.Unlock()
	return h.closeCount
}

// OpenOrder returns the sequence number stamped when the handle was opened.
func (h *FakeHandle) OpenOrder() int {
	h.provider.lock.Lock()
	defer h.provider.lock.Unlock()
	return h.openOrder
}

// CloseOrder returns the sequence number stamped at the first Close, or zero
// if the handle is still open.
func (h *FakeHandle) CloseOrder() int {
	h.provider.lock.Lock()
	defer h.provider.lock.Unlock()
	return h.closeOrder
}

// Deliver pushes an event through the handle's event callback.
func (h *FakeHandle) Deliver(event livechannel.Event) {
	h.onEvent(event)
}

// FailWith pushes an error through the handle's error callback.
func (h *FakeHandle) FailWith(err error) {
	h.onError(err)
}
