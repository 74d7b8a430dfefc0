package bus_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/smykla-skalski/vigil/internal/bus"
	"github.com/smykla-skalski/vigil/pkg/event"
	"github.com/smykla-skalski/vigil/pkg/logger"
)

func TestBus(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Bus Suite")
}

// recordingHandler collects delivered events behind a mutex and signals
// each delivery so specs can wait without polling internals.
type recordingHandler struct {
	mu     sync.Mutex
	events []*event.Event
	ch     chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		ch: make(chan struct{}, 128),
	}
}

func (h *recordingHandler) handle(_ context.Context, evt *event.Event) error {
	h.mu.Lock()
	h.events = append(h.events, evt)
	h.mu.Unlock()

	h.ch <- struct{}{}

	return nil
}

func (h *recordingHandler) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, 0, len(h.events))
	for _, evt := range h.events {
		out = append(out, evt.Type)
	}

	return out
}

var _ = Describe("Bus", func() {
	var b *bus.Bus

	BeforeEach(func() {
		b = bus.New(16, logger.NewNoOpLogger())
	})

	AfterEach(func() {
		b.Close()
	})

	Describe("Subscribe", func() {
		It("rejects duplicate subscription names", func() {
			Expect(b.Subscribe("journal", nil, func(context.Context, *event.Event) error {
				return nil
			})).To(Succeed())

			err := b.Subscribe("journal", nil, func(context.Context, *event.Event) error {
				return nil
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("already exists"))
		})

		It("fails after the bus is closed", func() {
			b.Close()

			err := b.Subscribe("late", nil, func(context.Context, *event.Event) error {
				return nil
			})
			Expect(err).To(MatchError(bus.ErrClosed))
		})
	})

	Describe("Publish", func() {
		It("delivers events to every subscription", func() {
			first := newRecordingHandler()
			second := newRecordingHandler()

			Expect(b.Subscribe("first", nil, first.handle)).To(Succeed())
			Expect(b.Subscribe("second", nil, second.handle)).To(Succeed())

			Expect(b.Publish(event.New("heartbeat", "heartbeat"))).To(Succeed())

			Eventually(first.ch).Should(Receive())
			Eventually(second.ch).Should(Receive())

			Expect(first.types()).To(Equal([]string{"heartbeat"}))
			Expect(second.types()).To(Equal([]string{"heartbeat"}))
		})

		It("preserves enqueue order per subscription", func() {
			handler := newRecordingHandler()
			Expect(b.Subscribe("ordered", nil, handler.handle)).To(Succeed())

			for _, eventType := range []string{"a", "b", "c", "d"} {
				Expect(b.Publish(event.New(eventType, "test"))).To(Succeed())
			}

			for range 4 {
				Eventually(handler.ch).Should(Receive())
			}

			Expect(handler.types()).To(Equal([]string{"a", "b", "c", "d"}))
		})

		It("skips subscriptions whose enabled func reports false", func() {
			var enabled atomic.Bool

			handler := newRecordingHandler()
			Expect(b.Subscribe("toggled", enabled.Load, handler.handle)).To(Succeed())

			Expect(b.Publish(event.New("ignored", "test"))).To(Succeed())

			enabled.Store(true)
			Expect(b.Publish(event.New("seen", "test"))).To(Succeed())

			Eventually(handler.ch).Should(Receive())
			Consistently(handler.ch).ShouldNot(Receive())

			Expect(handler.types()).To(Equal([]string{"seen"}))
		})

		It("returns ErrClosed after Close", func() {
			b.Close()
			Expect(b.Publish(event.New("late", "test"))).To(MatchError(bus.ErrClosed))
		})

		It("buffers past the initial capacity instead of dropping", func() {
			small := bus.New(1, logger.NewNoOpLogger())
			defer small.Close()

			release := make(chan struct{})

			var slowCount atomic.Int32

			fast := newRecordingHandler()

			Expect(small.Subscribe("slow", nil, func(context.Context, *event.Event) error {
				<-release
				slowCount.Add(1)

				return nil
			})).To(Succeed())
			Expect(small.Subscribe("fast", nil, fast.handle)).To(Succeed())

			// The slow worker is parked on its first event; the rest
			// accumulate in its buffer while the fast listener drains.
			for range 8 {
				Expect(small.Publish(event.New("burst", "test"))).To(Succeed())
			}

			for range 8 {
				Eventually(fast.ch).Should(Receive())
			}

			Expect(small.Stats()["slow"].Enqueued).To(Equal(uint64(8)))
			Expect(small.Stats()["slow"].Dropped).To(BeZero())

			close(release)

			Eventually(slowCount.Load).Should(Equal(int32(8)))
		})
	})

	Describe("Unsubscribe", func() {
		It("delivers the remaining buffer before returning", func() {
			var handled atomic.Int32

			Expect(b.Subscribe("draining", nil, func(context.Context, *event.Event) error {
				time.Sleep(2 * time.Millisecond)
				handled.Add(1)

				return nil
			})).To(Succeed())

			for range 5 {
				Expect(b.Publish(event.New("tick", "test"))).To(Succeed())
			}

			b.Unsubscribe("draining")

			// The worker exited, so every buffered event was handled.
			Expect(handled.Load()).To(Equal(int32(5)))
		})
	})

	Describe("failure isolation", func() {
		It("counts handler errors without affecting other subscriptions", func() {
			healthy := newRecordingHandler()

			Expect(b.Subscribe("failing", nil, func(context.Context, *event.Event) error {
				return context.DeadlineExceeded
			})).To(Succeed())
			Expect(b.Subscribe("healthy", nil, healthy.handle)).To(Succeed())

			Expect(b.Publish(event.New("work", "test"))).To(Succeed())

			Eventually(healthy.ch).Should(Receive())
			Eventually(func() uint64 {
				return b.Stats()["failing"].Failed
			}).Should(Equal(uint64(1)))
			Expect(b.Stats()["healthy"].Failed).To(BeZero())
		})

		It("contains handler panics", func() {
			healthy := newRecordingHandler()

			Expect(b.Subscribe("panicking", nil, func(context.Context, *event.Event) error {
				panic("listener bug")
			})).To(Succeed())
			Expect(b.Subscribe("healthy", nil, healthy.handle)).To(Succeed())

			Expect(b.Publish(event.New("work", "test"))).To(Succeed())
			Expect(b.Publish(event.New("more", "test"))).To(Succeed())

			Eventually(healthy.ch).Should(Receive())
			Eventually(healthy.ch).Should(Receive())
			Eventually(func() uint64 {
				return b.Stats()["panicking"].Failed
			}).Should(Equal(uint64(2)))
		})
	})

	Describe("Stats", func() {
		It("tracks enqueued and delivered counts", func() {
			handler := newRecordingHandler()
			Expect(b.Subscribe("counted", nil, handler.handle)).To(Succeed())

			for range 5 {
				Expect(b.Publish(event.New("tick", "test"))).To(Succeed())
			}

			for range 5 {
				Eventually(handler.ch).Should(Receive())
			}

			Eventually(func() bus.Stats {
				return b.Stats()["counted"]
			}).Should(SatisfyAll(
				HaveField("Enqueued", uint64(5)),
				HaveField("Delivered", uint64(5)),
			))
		})

		It("forgets unsubscribed listeners", func() {
			Expect(b.Subscribe("gone", nil, func(context.Context, *event.Event) error {
				return nil
			})).To(Succeed())

			b.Unsubscribe("gone")

			Expect(b.Stats()).ToNot(HaveKey("gone"))
		})
	})
})
