package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	api "github.com/netvoice/tracker/api/v1alpha1"
)

// pushServer is a minimal websocket endpoint that records client frames and
// pushes whatever the test hands it.
type pushServer struct {
	server      *httptest.Server
	connections atomic.Int64
	received    chan []byte
	push        chan []byte
	closeAfter  int64
}

func newPushServer() *pushServer {
	p := &pushServer{
		received: make(chan []byte, 16),
		push:     make(chan []byte, 16),
	}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		n := p.connections.Add(1)

		go func() {
			defer conn.Close()
			for {
				payload, err := wsutil.ReadClientText(conn)
				if err != nil {
					return
				}
				p.received <- payload
			}
		}()

		go func() {
			defer conn.Close()
			if p.closeAfter > 0 && n <= p.closeAfter {
				// Simulate a flaky connection that drops shortly after
				// being established.
				time.Sleep(20 * time.Millisecond)
				return
			}
			for payload := range p.push {
				if err := wsutil.WriteServerText(conn, payload); err != nil {
					return
				}
			}
		}()
	}))
	return p
}

func (p *pushServer) url() string {
	return "ws" + strings.TrimPrefix(p.server.URL, "http")
}

func (p *pushServer) pushMessage(msg api.EventMessage) {
	payload, err := json.Marshal(msg)
	Expect(err).To(BeNil())
	p.push <- payload
}

var _ = Describe("channel", func() {
	var (
		srv    *pushServer
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		srv = newPushServer()
	})

	AfterEach(func() {
		if cancel != nil {
			cancel()
			cancel = nil
		}
		srv.server.Close()
	})

	run := func(c *Channel) {
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		go func() {
			_ = c.Run(ctx)
		}()
	}

	Context("disconnected", func() {
		It("reports not connected and drops sends silently", func() {
			c := New("ws://127.0.0.1:1")
			Expect(c.Connected()).To(BeFalse())
			Expect(c.Send(api.NewSubscribeRequest("op-1"))).To(BeNil())
		})
	})

	Context("connected", func() {
		It("flips the connected flag and invokes the connect callback", func() {
			c := New(srv.url(), WithReconnectDelay(10*time.Millisecond, 50*time.Millisecond))
			var connects atomic.Int64
			c.SetOnConnect(func() { connects.Add(1) })

			run(c)

			Eventually(c.Connected, time.Second).Should(BeTrue())
			Eventually(connects.Load, time.Second).Should(BeNumerically(">=", int64(1)))
		})

		It("buffers inbound messages in arrival order", func() {
			c := New(srv.url(), WithReconnectDelay(10*time.Millisecond, 50*time.Millisecond))
			run(c)
			Eventually(c.Connected, time.Second).Should(BeTrue())

			srv.pushMessage(stageMsg("op-1", api.StageIntentParsing))
			srv.pushMessage(stageMsg("op-1", api.StageConfigGeneration))

			Eventually(c.Buffer().Size, time.Second).Should(Equal(2))
			msgs, _, _ := c.Buffer().Since(0, 0)
			Expect(msgs[0].Stage).To(Equal(api.StageIntentParsing))
			Expect(msgs[1].Stage).To(Equal(api.StageConfigGeneration))
		})

		It("transmits subscription requests", func() {
			c := New(srv.url(), WithReconnectDelay(10*time.Millisecond, 50*time.Millisecond))
			run(c)
			Eventually(c.Connected, time.Second).Should(BeTrue())

			Expect(c.Send(api.NewSubscribeRequest("op-42"))).To(BeNil())

			var payload []byte
			Eventually(srv.received, time.Second).Should(Receive(&payload))

			sub := api.SubscribeRequest{}
			Expect(json.Unmarshal(payload, &sub)).To(BeNil())
			Expect(sub.Type).To(Equal("subscribe"))
			Expect(sub.JobId).To(Equal("op-42"))
		})

		It("skips malformed frames without dropping the connection", func() {
			c := New(srv.url(), WithReconnectDelay(10*time.Millisecond, 50*time.Millisecond))
			run(c)
			Eventually(c.Connected, time.Second).Should(BeTrue())

			srv.push <- []byte("{not json")
			srv.pushMessage(stageMsg("op-1", api.StageIntentParsing))

			Eventually(c.Buffer().Size, time.Second).Should(Equal(1))
			Expect(c.Connected()).To(BeTrue())
		})
	})

	Context("reconnect", func() {
		It("re-establishes a dropped connection and resets the buffer generation", func() {
			srv.closeAfter = 1

			c := New(srv.url(), WithReconnectDelay(10*time.Millisecond, 50*time.Millisecond))
			var connects atomic.Int64
			c.SetOnConnect(func() { connects.Add(1) })

			run(c)

			// first connection drops, second one sticks
			Eventually(connects.Load, 5*time.Second).Should(BeNumerically(">=", int64(2)))
			Eventually(c.Connected, time.Second).Should(BeTrue())
			Expect(srv.connections.Load()).To(BeNumerically(">=", int64(2)))

			_, generation, _ := c.Buffer().Since(0, 0)
			Expect(generation).To(BeNumerically(">=", uint64(2)))
		})
	})
})
