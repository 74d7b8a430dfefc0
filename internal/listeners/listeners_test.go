package listeners_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	cfgstore "github.com/smykla-skalski/vigil/internal/config"
	"github.com/smykla-skalski/vigil/internal/control"
	"github.com/smykla-skalski/vigil/internal/listeners"
	"github.com/smykla-skalski/vigil/pkg/event"
	"github.com/smykla-skalski/vigil/pkg/logger"
	"github.com/smykla-skalski/vigil/pkg/plugin"
)

func TestListeners(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Listeners Suite")
}

func writeListenerDoc(store *cfgstore.Store, name, doc string) {
	path := store.PluginConfigPath("listener", name)
	Expect(os.MkdirAll(filepath.Dir(path), 0o700)).To(Succeed())
	Expect(os.WriteFile(path, []byte(doc), 0o600)).To(Succeed())
}

var _ = Describe("Journal", func() {
	var (
		tmpDir  string
		store   *cfgstore.Store
		journal plugin.Listener
		ctx     context.Context
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "journal-test-*")
		Expect(err).ToNot(HaveOccurred())

		store = cfgstore.NewStoreWithDir(tmpDir)

		instance, err := listeners.NewJournal(store, logger.NewNoOpLogger())
		Expect(err).ToNot(HaveOccurred())

		journal = instance.(plugin.Listener)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(journal.Stop()).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	It("appends each event as one JSON line", func() {
		Expect(journal.Initialize(ctx)).To(Succeed())
		Expect(journal.Start(ctx)).To(Succeed())

		Expect(journal.Handle(ctx, event.New("heartbeat", "heartbeat").Set("sequence", 1))).To(Succeed())
		Expect(journal.Handle(ctx, event.New("filechange", "filewatch").Set("path", "/tmp/x"))).To(Succeed())

		file, err := os.Open(filepath.Join(tmpDir, "journal.jsonl"))
		Expect(err).ToNot(HaveOccurred())
		defer file.Close()

		var types []string

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			var decoded event.Event
			Expect(json.Unmarshal(scanner.Bytes(), &decoded)).To(Succeed())

			types = append(types, decoded.Type)
		}

		Expect(types).To(Equal([]string{"heartbeat", "filechange"}))
	})

	It("honors a configured path", func() {
		target := filepath.Join(tmpDir, "elsewhere", "log.jsonl")
		writeListenerDoc(store, "journal", "path = \""+target+"\"\n")

		Expect(journal.Initialize(ctx)).To(Succeed())
		Expect(journal.Start(ctx)).To(Succeed())
		Expect(journal.Handle(ctx, event.New("tick", "test"))).To(Succeed())

		Expect(target).To(BeAnExistingFile())
	})

	It("truncates when the size bound would be exceeded", func() {
		writeListenerDoc(store, "journal", "max_size = \"300 B\"\n")

		Expect(journal.Initialize(ctx)).To(Succeed())
		Expect(journal.Start(ctx)).To(Succeed())

		for range 20 {
			Expect(journal.Handle(ctx, event.New("heartbeat", "heartbeat"))).To(Succeed())
		}

		info, err := os.Stat(filepath.Join(tmpDir, "journal.jsonl"))
		Expect(err).ToNot(HaveOccurred())
		Expect(info.Size()).To(BeNumerically("<=", 300))
	})

	It("rejects an unparseable size bound", func() {
		writeListenerDoc(store, "journal", "max_size = \"many bytes\"\n")

		Expect(journal.Initialize(ctx)).To(MatchError(ContainSubstring("max_size")))
	})

	It("restricts the journal file to the owning user", func() {
		Expect(journal.Initialize(ctx)).To(Succeed())
		Expect(journal.Start(ctx)).To(Succeed())
		Expect(journal.Handle(ctx, event.New("tick", "test"))).To(Succeed())

		info, err := os.Stat(filepath.Join(tmpDir, "journal.jsonl"))
		Expect(err).ToNot(HaveOccurred())
		Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
	})

	It("tolerates Stop before Start and repeated Stop", func() {
		Expect(journal.Stop()).To(Succeed())

		Expect(journal.Initialize(ctx)).To(Succeed())
		Expect(journal.Start(ctx)).To(Succeed())
		Expect(journal.Stop()).To(Succeed())
		Expect(journal.Stop()).To(Succeed())
	})
})

var _ = Describe("Webhook", func() {
	var (
		tmpDir  string
		store   *cfgstore.Store
		webhook plugin.Listener
		ctx     context.Context
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "webhook-test-*")
		Expect(err).ToNot(HaveOccurred())

		store = cfgstore.NewStoreWithDir(tmpDir)

		instance, err := listeners.NewWebhook(store, logger.NewNoOpLogger())
		Expect(err).ToNot(HaveOccurred())

		webhook = instance.(plugin.Listener)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(webhook.Stop()).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	It("fails to initialize without a URL", func() {
		Expect(webhook.Initialize(ctx)).To(MatchError(listeners.ErrMissingURL))
	})

	It("fails to initialize with a malformed URL", func() {
		writeListenerDoc(store, "webhook", "url = \"not a url\"\n")

		Expect(webhook.Initialize(ctx)).To(MatchError(ContainSubstring("invalid webhook url")))
	})

	It("POSTs events as JSON", func() {
		var (
			mu     sync.Mutex
			bodies []map[string]any
		)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(r.Header.Get("Content-Type")).To(Equal("application/json"))

			var body map[string]any
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())

			mu.Lock()
			bodies = append(bodies, body)
			mu.Unlock()

			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		writeListenerDoc(store, "webhook", "url = \""+server.URL+"\"\n")

		Expect(webhook.Initialize(ctx)).To(Succeed())
		Expect(webhook.Start(ctx)).To(Succeed())

		evt := event.New("heartbeat", "heartbeat").Set("sequence", 5)
		Expect(webhook.Handle(ctx, evt)).To(Succeed())

		mu.Lock()
		defer mu.Unlock()

		Expect(bodies).To(HaveLen(1))
		Expect(bodies[0]).To(HaveKeyWithValue("event_type", "heartbeat"))
		Expect(bodies[0]).To(HaveKeyWithValue("sequence", float64(5)))
	})

	It("filters event types silently", func() {
		var hits atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)

			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		writeListenerDoc(store, "webhook",
			"url = \""+server.URL+"\"\nevent_types = [\"filechange\"]\n")

		Expect(webhook.Initialize(ctx)).To(Succeed())

		Expect(webhook.Handle(ctx, event.New("heartbeat", "heartbeat"))).To(Succeed())
		Expect(hits.Load()).To(BeZero())

		Expect(webhook.Handle(ctx, event.New("filechange", "filewatch"))).To(Succeed())
		Expect(hits.Load()).To(Equal(int32(1)))
	})

	It("treats non-2xx answers as delivery failures", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		writeListenerDoc(store, "webhook", "url = \""+server.URL+"\"\n")

		Expect(webhook.Initialize(ctx)).To(Succeed())

		err := webhook.Handle(ctx, event.New("tick", "test"))
		Expect(err).To(MatchError(ContainSubstring("503")))
	})

	It("reports transport failures", func() {
		writeListenerDoc(store, "webhook", "url = \"http://127.0.0.1:1/hook\"\n")

		Expect(webhook.Initialize(ctx)).To(Succeed())
		Expect(webhook.Handle(ctx, event.New("tick", "test"))).To(HaveOccurred())
	})
})

var _ = Describe("DesktopNotify", func() {
	var (
		tmpDir string
		store  *cfgstore.Store
		notify plugin.Listener
		ctx    context.Context
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "notify-test-*")
		Expect(err).ToNot(HaveOccurred())

		store = cfgstore.NewStoreWithDir(tmpDir)

		instance, err := listeners.NewDesktopNotify(store, logger.NewNoOpLogger())
		Expect(err).ToNot(HaveOccurred())

		notify = instance.(plugin.Listener)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(notify.Stop()).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	// agentDoc points the global document's agent socket into the test
	// directory.
	agentDoc := func(socketPath string) {
		doc := "[agent]\nsocket_path = \"" + socketPath + "\"\nrequest_timeout = \"1s\"\n"
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(doc), 0o600)).To(Succeed())
	}

	It("sends a notification through the agent socket", func() {
		socketPath := filepath.Join(tmpDir, "agent.sock")
		agentDoc(socketPath)

		var (
			mu     sync.Mutex
			params map[string]string
		)

		agent := control.NewServer(socketPath, 1, logger.NewNoOpLogger())
		agent.Handle("sendnotification", func(_ context.Context, req *control.Request) (*control.Response, error) {
			mu.Lock()
			params = req.Parameters
			mu.Unlock()

			return control.OK(nil)
		})

		serveCtx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- agent.Serve(serveCtx)
		}()

		Eventually(func() bool {
			return control.NewClient(socketPath, 0).Ping(context.Background())
		}).Should(BeTrue())

		Expect(notify.Initialize(ctx)).To(Succeed())
		Expect(notify.Start(ctx)).To(Succeed())
		Expect(notify.Handle(ctx, event.New("filechange", "filewatch"))).To(Succeed())

		mu.Lock()
		defer mu.Unlock()

		Expect(params).To(HaveKeyWithValue("title", "vigil"))
		Expect(params).To(HaveKeyWithValue("message", "filechange from filewatch"))

		cancel()
		Eventually(done).Should(Receive())
	})

	It("tolerates an absent agent", func() {
		agentDoc(filepath.Join(tmpDir, "agent.sock"))

		Expect(notify.Initialize(ctx)).To(Succeed())
		Expect(notify.Start(ctx)).To(Succeed())

		// No agent is listening; delivery succeeds without error.
		Expect(notify.Handle(ctx, event.New("tick", "test"))).To(Succeed())
	})
})
