package config_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/smykla-skalski/vigil/pkg/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Duration", func() {
	It("round-trips through text", func() {
		d := config.Duration(90 * time.Second)

		text, err := d.MarshalText()
		Expect(err).ToNot(HaveOccurred())
		Expect(string(text)).To(Equal("1m30s"))

		var parsed config.Duration
		Expect(parsed.UnmarshalText(text)).To(Succeed())
		Expect(parsed).To(Equal(d))
	})

	It("rejects text that is not a duration", func() {
		var d config.Duration
		err := d.UnmarshalText([]byte("soon"))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring(`"soon"`))
	})

	It("falls back when unset", func() {
		var d config.Duration
		Expect(d.OrDefault(3 * time.Second)).To(Equal(3 * time.Second))
		Expect(config.Duration(time.Second).OrDefault(3 * time.Second)).To(Equal(time.Second))
	})
})

var _ = Describe("Global accessors", func() {
	It("falls back on a nil document", func() {
		var g *config.Global
		Expect(g.QueueSize()).To(BeNumerically(">", 0))
		Expect(g.MaxConnections()).To(BeNumerically(">", 0))
		Expect(g.HostRequestTimeout()).To(BeNumerically(">", 0))
		Expect(g.LogLevel()).To(Equal("INFO"))
		Expect(g.HostSocketPath()).To(ContainSubstring(config.DefaultHostSocket))
		Expect(g.AgentSocketPath()).To(ContainSubstring(config.DefaultAgentSocket))
		Expect(g.LogFile()).To(ContainSubstring(config.DefaultLogFile))
	})

	It("prefers configured values", func() {
		g := &config.Global{
			Host: &config.HostConfig{
				SocketPath:     "/run/vigild.sock",
				RequestTimeout: config.Duration(time.Second),
				MaxConnections: 9,
			},
			Bus: &config.BusConfig{QueueSize: 32},
			Log: &config.LogConfig{Level: "DEBUG"},
		}

		Expect(g.HostSocketPath()).To(Equal("/run/vigild.sock"))
		Expect(g.HostRequestTimeout()).To(Equal(time.Second))
		Expect(g.MaxConnections()).To(Equal(9))
		Expect(g.QueueSize()).To(Equal(32))
		Expect(g.LogLevel()).To(Equal("DEBUG"))
	})

	It("ignores non-positive bounds", func() {
		g := &config.Global{
			Host: &config.HostConfig{MaxConnections: -1},
			Bus:  &config.BusConfig{QueueSize: 0},
		}

		Expect(g.MaxConnections()).To(Equal(config.DefaultGlobal().MaxConnections()))
		Expect(g.QueueSize()).To(Equal(config.DefaultGlobal().QueueSize()))
	})

	It("materializes every default section", func() {
		g := config.DefaultGlobal()
		Expect(g.Host).ToNot(BeNil())
		Expect(g.Agent).ToNot(BeNil())
		Expect(g.Bus).ToNot(BeNil())
		Expect(g.Log).ToNot(BeNil())
		Expect(g.Host.SocketPath).To(HaveSuffix(config.DefaultHostSocket))
	})
})

var _ = Describe("Plugin documents", func() {
	It("treats an unset enabled pointer as enabled", func() {
		Expect(config.IsEnabled(nil)).To(BeTrue())

		off := false
		Expect(config.IsEnabled(&off)).To(BeFalse())
	})

	It("defaults the webhook to disabled", func() {
		Expect(config.IsEnabled(config.DefaultWebhookConfig().Enabled)).To(BeFalse())
	})

	It("falls back on nil plugin documents", func() {
		var hb *config.HeartbeatConfig
		Expect(hb.GetInterval()).To(Equal(30 * time.Second))

		var fw *config.FileWatchConfig
		Expect(fw.GetDebounce()).To(Equal(2 * time.Second))
		Expect(fw.GetDedupeCap()).To(BeNumerically(">", 0))

		var dn *config.DesktopNotifyConfig
		Expect(dn.GetTitle()).To(Equal("vigil"))

		var ext *config.ExternalConfig
		Expect(ext.GetTimeout()).To(Equal(5 * time.Second))
	})
})
