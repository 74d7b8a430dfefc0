package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	cfgstore "github.com/smykla-skalski/vigil/internal/config"
	"github.com/smykla-skalski/vigil/pkg/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Store", func() {
	var (
		tmpDir string
		store  *cfgstore.Store
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "store-test-*")
		Expect(err).ToNot(HaveOccurred())

		store = cfgstore.NewStoreWithDir(tmpDir)
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("LoadGlobal", func() {
		It("materializes the default document when no file exists", func() {
			cfg, err := store.LoadGlobal()
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.QueueSize()).To(Equal(config.DefaultGlobal().QueueSize()))

			Expect(store.GlobalConfigPath()).To(BeAnExistingFile())

			info, err := os.Stat(store.GlobalConfigPath())
			Expect(err).ToNot(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(cfgstore.ConfigFileMode)))
		})

		It("returns the same values after materializing and re-reading", func() {
			first, err := store.LoadGlobal()
			Expect(err).ToNot(HaveOccurred())

			store.ReloadAll()

			second, err := store.LoadGlobal()
			Expect(err).ToNot(HaveOccurred())

			Expect(second.HostSocketPath()).To(Equal(first.HostSocketPath()))
			Expect(second.AgentSocketPath()).To(Equal(first.AgentSocketPath()))
			Expect(second.QueueSize()).To(Equal(first.QueueSize()))
			Expect(second.MaxConnections()).To(Equal(first.MaxConnections()))
			Expect(second.LogLevel()).To(Equal(first.LogLevel()))
		})

		It("layers file values over defaults", func() {
			doc := "[bus]\nqueue_size = 64\n\n[log]\nlevel = \"DEBUG\"\n"
			Expect(os.WriteFile(store.GlobalConfigPath(), []byte(doc), 0o600)).To(Succeed())

			cfg, err := store.LoadGlobal()
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.QueueSize()).To(Equal(64))
			Expect(cfg.LogLevel()).To(Equal("DEBUG"))

			// Untouched sections keep their defaults.
			Expect(cfg.MaxConnections()).To(Equal(config.DefaultGlobal().MaxConnections()))
		})

		It("layers environment variables over the file", func() {
			doc := "[log]\nlevel = \"INFO\"\n"
			Expect(os.WriteFile(store.GlobalConfigPath(), []byte(doc), 0o600)).To(Succeed())

			os.Setenv("VIGIL_LOG_LEVEL", "ERROR")
			defer os.Unsetenv("VIGIL_LOG_LEVEL")

			cfg, err := store.LoadGlobal()
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.LogLevel()).To(Equal("ERROR"))
		})

		It("caches the document until ReloadAll", func() {
			first, err := store.LoadGlobal()
			Expect(err).ToNot(HaveOccurred())

			doc := "[bus]\nqueue_size = 8\n"
			Expect(os.WriteFile(store.GlobalConfigPath(), []byte(doc), 0o600)).To(Succeed())

			cached, err := store.LoadGlobal()
			Expect(err).ToNot(HaveOccurred())
			Expect(cached).To(BeIdenticalTo(first))

			store.ReloadAll()

			fresh, err := store.LoadGlobal()
			Expect(err).ToNot(HaveOccurred())
			Expect(fresh.QueueSize()).To(Equal(8))
		})

		It("rejects world-writable files", func() {
			doc := "[bus]\nqueue_size = 8\n"
			Expect(os.WriteFile(store.GlobalConfigPath(), []byte(doc), 0o600)).To(Succeed())
			// Chmod directly; WriteFile perms are clipped by the umask.
			Expect(os.Chmod(store.GlobalConfigPath(), 0o666)).To(Succeed())

			_, err := store.LoadGlobal()
			Expect(err).To(MatchError(cfgstore.ErrInvalidPermissions))
		})

		It("rejects unparseable TOML", func() {
			Expect(os.WriteFile(store.GlobalConfigPath(), []byte("not == toml {"), 0o600)).To(Succeed())

			_, err := store.LoadGlobal()
			Expect(err).To(MatchError(cfgstore.ErrInvalidTOML))
		})
	})

	Describe("LoadPluginConfig", func() {
		It("materializes defaults for a missing document", func() {
			cfg, err := cfgstore.LoadPluginConfig(
				store, "provider", "heartbeat", config.DefaultHeartbeatConfig(),
			)
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.GetInterval()).To(Equal(30 * time.Second))

			path := store.PluginConfigPath("provider", "heartbeat")
			Expect(path).To(Equal(filepath.Join(tmpDir, "providers", "heartbeat.toml")))
			Expect(path).To(BeAnExistingFile())

			info, err := os.Stat(path)
			Expect(err).ToNot(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(cfgstore.ConfigFileMode)))
		})

		It("merges the file over defaults", func() {
			path := store.PluginConfigPath("provider", "heartbeat")
			Expect(os.MkdirAll(filepath.Dir(path), 0o700)).To(Succeed())
			Expect(os.WriteFile(path, []byte("interval = \"5s\"\n"), 0o600)).To(Succeed())

			cfg, err := cfgstore.LoadPluginConfig(
				store, "provider", "heartbeat", config.DefaultHeartbeatConfig(),
			)
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.GetInterval()).To(Equal(5 * time.Second))
			Expect(config.IsEnabled(cfg.Enabled)).To(BeTrue())
		})

		It("layers environment variables over the file", func() {
			os.Setenv("VIGIL_PROVIDERS_HEARTBEAT_INTERVAL", "1s")
			defer os.Unsetenv("VIGIL_PROVIDERS_HEARTBEAT_INTERVAL")

			cfg, err := cfgstore.LoadPluginConfig(
				store, "provider", "heartbeat", config.DefaultHeartbeatConfig(),
			)
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.GetInterval()).To(Equal(time.Second))
		})

		It("does not materialize anything when defaults are nil", func() {
			cfg, err := cfgstore.LoadPluginConfig[config.HeartbeatConfig](
				store, "provider", "heartbeat", nil,
			)
			Expect(err).ToNot(HaveOccurred())
			Expect(cfg.Enabled).To(BeNil())

			Expect(store.PluginConfigPath("provider", "heartbeat")).ToNot(BeAnExistingFile())
		})

		It("rejects a world-writable document", func() {
			path := store.PluginConfigPath("listener", "journal")
			Expect(os.MkdirAll(filepath.Dir(path), 0o700)).To(Succeed())
			Expect(os.WriteFile(path, []byte("enabled = true\n"), 0o600)).To(Succeed())
			Expect(os.Chmod(path, 0o606)).To(Succeed())

			_, err := cfgstore.LoadPluginConfig(
				store, "listener", "journal", config.DefaultJournalConfig(),
			)
			Expect(err).To(MatchError(cfgstore.ErrInvalidPermissions))
		})
	})

	Describe("SetPluginEnabled", func() {
		It("flips the flag while preserving other fields", func() {
			path := store.PluginConfigPath("listener", "journal")
			Expect(os.MkdirAll(filepath.Dir(path), 0o700)).To(Succeed())

			doc := "enabled = true\nmax_size = \"1 MB\"\npath = \"/tmp/j.jsonl\"\n"
			Expect(os.WriteFile(path, []byte(doc), 0o600)).To(Succeed())

			Expect(store.SetPluginEnabled("listener", "journal", false)).To(Succeed())

			cfg, err := cfgstore.LoadPluginConfig(
				store, "listener", "journal", config.DefaultJournalConfig(),
			)
			Expect(err).ToNot(HaveOccurred())
			Expect(config.IsEnabled(cfg.Enabled)).To(BeFalse())
			Expect(cfg.MaxSize).To(Equal("1 MB"))
			Expect(cfg.Path).To(Equal("/tmp/j.jsonl"))
		})

		It("creates the document when missing", func() {
			Expect(store.SetPluginEnabled("provider", "heartbeat", false)).To(Succeed())

			cfg, err := cfgstore.LoadPluginConfig(
				store, "provider", "heartbeat", config.DefaultHeartbeatConfig(),
			)
			Expect(err).ToNot(HaveOccurred())
			Expect(config.IsEnabled(cfg.Enabled)).To(BeFalse())
		})
	})
})

var _ = Describe("Writer", func() {
	var (
		tmpDir string
		writer *cfgstore.Writer
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "writer-test-*")
		Expect(err).ToNot(HaveOccurred())

		writer = cfgstore.NewWriter(tmpDir)
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("writes documents with owner-only permissions", func() {
		path := filepath.Join(tmpDir, "providers", "heartbeat.toml")
		Expect(writer.WriteFile(path, config.DefaultHeartbeatConfig())).To(Succeed())

		info, err := os.Stat(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(info.Mode().Perm()).To(Equal(os.FileMode(cfgstore.ConfigFileMode)))

		dirInfo, err := os.Stat(filepath.Dir(path))
		Expect(err).ToNot(HaveOccurred())
		Expect(dirInfo.Mode().Perm()).To(Equal(os.FileMode(cfgstore.ConfigDirMode)))
	})

	It("writes TOML a fresh store can read back", func() {
		global := config.DefaultGlobal()
		global.Bus.QueueSize = 99

		Expect(writer.WriteGlobal(global)).To(Succeed())

		loaded, err := cfgstore.NewStoreWithDir(tmpDir).LoadGlobal()
		Expect(err).ToNot(HaveOccurred())
		Expect(loaded.QueueSize()).To(Equal(99))
	})
})
