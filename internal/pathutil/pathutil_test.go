package pathutil_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/smykla-skalski/vigil/internal/pathutil"
)

func TestPathutil(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Pathutil Suite")
}

var _ = Describe("ExpandPath", func() {
	It("passes through paths without a tilde", func() {
		expanded, err := pathutil.ExpandPath("/var/log/vigil")
		Expect(err).ToNot(HaveOccurred())
		Expect(expanded).To(Equal("/var/log/vigil"))

		expanded, err = pathutil.ExpandPath("")
		Expect(err).ToNot(HaveOccurred())
		Expect(expanded).To(BeEmpty())
	})

	It("expands a bare tilde to the home directory", func() {
		home, err := os.UserHomeDir()
		Expect(err).ToNot(HaveOccurred())

		expanded, err := pathutil.ExpandPath("~")
		Expect(err).ToNot(HaveOccurred())
		Expect(expanded).To(Equal(home))
	})

	It("expands ~/subdir under the home directory", func() {
		home, err := os.UserHomeDir()
		Expect(err).ToNot(HaveOccurred())

		expanded, err := pathutil.ExpandPath("~/journal.jsonl")
		Expect(err).ToNot(HaveOccurred())
		Expect(expanded).To(Equal(filepath.Join(home, "journal.jsonl")))
	})

	It("rejects ~user forms", func() {
		_, err := pathutil.ExpandPath("~root/secrets")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("ExpandPathSilent", func() {
	It("returns the original path on error", func() {
		Expect(pathutil.ExpandPathSilent("~root/secrets")).To(Equal("~root/secrets"))
		Expect(pathutil.ExpandPathSilent("/plain")).To(Equal("/plain"))
	})
})

var _ = Describe("EnsureDir", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "ensure-test-*")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("creates missing directories with 0700", func() {
		target := filepath.Join(tmpDir, "a", "b")
		Expect(pathutil.EnsureDir(target)).To(Succeed())

		info, err := os.Stat(target)
		Expect(err).ToNot(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
		Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o700)))
	})

	It("tightens permissions on existing directories", func() {
		target := filepath.Join(tmpDir, "open")
		Expect(os.Mkdir(target, 0o700)).To(Succeed())
		Expect(os.Chmod(target, 0o755)).To(Succeed())

		Expect(pathutil.EnsureDir(target)).To(Succeed())

		info, err := os.Stat(target)
		Expect(err).ToNot(HaveOccurred())
		Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o700)))
	})
})
