package exec_test

import (
	"context"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/smykla-skalski/vigil/internal/exec"
)

func TestExec(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Exec Suite")
}

var _ = Describe("CommandRunner", func() {
	var runner exec.CommandRunner

	BeforeEach(func() {
		runner = exec.NewCommandRunner(5 * time.Second)
	})

	Describe("Run", func() {
		It("captures stdout", func() {
			result, err := runner.Run(context.Background(), "echo", "hello")
			Expect(err).ToNot(HaveOccurred())
			Expect(strings.TrimSpace(result.Stdout)).To(Equal("hello"))
			Expect(result.ExitCode).To(BeZero())
		})

		It("captures stderr and the exit code", func() {
			result, err := runner.Run(context.Background(), "sh", "-c", "echo oops >&2; exit 3")
			Expect(err).To(HaveOccurred())
			Expect(result.ExitCode).To(Equal(3))
			Expect(strings.TrimSpace(result.Stderr)).To(Equal("oops"))
		})

		It("fails for programs that do not exist", func() {
			_, err := runner.Run(context.Background(), "/no/such/binary")
			Expect(err).To(HaveOccurred())
		})

		It("honors context cancellation", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			start := time.Now()
			_, err := runner.Run(ctx, "sleep", "10")
			Expect(err).To(HaveOccurred())
			Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))
		})
	})

	Describe("RunWithStdin", func() {
		It("pipes stdin to the command", func() {
			result, err := runner.RunWithStdin(
				context.Background(), strings.NewReader("line in\n"), "cat",
			)
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Stdout).To(Equal("line in\n"))
		})
	})

	Describe("RunWithTimeout", func() {
		It("uses the given timeout", func() {
			start := time.Now()
			_, err := runner.RunWithTimeout(50*time.Millisecond, "sleep", "10")
			Expect(err).To(HaveOccurred())
			Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))
		})

		It("falls back to the default timeout when non-positive", func() {
			result, err := runner.RunWithTimeout(0, "echo", "ok")
			Expect(err).ToNot(HaveOccurred())
			Expect(strings.TrimSpace(result.Stdout)).To(Equal("ok"))
		})
	})
})
