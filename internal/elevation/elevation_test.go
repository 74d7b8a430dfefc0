package elevation_test

import (
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/smykla-skalski/vigil/internal/elevation"
)

func TestElevation(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Elevation Suite")
}

var _ = Describe("Checker", func() {
	It("answers from the effective UID", func() {
		Expect(elevation.NewChecker().IsElevated()).To(Equal(os.Geteuid() == 0))
	})

	It("Static returns its fixed answer", func() {
		Expect(elevation.Static(true).IsElevated()).To(BeTrue())
		Expect(elevation.Static(false).IsElevated()).To(BeFalse())
	})
})
