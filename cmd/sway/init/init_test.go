package initcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/sway/cmd/sway/init"
	"github.com/papercomputeco/sway/pkg/config"
)

var _ = Describe("init command", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "sway-init-test-*")
		Expect(err).NotTo(HaveOccurred())
		tmpDir, err = filepath.EvalSymlinks(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	execute := func(args ...string) error {
		cmd := initcmder.NewInitCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	load := func() *config.Config {
		cfger, err := config.NewConfiger(filepath.Join(tmpDir, ".sway"))
		Expect(err).NotTo(HaveOccurred())
		cfg, err := cfger.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		return cfg
	}

	It("creates .sway with the local preset by default", func() {
		Expect(execute()).To(Succeed())

		_, err := os.Stat(filepath.Join(tmpDir, ".sway", "config.toml"))
		Expect(err).NotTo(HaveOccurred())
		Expect(load()).To(Equal(config.NewDefaultConfig()))
	})

	It("writes the requested preset", func() {
		Expect(execute("--preset", "qdrant")).To(Succeed())
		Expect(load().VectorStore.Provider).To(Equal("qdrant"))
	})

	It("leaves an existing config alone", func() {
		Expect(execute("--preset", "remote")).To(Succeed())
		Expect(execute("--preset", "local")).To(Succeed())
		Expect(load().Backend.Mode).To(Equal("remote"))
	})

	It("rejects unknown presets", func() {
		Expect(execute("--preset", "nope")).To(MatchError(config.ErrUnknownPreset))
	})
})
