package instance_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/reactor/instance"
)

func writeConfig(dir, body string) string {
	path := filepath.Join(dir, "config.ini")
	Expect(os.WriteFile(path, []byte(body), 0o600)).To(Succeed())
	return path
}

var _ = Describe("LoadConfig", func() {
	It("unmarshals sectioned keys and applies defaults", func() {
		path := writeConfig(GinkgoT().TempDir(), "[app]\nname = reactord\n\n[svc]\nport = 5000\n")
		cfg, err := instance.LoadConfig(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.AppName).To(Equal("reactord"))
		Expect(cfg.SvcPort).To(Equal(5000))
		Expect(cfg.PollerType).To(Equal("auto"))
		Expect(cfg.ChildType).To(Equal("single"))
	})

	It("fails validation when app.name is missing", func() {
		path := writeConfig(GinkgoT().TempDir(), "[svc]\nport = 5000\n")
		_, err := instance.LoadConfig(path)
		Expect(err).To(HaveOccurred())
	})

	It("fails validation on an invalid child.type", func() {
		path := writeConfig(GinkgoT().TempDir(), "[app]\nname = reactord\n\n[child]\ntype = triple\n")
		_, err := instance.LoadConfig(path)
		Expect(err).To(HaveOccurred())
	})

	It("fails to read a missing file", func() {
		_, err := instance.LoadConfig(filepath.Join(GinkgoT().TempDir(), "missing.ini"))
		Expect(err).To(HaveOccurred())
	})
})
