package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Setup", func() {
	var (
		buf      bytes.Buffer
		previous *slog.Logger
	)

	BeforeEach(func() {
		buf.Reset()
		previous = slog.Default()
	})

	AfterEach(func() {
		slog.SetDefault(previous)
	})

	It("should write JSON records", func() {
		Expect(Setup(&buf, "info", "json")).To(Succeed())
		slog.Info("Batch finished", "total", 3)

		var entry map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &entry)).To(Succeed())
		Expect(entry).To(HaveKeyWithValue("msg", "Batch finished"))
		Expect(entry).To(HaveKeyWithValue("total", BeNumerically("==", 3)))
	})

	It("should drop records below the level", func() {
		Expect(Setup(&buf, "warn", "text")).To(Succeed())
		slog.Info("hidden")
		slog.Warn("Document failed", "source", "a.pdf")

		Expect(buf.String()).NotTo(ContainSubstring("hidden"))
		Expect(buf.String()).To(ContainSubstring("source=a.pdf"))
	})

	It("should reject unknown values", func() {
		Expect(Setup(&buf, "loud", "text")).To(MatchError(ContainSubstring("log level")))
		Expect(Setup(&buf, "info", "xml")).To(MatchError(ContainSubstring("log format")))
	})
})

var _ = DescribeTable("ParseLevel",
	func(name string, want slog.Level) {
		Expect(ParseLevel(name)).To(Equal(want))
	},
	Entry("debug", "debug", slog.LevelDebug),
	Entry("empty", "", slog.LevelInfo),
	Entry("upper case", "WARN", slog.LevelWarn),
	Entry("warning", "warning", slog.LevelWarn),
	Entry("error", "error", slog.LevelError),
)
