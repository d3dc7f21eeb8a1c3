package extraction

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Normalize", func() {
	var (
		raw  string
		text string
	)

	JustBeforeEach(func() {
		text = Normalize(raw)
	})

	When("a label is fragmented with dots", func() {
		BeforeEach(func() {
			raw = "I.n.v.o.i.c.e. n.u.m.b.e.r.: INV-2024-00123"
		})

		It("should rejoin the words", func() {
			Expect(text).To(Equal("Invoice number: INV-2024-00123"))
		})
	})

	When("letters and digits are spaced apart", func() {
		BeforeEach(func() {
			raw = "I n v o i c e number: 5 0 1 1 6 7"
		})

		It("should rejoin both runs", func() {
			Expect(text).To(Equal("Invoice number: 501167"))
		})
	})

	When("the text is empty", func() {
		BeforeEach(func() {
			raw = ""
		})

		It("should return empty text", func() {
			Expect(text).To(BeEmpty())
		})
	})

	When("the text is only whitespace", func() {
		BeforeEach(func() {
			raw = " \n\t\r\n  "
		})

		It("should return empty text", func() {
			Expect(text).To(BeEmpty())
		})
	})

	When("the text spans several lines", func() {
		BeforeEach(func() {
			raw = "  Subtotal   in EUR  \r\n\r\n\t€ 100,00 \n"
		})

		It("should keep one trimmed line per non-blank line", func() {
			Expect(text).To(Equal("Subtotal in EUR\n€100,00"))
		})
	})

	When("the text uses compatibility and invisible characters", func() {
		BeforeEach(func() {
			raw = "Total\u00a0due\u200b: \uff11\uff12\uff11,\uff10\uff10 \u2013 paid"
		})

		It("should fold them into plain characters", func() {
			Expect(text).To(Equal("Total due: 121,00 - paid"))
		})
	})

	When("labels are followed by dot leaders", func() {
		BeforeEach(func() {
			raw = "Total ........ €121,00"
		})

		It("should drop the leaders", func() {
			Expect(text).To(Equal("Total €121,00"))
		})
	})

	When("numbers and dates carry separators", func() {
		BeforeEach(func() {
			raw = "Date 01.06.2024 amount 1.234,56 version 1.2.24"
		})

		It("should leave them alone", func() {
			Expect(text).To(Equal(raw))
		})
	})

	When("a short abbreviation is dotted", func() {
		BeforeEach(func() {
			raw = "e.g. see above"
		})

		It("should not treat it as fragmented", func() {
			Expect(text).To(Equal("e.g. see above"))
		})
	})

	When("the text has no artifacts", func() {
		BeforeEach(func() {
			raw = "Google Cloud EMEA Limited\nInvoice number: 5011671234\nTotal in EUR €121,00"
		})

		It("should pass through unchanged", func() {
			Expect(text).To(Equal(raw))
		})
	})

	When("the text contains invalid UTF-8", func() {
		BeforeEach(func() {
			raw = "Total\xff: 5,00"
		})

		It("should drop the invalid bytes", func() {
			Expect(text).To(Equal("Total: 5,00"))
		})
	})

	DescribeTable("idempotence",
		func(input string) {
			once := Normalize(input)
			Expect(Normalize(once)).To(Equal(once))
		},
		Entry("dotted label", "I.n.v.o.i.c.e. n.u.m.b.e.r.: INV-2024-00123"),
		Entry("spaced letters next to dotted run", "a b c.d.e.f"),
		Entry("dotted run next to spaced letters", "a.b.c d e f"),
		Entry("leaders and currency gap", "Total.....€ 1 2 1,00"),
		Entry("mixed unicode", "Sub\u2011total\u00a0: \uff25\uff35\uff32 1.234,56\u200b"),
		Entry("bullets", "V•A•T • n•u•m•b•e•r"),
		Entry("multi-line", "Bill to\n\n  Acme BV  \nacme.example\n"),
		Entry("single letters", "x y z.a.b.c"),
		Entry("invisible before combining mark", "Cafe\u200b\u0301"),
		Entry("invisible before combining mark mid-line", "Cafe\u200b\u0301 total"),
		Entry("dotted run before combining mark", "x.y.e.\u0301"),
		Entry("empty", ""),
	)

	When("an invisible character separates a letter from its combining mark", func() {
		BeforeEach(func() {
			raw = "Cafe\u200b\u0301 total"
		})

		It("should compose them", func() {
			Expect(text).To(Equal("Caf\u00e9 total"))
		})
	})
})
