package scanning

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-index/internal/extraction"
)

var _ = Describe("parseFields", func() {
	var (
		reply  string
		text   string
		fields extraction.Fields
		err    error
	)

	BeforeEach(func() {
		text = "Subtotal in EUR €100,00"
	})

	JustBeforeEach(func() {
		fields, err = parseFields(reply, text, extraction.NewCoercer(extraction.LocaleAuto))
	})

	When("parsing a complete reply", func() {
		BeforeEach(func() {
			reply = `{
				"supplier": "Google Cloud EMEA Limited",
				"supplier_vat": "IE 3668997OH",
				"invoice_number": "5011671234",
				"invoice_date_start": "2024-06-01",
				"invoice_date_end": "2024-06-30",
				"billing_id": "0123-4567-8901",
				"domain": "Acme.Example",
				"subtotal_eur": 100.0,
				"vat_percent": "21%",
				"vat_amount_eur": 21,
				"total_eur": 121.004,
				"currency": "EUR"
			}`
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should coerce the strings", func() {
			Expect(fields.Supplier).To(Equal("Google Cloud EMEA Limited"))
			Expect(fields.VATNumber).To(Equal("IE3668997OH"))
			Expect(fields.InvoiceNumber).To(Equal("5011671234"))
			Expect(fields.Domain).To(Equal("acme.example"))
			Expect(fields.PeriodStart.Format("2006-01-02")).To(Equal("2024-06-01"))
			Expect(fields.PeriodEnd.Format("2006-01-02")).To(Equal("2024-06-30"))
		})

		It("should take numbers as exact amounts rounded to cents", func() {
			Expect(fields.Subtotal.Decimal.StringFixed(2)).To(Equal("100.00"))
			Expect(fields.VAT.Decimal.StringFixed(2)).To(Equal("21.00"))
			Expect(fields.Total.Decimal.String()).To(Equal("121"))
		})
	})

	When("amounts come back as strings", func() {
		BeforeEach(func() {
			reply = `{"invoice_number": "INV-1", "subtotal_eur": "1.234,56", "total_eur": "€ 1.493,82"}`
		})

		It("should read them with the document locale", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(fields.Subtotal.Decimal.StringFixed(2)).To(Equal("1234.56"))
			Expect(fields.Total.Decimal.StringFixed(2)).To(Equal("1493.82"))
		})
	})

	When("fields are null or blank", func() {
		BeforeEach(func() {
			reply = `{"invoice_number": null, "supplier": "  ", "total_eur": null}`
		})

		It("should leave them absent", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(fields.Has(extraction.FieldInvoiceNumber)).To(BeFalse())
			Expect(fields.Has(extraction.FieldSupplier)).To(BeFalse())
			Expect(fields.Has(extraction.FieldTotal)).To(BeFalse())
		})
	})

	When("a date has a two-digit year", func() {
		BeforeEach(func() {
			reply = `{"invoice_date_end": "30/06/24"}`
		})

		It("should record a coercion failure", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(fields.PeriodEnd).To(BeNil())
			Expect(fields.Failures).To(HaveLen(1))
			Expect(errors.Is(&fields.Failures[0], extraction.ErrTwoDigitYear)).To(BeTrue())
		})
	})

	When("the reply is wrapped in markdown", func() {
		BeforeEach(func() {
			reply = "```json\n{\"invoice_number\": \"INV-9\"}\n```"
		})

		It("should parse the object", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(fields.InvoiceNumber).To(Equal("INV-9"))
		})
	})

	When("the reply has text around the object", func() {
		BeforeEach(func() {
			reply = "Here you go: {\"invoice_number\": \"INV-9\"} Hope this helps."
		})

		It("should parse the object", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(fields.InvoiceNumber).To(Equal("INV-9"))
		})
	})

	When("a value has the wrong type", func() {
		BeforeEach(func() {
			reply = `{"invoice_number": 12345}`
		})

		It("should fail schema validation", func() {
			Expect(err).To(MatchError(ContainSubstring("reply does not match schema")))
		})
	})

	When("the reply is not JSON", func() {
		BeforeEach(func() {
			reply = "invalid json"
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("no JSON object found")))
		})
	})

	When("the object is malformed", func() {
		BeforeEach(func() {
			reply = `{"invoice_number": }`
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("unmarshaling json")))
		})
	})
})

var _ = Describe("KeyLines", func() {
	It("should keep only field-bearing lines", func() {
		text := "Google Cloud EMEA Limited\nThank you\nInvoice number: 1\nBill to\nacme.example\nPage 1 of 2\nTotal in EUR €1,00"
		Expect(KeyLines(text)).To(Equal("Google Cloud EMEA Limited\nInvoice number: 1\nBill to\nacme.example\nTotal in EUR €1,00"))
	})

	It("should fall back to the whole text", func() {
		Expect(KeyLines("hello\nworld")).To(Equal("hello\nworld"))
	})

	It("should cap the snippet size on a rune boundary", func() {
		long := ""
		for len(long) < 2*maxSnippet {
			long += "Total €1,00 "
		}
		snippet := KeyLines(long)
		Expect(len(snippet)).To(BeNumerically("<=", maxSnippet))
		Expect(snippet).To(HavePrefix("Total €1,00"))
	})
})
