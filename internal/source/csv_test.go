package source

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-index/internal/extraction"
)

const googleCSV = "\ufeffInvoice number,5011671234\n" +
	"Invoice date,30 Jun 2024\n" +
	"Billing ID,0123-4567-8901\n" +
	"Invoice amount,\"€121,00\"\n" +
	",,,\n" +
	"Domain name,Description,Usage,Amount\n" +
	",Discount,,0\n" +
	"acme-cloud.example,Google Workspace Business Starter,5,\"€100,00\"\n" +
	"other.example,Google Workspace Business Starter,1,\"€20,00\"\n"

var _ = Describe("CSVText", func() {
	var (
		text string
		err  error
	)

	BeforeEach(func() {
		text, err = CSVText([]byte(googleCSV))
	})

	It("should flatten the export into label lines", func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("Invoice number: 5011671234\n" +
			"Invoice date: 30 Jun 2024\n" +
			"Billing ID: 0123-4567-8901\n" +
			"Invoice amount: €121,00\n" +
			"Domain name: acme-cloud.example"))
	})

	It("should be readable by the default rules", func() {
		rec := extraction.NewDefaultEngine().Process(context.Background(), extraction.RawDocument{Source: "inv.csv", Text: text})
		Expect(rec.InvoiceNumber).To(Equal("5011671234"))
		Expect(rec.BillingID).To(Equal("0123-4567-8901"))
		Expect(rec.Domain).To(Equal("acme-cloud.example"))
		Expect(rec.Total.Decimal.StringFixed(2)).To(Equal("121.00"))
	})

	When("the table follows the meta rows without a separator row", func() {
		BeforeEach(func() {
			text, err = CSVText([]byte("Invoice number,1\nDomain name,Description,Amount\nsite.example,Hosting,5\n"))
		})

		It("should detect the header by its width", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Invoice number: 1\nDomain name: site.example"))
		})
	})

	When("a quote is never closed", func() {
		BeforeEach(func() {
			text, err = CSVText([]byte("a,b\n\"unterminated"))
		})

		It("should read it leniently", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(HavePrefix("a: b"))
		})
	})
})
