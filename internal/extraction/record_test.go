package extraction

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("InvoiceRecord JSON", func() {
	var (
		rec  InvoiceRecord
		data []byte
		doc  map[string]any
	)

	BeforeEach(func() {
		rec = InvoiceRecord{
			Source:        "invoice.pdf",
			InvoiceNumber: "INV-1",
			VAT:           decimal.NewNullDecimal(decimal.NewFromInt(21)),
			Total:         decimal.NewNullDecimal(decimal.RequireFromString("121.5")),
			Status:        StatusPartial,
			MissingFields: []Field{FieldSubtotal},
		}
	})

	JustBeforeEach(func() {
		var err error
		data, err = json.Marshal(rec)
		Expect(err).NotTo(HaveOccurred())
		doc = nil
		Expect(json.Unmarshal(data, &doc)).To(Succeed())
	})

	It("should write amounts with two fraction digits", func() {
		Expect(doc["vat"]).To(Equal("21.00"))
		Expect(doc["total"]).To(Equal("121.50"))
	})

	It("should write absent amounts as null", func() {
		Expect(doc).To(HaveKeyWithValue("subtotal", BeNil()))
	})

	It("should keep the other fields", func() {
		Expect(doc["source"]).To(Equal("invoice.pdf"))
		Expect(doc["invoice_number"]).To(Equal("INV-1"))
		Expect(doc["status"]).To(Equal("PARTIAL"))
		Expect(doc["missing_fields"]).To(Equal([]any{"subtotal"}))
	})

	It("should decode back to the same amounts", func() {
		var back InvoiceRecord
		Expect(json.Unmarshal(data, &back)).To(Succeed())
		Expect(back.Subtotal.Valid).To(BeFalse())
		Expect(back.VAT.Decimal.Equal(decimal.NewFromInt(21))).To(BeTrue())
		Expect(back.Total.Decimal.Equal(decimal.RequireFromString("121.5"))).To(BeTrue())
		Expect(back.InvoiceNumber).To(Equal("INV-1"))
	})

	When("the record is a pointer inside another document", func() {
		It("should use the same amount format", func() {
			out, err := json.Marshal(map[string]*InvoiceRecord{"record": &rec})
			Expect(err).NotTo(HaveOccurred())
			Expect(string(out)).To(ContainSubstring(`"total":"121.50"`))
		})
	})
})
