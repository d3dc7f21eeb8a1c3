package invoice

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-index/internal/batch"
	"github.com/zombor/invoice-index/internal/extraction"
)

var _ = Describe("BoltDB", func() {
	var (
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		dbPath = filepath.Join(GinkgoT().TempDir(), "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("records", func() {
		var rec extraction.InvoiceRecord

		BeforeEach(func() {
			end := time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)
			rec = extraction.InvoiceRecord{
				Source:        "june.pdf",
				InvoiceNumber: "5011671234",
				PeriodEnd:     &end,
				Total:         decimal.NewNullDecimal(decimal.RequireFromString("121.00")),
				Status:        extraction.StatusPartial,
				MissingFields: []extraction.Field{extraction.FieldSupplier},
				Method:        "rules",
			}
			Expect(db.SaveRecord("key-1", &rec)).To(Succeed())
		})

		It("should read back a stored record", func() {
			got, err := db.GetRecord("key-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.InvoiceNumber).To(Equal("5011671234"))
			Expect(got.PeriodEnd.Equal(*rec.PeriodEnd)).To(BeTrue())
			Expect(got.Total.Valid).To(BeTrue())
			Expect(got.Total.Decimal.Equal(decimal.RequireFromString("121"))).To(BeTrue())
			Expect(got.Subtotal.Valid).To(BeFalse())
			Expect(got.MissingFields).To(Equal([]extraction.Field{extraction.FieldSupplier}))
		})

		It("should report unknown keys as not found", func() {
			_, err := db.GetRecord("missing")
			Expect(err).To(MatchError(ErrNotFound))
		})

		It("should persist across reopening", func() {
			Expect(db.Close()).To(Succeed())
			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())

			got, err := db.GetRecord("key-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Source).To(Equal("june.pdf"))
		})
	})

	Describe("runs", func() {
		BeforeEach(func() {
			base := time.Date(2024, time.July, 1, 9, 0, 0, 0, time.UTC)
			hours := map[string]int{"first": 0, "second": 1, "third": 2}
			for id, h := range hours {
				run := &Run{
					ID:         id,
					CreatedAt:  base.Add(time.Duration(h) * time.Hour),
					Method:     "rules",
					RecordKeys: []string{"k" + id, ""},
					Summary:    batch.Summary{Total: 2, Complete: 1, Failed: 1},
				}
				Expect(db.SaveRun(run)).To(Succeed())
			}
		})

		It("should read back a run", func() {
			run, err := db.GetRun("second")
			Expect(err).NotTo(HaveOccurred())
			Expect(run.RecordKeys).To(Equal([]string{"ksecond", ""}))
			Expect(run.Summary.Failed).To(Equal(1))
		})

		It("should list runs newest first", func() {
			runs, err := db.ListRuns()
			Expect(err).NotTo(HaveOccurred())
			ids := make([]string, len(runs))
			for i, r := range runs {
				ids[i] = r.ID
			}
			Expect(ids).To(Equal([]string{"third", "second", "first"}))
		})

		It("should report unknown runs as not found", func() {
			_, err := db.GetRun("nope")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})
})
