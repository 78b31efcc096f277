package sheet

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltHistory", func() {
	var (
		dbPath string
		db     *BoltHistory
	)

	BeforeEach(func() {
		dbPath = filepath.Join(GinkgoT().TempDir(), "test.db")
		var err error
		db, err = NewBoltHistory(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveRecord", func() {
		var (
			record *ExtractionRecord
			err    error
		)

		BeforeEach(func() {
			record = &ExtractionRecord{
				ID:        "rec-1",
				Kind:      KindExtract,
				Filename:  "sheet.png",
				Model:     "llava:latest",
				Columns:   3,
				Rows:      12,
				Duration:  4200,
				CreatedAt: time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC),
			}
		})

		JustBeforeEach(func() {
			err = db.SaveRecord(record)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should make the record visible to ListRecords", func() {
				records, listErr := db.ListRecords()
				Expect(listErr).NotTo(HaveOccurred())
				Expect(records).To(HaveLen(1))
				Expect(records[0].ID).To(Equal("rec-1"))
				Expect(records[0].Kind).To(Equal(KindExtract))
				Expect(records[0].Rows).To(Equal(12))
			})
		})
	})

	Describe("ListRecords", func() {
		var (
			records []*ExtractionRecord
			err     error
		)

		JustBeforeEach(func() {
			records, err = db.ListRecords()
		})

		When("records exist", func() {
			BeforeEach(func() {
				older := &ExtractionRecord{
					ID:        "rec-old",
					Kind:      KindExtract,
					CreatedAt: time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC),
				}
				newer := &ExtractionRecord{
					ID:        "rec-new",
					Kind:      KindSave,
					CreatedAt: time.Date(2024, 3, 20, 11, 0, 0, 0, time.UTC),
				}
				Expect(db.SaveRecord(older)).NotTo(HaveOccurred())
				Expect(db.SaveRecord(newer)).NotTo(HaveOccurred())
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return all records newest first", func() {
				Expect(records).To(HaveLen(2))
				Expect(records[0].ID).To(Equal("rec-new"))
				Expect(records[1].ID).To(Equal("rec-old"))
			})
		})

		When("no records exist", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an empty list", func() {
				Expect(records).To(BeEmpty())
			})
		})
	})

	Describe("Close", func() {
		It("should not return an error", func() {
			Expect(db.Close()).NotTo(HaveOccurred())
		})
	})
})
