package table

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Annotate", func() {
	var (
		input     *Table
		threshold float64
		out       *Table
	)

	BeforeEach(func() {
		input = &Table{
			Headers: []string{"Name", "Age"},
			Rows: []Row{
				{
					{Value: "Alice", Confidence: 0.95},
					{Value: "30", Confidence: 0.5},
				},
			},
		}
		threshold = 0.7
	})

	JustBeforeEach(func() {
		out = Annotate(input, threshold)
	})

	It("flags cells below the threshold", func() {
		Expect(out.Rows[0][1].LowConfidence).To(BeTrue())
	})

	It("does not flag cells at or above the threshold", func() {
		Expect(out.Rows[0][0].LowConfidence).To(BeFalse())
	})

	It("never alters cell values", func() {
		Expect(out.Rows[0].Values()).To(Equal([]string{"Alice", "30"}))
	})

	It("does not mutate its input", func() {
		Expect(input.Rows[0][1].LowConfidence).To(BeFalse())
	})

	It("is idempotent for a fixed threshold", func() {
		again := Annotate(out, threshold)
		Expect(again).To(Equal(out))
	})

	When("the threshold moves", func() {
		BeforeEach(func() {
			threshold = 0.99
		})

		It("re-derives flags from confidence alone", func() {
			Expect(out.Rows[0][0].LowConfidence).To(BeTrue())
			Expect(out.Rows[0][1].LowConfidence).To(BeTrue())
		})
	})

	When("a cell sits exactly on the threshold", func() {
		BeforeEach(func() {
			input.Rows[0][1].Confidence = 0.7
		})

		It("is not flagged", func() {
			Expect(out.Rows[0][1].LowConfidence).To(BeFalse())
		})
	})
})
