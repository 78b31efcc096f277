package vision

import (
	"github.com/google/generative-ai-go/genai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("candidateText", func() {
	var (
		resp *genai.GenerateContentResponse
		text string
		err  error
	)

	JustBeforeEach(func() {
		text, err = candidateText(resp)
	})

	When("the candidate carries text parts", func() {
		BeforeEach(func() {
			resp = &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{
					{Content: &genai.Content{Parts: []genai.Part{
						genai.Text("  {\"headers\": []} "),
					}}},
				},
			}
		})

		It("should gather and trim them", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(`{"headers": []}`))
		})
	})

	When("text is split across parts", func() {
		BeforeEach(func() {
			resp = &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{
					{Content: &genai.Content{Parts: []genai.Part{
						genai.Text("{\"data\": "),
						genai.Text("[]}"),
					}}},
				},
			}
		})

		It("should concatenate them in order", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(`{"data": []}`))
		})
	})

	When("there are no candidates", func() {
		BeforeEach(func() {
			resp = &genai.GenerateContentResponse{}
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	When("the candidate was blocked and has nil content", func() {
		BeforeEach(func() {
			resp = &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{
					{FinishReason: genai.FinishReasonSafety},
				},
			}
		})

		It("returns an error instead of panicking", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})
