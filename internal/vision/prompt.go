package vision

import (
	"fmt"
	"strings"
)

// buildPrompt assembles the extraction prompt for one request. Two variants:
// auto-detect, where the model reads the header row from the image, and
// specified, where the caller's column names are forced. Both demand a bare
// JSON object with parallel "data" and "confidence" structures keyed by
// header name.
func buildPrompt(headers []string, instructions string) string {
	var b strings.Builder

	b.WriteString("Perform optical character recognition on this handwritten spreadsheet image and convert it to tabular data.\n\n")
	b.WriteString("Your task is to:\n")
	b.WriteString("1. Read and extract ALL text content from the image\n")
	b.WriteString("2. Identify the table structure, rows, and columns\n")
	if len(headers) == 0 {
		b.WriteString("3. Detect the header row and use those as column names\n")
	} else {
		b.WriteString("3. Map the extracted data to the specified column names\n")
	}
	b.WriteString("4. Return the data with per-cell confidence scores\n\n")

	if len(headers) > 0 {
		fmt.Fprintf(&b, "Required columns: %s\n", strings.Join(headers, ", "))
	}
	if instructions != "" {
		fmt.Fprintf(&b, "Additional instructions: %s\n", instructions)
	}
	b.WriteString("\n")

	example := headers
	if len(example) == 0 {
		example = []string{"header1", "header2"}
	}
	pair := example[:min(2, len(example))]

	b.WriteString("Return ONLY valid JSON in this format")
	if len(headers) == 0 {
		b.WriteString(" (use the actual headers detected from the image)")
	}
	b.WriteString(":\n")
	fmt.Fprintf(&b, "{\"data\": [\n    {%s}\n], \"confidence\": [\n    {%s}\n]}\n\n",
		exampleDataRow(pair), exampleConfidenceRow(pair))

	b.WriteString("Rules:\n")
	b.WriteString("- Extract text accurately from the handwritten content\n")
	if len(headers) == 0 {
		b.WriteString("- Use the actual column headers found in the image\n")
	} else {
		b.WriteString("- Map values to the specified column names exactly and include every required column\n")
	}
	b.WriteString("- All data values must be strings\n")
	b.WriteString("- Provide confidence scores (0.0-1.0) for each cell based on text clarity and legibility\n")
	b.WriteString("- Higher scores (0.8+) for clear, well-formed text\n")
	b.WriteString("- Lower scores (0.5-0.7) for unclear, smudged, or ambiguous text\n")
	b.WriteString("- Very low scores (0.0-0.4) for illegible or missing text\n")
	b.WriteString("- Return ONLY the JSON object, no explanations, no markdown code blocks")

	return b.String()
}

func exampleDataRow(headers []string) string {
	parts := make([]string, len(headers))
	for i, h := range headers {
		parts[i] = fmt.Sprintf("%q: \"value%d\"", h, i+1)
	}
	return strings.Join(parts, ", ")
}

func exampleConfidenceRow(headers []string) string {
	parts := make([]string, len(headers))
	for i, h := range headers {
		parts[i] = fmt.Sprintf("%q: 0.9%d", h, i+1)
	}
	return strings.Join(parts, ", ")
}

// systemPrompt frames the conversation for chat-style endpoints.
const systemPrompt = "You are an expert at reading handwritten spreadsheets, tables, and ledgers. You carefully read all text in images and transcribe it into structured data without inventing values."
