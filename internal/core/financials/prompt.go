package financials

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultPromptMaxChars bounds the document text embedded in a prompt.
const DefaultPromptMaxChars = 24000

const truncationMarker = "\n[... document truncated ...]"

// extractionSchema is the exact record shape the model must return. Line item
// names match the sub-fields summed by the aggregator.
const extractionSchema = `{
  "identifier": "string (name immediately followed by year, e.g. \"Acme2023\")",
  "name": "string (company name)",
  "year": "integer (fiscal year of the reported period)",
  "assets": {
    "current": {
      "Cash and cash equivalents": "number",
      "Receivables, net": "number",
      "Inventories": "number",
      "Etc.": "number"
    },
    "nonCurrent": {
      "Property and equipment, net": "number",
      "Goodwill": "number",
      "Long-term lease assets": "number",
      "Etc.": "number"
    }
  },
  "liabilities": {
    "current": {
      "Short-term borrowings": "number",
      "Accounts payable": "number",
      "Accrued liabilities": "number",
      "Etc.": "number"
    },
    "longTerm": {
      "Long-term debt": "number",
      "Deferred income taxes": "number",
      "Finance & operating lease obligations": "number",
      "Etc.": "number"
    }
  },
  "equity": {
    "common": {
      "Common stock": "number",
      "Capital in excess of par value": "number",
      "Retained earnings": "number",
      "Etc.": "number"
    },
    "comprehensive": {
      "Accumulated other comprehensive income (loss)": "number",
      "Etc.": "number"
    }
  },
  "income": "number",
  "revenue": "number",
  "profit": "number",
  "operatingIncome": "number",
  "netIncome": "number",
  "interestExpense": "number",
  "incomeTaxes": "number",
  "depreciation": "number",
  "amortization": "number"
}`

// ExtractionSchema returns the JSON schema text embedded in every prompt.
func ExtractionSchema() string {
	return extractionSchema
}

// BuildExtractionPrompt renders the instruction sent to the model for one
// document. Text beyond maxChars runes is cut and marked; maxChars <= 0 uses
// DefaultPromptMaxChars.
func BuildExtractionPrompt(text, sourceRef string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultPromptMaxChars
	}
	text = truncateRunes(strings.TrimSpace(text), maxChars)

	var b strings.Builder
	b.WriteString("You extract financial statement data from documents.\n\n")
	fmt.Fprintf(&b, "Source document: %s\n\n", sourceRef)
	b.WriteString("Return a single JSON object with exactly this structure:\n")
	b.WriteString(extractionSchema)
	b.WriteString("\n\nRules:\n")
	b.WriteString("1. If the document shows several periods, use only the most recent period.\n")
	b.WriteString("2. If no numeric value is found for a field, omit that field entirely. Do not write 0 or null for it.\n")
	b.WriteString("3. Numbers are plain JSON numbers without currency symbols or thousands separators. Negative values use a minus sign.\n")
	b.WriteString("4. \"identifier\" is the company name immediately followed by the year.\n")
	b.WriteString("5. Output raw JSON only. No prose before or after it, no markdown, no code fences.\n\n")
	b.WriteString("Document text:\n")
	b.WriteString(text)
	return b.String()
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + truncationMarker
		}
		n++
	}
	return s
}
