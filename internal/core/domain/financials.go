package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Amount is a monetary figure as reported by the model. It accepts JSON numbers
// and numeric strings such as "1,234.5" or "(56)". Anything else decodes as zero;
// StructuredFinancials drops such fields entirely.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	if v, ok := parseAmount(data); ok {
		*a = Amount(v)
	}
	return nil
}

// Float returns the amount or 0 when absent.
func (a *Amount) Float() float64 {
	if a == nil {
		return 0
	}
	return float64(*a)
}

func AmountOf(v float64) *Amount {
	a := Amount(v)
	return &a
}

// LineItems maps a named statement line (e.g. "Cash and cash equivalents") to its amount.
// Items without a numeric value are omitted on decode, and a container that is
// not an object decodes as empty.
type LineItems map[string]Amount

func (l *LineItems) UnmarshalJSON(data []byte) error {
	*l = nil
	if !isObject(data) {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	out := make(LineItems, len(raw))
	for name, value := range raw {
		if v, ok := parseAmount(value); ok {
			out[name] = Amount(v)
		}
	}
	if len(out) > 0 {
		*l = out
	}
	return nil
}

// Value returns the named item, zero when absent.
func (l LineItems) Value(name string) float64 {
	return float64(l[name])
}

// MaxYear bounds the accepted fiscal year. Values outside [0, MaxYear] decode as absent.
const MaxYear = 9999

// Year accepts a JSON number or a numeric string.
type Year int

func (y *Year) UnmarshalJSON(data []byte) error {
	*y = parseYear(data)
	return nil
}

type Assets struct {
	Current    LineItems `json:"current,omitempty"`
	NonCurrent LineItems `json:"nonCurrent,omitempty"`
}

type Liabilities struct {
	Current  LineItems `json:"current,omitempty"`
	LongTerm LineItems `json:"longTerm,omitempty"`
}

type Equity struct {
	Common        LineItems `json:"common,omitempty"`
	Comprehensive LineItems `json:"comprehensive,omitempty"`
}

// StructuredFinancials is the normalized balance-sheet and income-statement record for one
// company period. Every field is optional.
type StructuredFinancials struct {
	Identifier  string       `json:"identifier,omitempty"`
	Name        string       `json:"name,omitempty"`
	Year        Year         `json:"year,omitempty"`
	Assets      *Assets      `json:"assets,omitempty"`
	Liabilities *Liabilities `json:"liabilities,omitempty"`
	Equity      *Equity      `json:"equity,omitempty"`

	Income          *Amount `json:"income,omitempty"`
	Revenue         *Amount `json:"revenue,omitempty"`
	Profit          *Amount `json:"profit,omitempty"`
	OperatingIncome *Amount `json:"operatingIncome,omitempty"`
	NetIncome       *Amount `json:"netIncome,omitempty"`
	InterestExpense *Amount `json:"interestExpense,omitempty"`
	IncomeTaxes     *Amount `json:"incomeTaxes,omitempty"`
	Depreciation    *Amount `json:"depreciation,omitempty"`
	Amortization    *Amount `json:"amortization,omitempty"`
}

// structuredWire mirrors StructuredFinancials with every field left raw so that
// a value of the wrong type is dropped instead of failing the whole record.
type structuredWire struct {
	Identifier  json.RawMessage `json:"identifier"`
	Name        json.RawMessage `json:"name"`
	Year        json.RawMessage `json:"year"`
	Assets      json.RawMessage `json:"assets"`
	Liabilities json.RawMessage `json:"liabilities"`
	Equity      json.RawMessage `json:"equity"`

	Income          json.RawMessage `json:"income"`
	Revenue         json.RawMessage `json:"revenue"`
	Profit          json.RawMessage `json:"profit"`
	OperatingIncome json.RawMessage `json:"operatingIncome"`
	NetIncome       json.RawMessage `json:"netIncome"`
	InterestExpense json.RawMessage `json:"interestExpense"`
	IncomeTaxes     json.RawMessage `json:"incomeTaxes"`
	Depreciation    json.RawMessage `json:"depreciation"`
	Amortization    json.RawMessage `json:"amortization"`
}

// UnmarshalJSON decodes an object without type-checking its fields. Only a
// document that is not an object is rejected.
func (s *StructuredFinancials) UnmarshalJSON(data []byte) error {
	var w structuredWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = StructuredFinancials{
		Identifier:      scalarString(w.Identifier),
		Name:            scalarString(w.Name),
		Year:            parseYear(w.Year),
		Income:          optionalAmount(w.Income),
		Revenue:         optionalAmount(w.Revenue),
		Profit:          optionalAmount(w.Profit),
		OperatingIncome: optionalAmount(w.OperatingIncome),
		NetIncome:       optionalAmount(w.NetIncome),
		InterestExpense: optionalAmount(w.InterestExpense),
		IncomeTaxes:     optionalAmount(w.IncomeTaxes),
		Depreciation:    optionalAmount(w.Depreciation),
		Amortization:    optionalAmount(w.Amortization),
	}
	if isObject(w.Assets) {
		s.Assets = &Assets{}
		_ = json.Unmarshal(w.Assets, s.Assets)
	}
	if isObject(w.Liabilities) {
		s.Liabilities = &Liabilities{}
		_ = json.Unmarshal(w.Liabilities, s.Liabilities)
	}
	if isObject(w.Equity) {
		s.Equity = &Equity{}
		_ = json.Unmarshal(w.Equity, s.Equity)
	}
	return nil
}

// BuildIdentifier concatenates name and year. Distinct pairs may collide
// ("A"+"12" and "A1"+"2"); callers needing uniqueness key on (name, year).
func BuildIdentifier(name string, year Year) string {
	return name + strconv.Itoa(int(year))
}

// Statement is one side of a company series: a year axis and one value
// sequence per category, aligned by index.
type Statement struct {
	Years      []int                `json:"years"`
	Categories []string             `json:"categories"`
	Values     map[string][]float64 `json:"values"`
}

type CompanySeries struct {
	Name            string    `json:"name"`
	BalanceSheet    Statement `json:"balanceSheet"`
	IncomeStatement Statement `json:"incomeStatement"`
}

const (
	CategoryCurrentAssets         = "Current Assets"
	CategoryInventories           = "Inventories"
	CategoryNonCurrentAssets      = "Non-Current Assets"
	CategoryCurrentLiabilities    = "Current Liabilities"
	CategoryNonCurrentLiabilities = "Non-Current Liabilities"
	CategoryCommonStock           = "Common Stock"
	CategoryRetainedEarnings      = "Retained Earnings"

	CategoryNetIncome        = "Net Income"
	CategoryCost             = "Cost"
	CategoryRevenue          = "Revenue"
	CategoryInterestExpenses = "Interest Expenses"
	CategoryIncomeTaxes      = "Income Taxes"
	CategoryDepreciation     = "Depreciation"
	CategoryAmortization     = "Amortization"
)

func BalanceSheetCategories() []string {
	return []string{
		CategoryCurrentAssets,
		CategoryInventories,
		CategoryNonCurrentAssets,
		CategoryCurrentLiabilities,
		CategoryNonCurrentLiabilities,
		CategoryCommonStock,
		CategoryRetainedEarnings,
	}
}

func IncomeStatementCategories() []string {
	return []string{
		CategoryNetIncome,
		CategoryCost,
		CategoryRevenue,
		CategoryInterestExpenses,
		CategoryIncomeTaxes,
		CategoryDepreciation,
		CategoryAmortization,
	}
}

// NewStatement returns an empty statement with one empty sequence per category.
func NewStatement(categories []string) Statement {
	values := make(map[string][]float64, len(categories))
	for _, c := range categories {
		values[c] = []float64{}
	}
	return Statement{
		Years:      []int{},
		Categories: categories,
		Values:     values,
	}
}

// SkippedRecord describes a batch record left out of an aggregation.
type SkippedRecord struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// DuplicatePeriod records a (name, year) pair seen more than once; the later record won.
type DuplicatePeriod struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Year  int    `json:"year"`
}

type AggregationResult struct {
	Series     []CompanySeries   `json:"series"`
	Skipped    []SkippedRecord   `json:"skipped"`
	Duplicates []DuplicatePeriod `json:"duplicates"`
}

func isNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

func isObject(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && data[0] == '{'
}

func optionalAmount(data []byte) *Amount {
	v, ok := parseAmount(data)
	if !ok {
		return nil
	}
	return AmountOf(v)
}

func parseYear(data []byte) Year {
	v, ok := parseAmount(data)
	if !ok || v < 0 || v > MaxYear {
		return 0
	}
	return Year(int(v))
}

// scalarString returns strings as-is and numbers or booleans as their literal text.
func scalarString(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || isNull(data) {
		return ""
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return ""
		}
		return s
	case '{', '[':
		return ""
	default:
		return string(data)
	}
}

func parseAmount(data []byte) (float64, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || isNull(data) {
		return 0, false
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, false
		}
		return parseAmountString(s)
	}
	if data[0] != '-' && (data[0] < '0' || data[0] > '9') {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil || !finite(v) {
		return 0, false
	}
	return v, true
}

func parseAmountString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = strings.NewReplacer(",", "", "$", "", " ", "").Replace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(v) {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
