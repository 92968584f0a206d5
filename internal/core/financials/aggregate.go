package financials

import (
	"github.com/shopspring/decimal"

	"github.com/kirillkom/fin-extract/internal/core/domain"
)

// AggregateOptions controls how malformed records are handled.
type AggregateOptions struct {
	// Strict aborts the batch on the first malformed record instead of skipping it.
	Strict bool
}

// lineSum names the sub-items of one statement container that make up a category.
type lineSum struct {
	category string
	items    func(r domain.StructuredFinancials) domain.LineItems
	names    []string
}

var balanceSheetSums = []lineSum{
	{
		category: domain.CategoryCurrentAssets,
		items:    func(r domain.StructuredFinancials) domain.LineItems { return r.Assets.Current },
		names:    []string{"Cash and cash equivalents", "Receivables, net", "Inventories", "Etc."},
	},
	{
		category: domain.CategoryInventories,
		items:    func(r domain.StructuredFinancials) domain.LineItems { return r.Assets.Current },
		names:    []string{"Inventories"},
	},
	{
		category: domain.CategoryNonCurrentAssets,
		items:    func(r domain.StructuredFinancials) domain.LineItems { return r.Assets.NonCurrent },
		names:    []string{"Property and equipment, net", "Goodwill", "Long-term lease assets", "Etc."},
	},
	{
		category: domain.CategoryCurrentLiabilities,
		items:    func(r domain.StructuredFinancials) domain.LineItems { return r.Liabilities.Current },
		names:    []string{"Short-term borrowings", "Accounts payable", "Accrued liabilities", "Etc."},
	},
	{
		category: domain.CategoryNonCurrentLiabilities,
		items:    func(r domain.StructuredFinancials) domain.LineItems { return r.Liabilities.LongTerm },
		names:    []string{"Long-term debt", "Deferred income taxes", "Finance & operating lease obligations", "Etc."},
	},
	{
		category: domain.CategoryCommonStock,
		items:    func(r domain.StructuredFinancials) domain.LineItems { return r.Equity.Common },
		names:    []string{"Common stock", "Capital in excess of par value", "Etc."},
	},
	{
		category: domain.CategoryRetainedEarnings,
		items:    func(r domain.StructuredFinancials) domain.LineItems { return r.Equity.Common },
		names:    []string{"Retained earnings"},
	},
}

func incomeStatementValues(r domain.StructuredFinancials) map[string]float64 {
	return map[string]float64{
		domain.CategoryNetIncome:        r.NetIncome.Float(),
		domain.CategoryCost:             r.Profit.Float(),
		domain.CategoryRevenue:          r.Revenue.Float(),
		domain.CategoryInterestExpenses: r.InterestExpense.Float(),
		domain.CategoryIncomeTaxes:      r.IncomeTaxes.Float(),
		domain.CategoryDepreciation:     r.Depreciation.Float(),
		domain.CategoryAmortization:     r.Amortization.Float(),
	}
}

// SumLineItems adds the named items. Absent items count as zero.
func SumLineItems(items domain.LineItems, names ...string) float64 {
	total := decimal.Zero
	for _, name := range names {
		if v, ok := items[name]; ok {
			total = total.Add(decimal.NewFromFloat(float64(v)))
		}
	}
	f, _ := total.Float64()
	return f
}

// CheckRecord reports the first required container missing from a record.
func CheckRecord(index int, r domain.StructuredFinancials) error {
	missing := ""
	switch {
	case r.Assets == nil:
		missing = "assets"
	case r.Liabilities == nil:
		missing = "liabilities"
	case r.Equity == nil:
		missing = "equity"
	default:
		return nil
	}
	return &domain.MalformedRecordError{Index: index, Name: r.Name, Missing: missing}
}

type companyBucket struct {
	series    *domain.CompanySeries
	yearIndex map[int]int
}

// Aggregate folds records into one CompanySeries per name, in first-seen order.
// A repeated (name, year) overwrites the earlier values at the same index and is
// listed in Duplicates.
func Aggregate(records []domain.StructuredFinancials, opts AggregateOptions) (*domain.AggregationResult, error) {
	result := &domain.AggregationResult{
		Series:     []domain.CompanySeries{},
		Skipped:    []domain.SkippedRecord{},
		Duplicates: []domain.DuplicatePeriod{},
	}
	buckets := make(map[string]*companyBucket)
	order := make([]string, 0)

	for i, r := range records {
		if err := CheckRecord(i, r); err != nil {
			if opts.Strict {
				return nil, err
			}
			result.Skipped = append(result.Skipped, domain.SkippedRecord{Index: i, Name: r.Name, Reason: err.Error()})
			continue
		}

		b, ok := buckets[r.Name]
		if !ok {
			b = &companyBucket{
				series: &domain.CompanySeries{
					Name:            r.Name,
					BalanceSheet:    domain.NewStatement(domain.BalanceSheetCategories()),
					IncomeStatement: domain.NewStatement(domain.IncomeStatementCategories()),
				},
				yearIndex: make(map[int]int),
			}
			buckets[r.Name] = b
			order = append(order, r.Name)
		}

		year := int(r.Year)
		idx, seen := b.yearIndex[year]
		if seen {
			result.Duplicates = append(result.Duplicates, domain.DuplicatePeriod{Index: i, Name: r.Name, Year: year})
		} else {
			idx = len(b.series.BalanceSheet.Years)
			b.yearIndex[year] = idx
			b.series.BalanceSheet.Years = append(b.series.BalanceSheet.Years, year)
			b.series.IncomeStatement.Years = append(b.series.IncomeStatement.Years, year)
		}

		for _, s := range balanceSheetSums {
			setAt(b.series.BalanceSheet.Values, s.category, idx, SumLineItems(s.items(r), s.names...))
		}
		for category, v := range incomeStatementValues(r) {
			setAt(b.series.IncomeStatement.Values, category, idx, v)
		}
	}

	for _, name := range order {
		result.Series = append(result.Series, *buckets[name].series)
	}
	return result, nil
}

func setAt(values map[string][]float64, category string, idx int, v float64) {
	seq := values[category]
	if idx < len(seq) {
		seq[idx] = v
		return
	}
	values[category] = append(seq, v)
}
