package financials

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/kirillkom/fin-extract/internal/core/domain"
)

func zeroItems(names ...string) domain.LineItems {
	items := make(domain.LineItems, len(names))
	for _, n := range names {
		items[n] = 0
	}
	return items
}

func acme2023() domain.StructuredFinancials {
	return domain.StructuredFinancials{
		Name: "Acme",
		Year: 2023,
		Assets: &domain.Assets{
			Current: domain.LineItems{
				"Cash and cash equivalents": 10,
				"Receivables, net":          5,
				"Inventories":               2,
				"Etc.":                      0,
			},
			NonCurrent: zeroItems("Property and equipment, net", "Goodwill", "Long-term lease assets", "Etc."),
		},
		Liabilities: &domain.Liabilities{
			Current:  zeroItems("Short-term borrowings", "Accounts payable", "Accrued liabilities", "Etc."),
			LongTerm: zeroItems("Long-term debt", "Deferred income taxes", "Finance & operating lease obligations", "Etc."),
		},
		Equity: &domain.Equity{
			Common:        zeroItems("Common stock", "Capital in excess of par value", "Retained earnings", "Etc."),
			Comprehensive: zeroItems("Etc."),
		},
		NetIncome:       domain.AmountOf(7),
		Profit:          domain.AmountOf(3),
		Revenue:         domain.AmountOf(20),
		InterestExpense: domain.AmountOf(1),
		IncomeTaxes:     domain.AmountOf(1),
		Depreciation:    domain.AmountOf(1),
		Amortization:    domain.AmountOf(1),
	}
}

func mustAggregate(t *testing.T, batch []domain.StructuredFinancials) *domain.AggregationResult {
	t.Helper()
	res, err := Aggregate(batch, AggregateOptions{})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	return res
}

func assertValues(t *testing.T, category string, got, want []float64) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("%s: expected %v, got %v", category, want, got)
	}
}

func withYear(r domain.StructuredFinancials, year int) domain.StructuredFinancials {
	r.Year = domain.Year(year)
	return r
}

func TestAggregateSingleRecordScenario(t *testing.T) {
	res := mustAggregate(t, []domain.StructuredFinancials{acme2023()})
	if len(res.Series) != 1 {
		t.Fatalf("expected one series, got %d", len(res.Series))
	}

	s := res.Series[0]
	if s.Name != "Acme" {
		t.Fatalf("expected Acme, got %s", s.Name)
	}
	if !reflect.DeepEqual(s.BalanceSheet.Years, []int{2023}) || !reflect.DeepEqual(s.IncomeStatement.Years, []int{2023}) {
		t.Fatalf("unexpected years: %v %v", s.BalanceSheet.Years, s.IncomeStatement.Years)
	}
	if !reflect.DeepEqual(s.BalanceSheet.Categories, domain.BalanceSheetCategories()) {
		t.Fatalf("unexpected balance sheet categories: %v", s.BalanceSheet.Categories)
	}
	if !reflect.DeepEqual(s.IncomeStatement.Categories, domain.IncomeStatementCategories()) {
		t.Fatalf("unexpected income statement categories: %v", s.IncomeStatement.Categories)
	}

	wantBalance := map[string][]float64{
		"Current Assets":          {17},
		"Inventories":             {2},
		"Non-Current Assets":      {0},
		"Current Liabilities":     {0},
		"Non-Current Liabilities": {0},
		"Common Stock":            {0},
		"Retained Earnings":       {0},
	}
	if !reflect.DeepEqual(s.BalanceSheet.Values, wantBalance) {
		t.Fatalf("balance sheet: expected %v, got %v", wantBalance, s.BalanceSheet.Values)
	}
	wantIncome := map[string][]float64{
		"Net Income":        {7},
		"Cost":              {3},
		"Revenue":           {20},
		"Interest Expenses": {1},
		"Income Taxes":      {1},
		"Depreciation":      {1},
		"Amortization":      {1},
	}
	if !reflect.DeepEqual(s.IncomeStatement.Values, wantIncome) {
		t.Fatalf("income statement: expected %v, got %v", wantIncome, s.IncomeStatement.Values)
	}
	if len(res.Skipped) != 0 || len(res.Duplicates) != 0 {
		t.Fatalf("expected no skipped or duplicate records, got %v %v", res.Skipped, res.Duplicates)
	}
}

func TestAggregateSumsDocumentedSubFields(t *testing.T) {
	r := acme2023()
	r.Assets.NonCurrent = domain.LineItems{"Property and equipment, net": 100, "Goodwill": 20, "Long-term lease assets": 3, "Etc.": 0.5, "Unlisted": 999}
	r.Liabilities.Current = domain.LineItems{"Short-term borrowings": 1, "Accounts payable": 2, "Accrued liabilities": 3, "Etc.": 4}
	r.Liabilities.LongTerm = domain.LineItems{"Long-term debt": 10, "Deferred income taxes": 20, "Finance & operating lease obligations": 30, "Etc.": 40}
	r.Equity.Common = domain.LineItems{"Common stock": 1, "Capital in excess of par value": 2, "Etc.": 3, "Retained earnings": 50}

	v := mustAggregate(t, []domain.StructuredFinancials{r}).Series[0].BalanceSheet.Values
	assertValues(t, domain.CategoryNonCurrentAssets, v[domain.CategoryNonCurrentAssets], []float64{123.5})
	assertValues(t, domain.CategoryCurrentLiabilities, v[domain.CategoryCurrentLiabilities], []float64{10})
	assertValues(t, domain.CategoryNonCurrentLiabilities, v[domain.CategoryNonCurrentLiabilities], []float64{100})
	assertValues(t, domain.CategoryCommonStock, v[domain.CategoryCommonStock], []float64{6})
	assertValues(t, domain.CategoryRetainedEarnings, v[domain.CategoryRetainedEarnings], []float64{50})
}

func TestAggregateMissingSubFieldsCountAsZero(t *testing.T) {
	r := acme2023()
	r.Assets.Current = domain.LineItems{"Cash and cash equivalents": 4}
	r.Equity.Common = nil
	r.Revenue = nil

	s := mustAggregate(t, []domain.StructuredFinancials{r}).Series[0]
	assertValues(t, domain.CategoryCurrentAssets, s.BalanceSheet.Values[domain.CategoryCurrentAssets], []float64{4})
	assertValues(t, domain.CategoryInventories, s.BalanceSheet.Values[domain.CategoryInventories], []float64{0})
	assertValues(t, domain.CategoryCommonStock, s.BalanceSheet.Values[domain.CategoryCommonStock], []float64{0})
	assertValues(t, domain.CategoryRevenue, s.IncomeStatement.Values[domain.CategoryRevenue], []float64{0})
}

func TestAggregateDecimalSummation(t *testing.T) {
	r := acme2023()
	r.Assets.Current = domain.LineItems{"Cash and cash equivalents": 0.1, "Receivables, net": 0.2}

	res := mustAggregate(t, []domain.StructuredFinancials{r})
	assertValues(t, domain.CategoryCurrentAssets, res.Series[0].BalanceSheet.Values[domain.CategoryCurrentAssets], []float64{0.3})
}

func TestAggregateOneCompanyYearsAreDistinct(t *testing.T) {
	res := mustAggregate(t, []domain.StructuredFinancials{
		withYear(acme2023(), 2021),
		withYear(acme2023(), 2022),
		withYear(acme2023(), 2021),
		withYear(acme2023(), 2023),
	})
	if len(res.Series) != 1 {
		t.Fatalf("expected one series, got %d", len(res.Series))
	}

	s := res.Series[0]
	if !reflect.DeepEqual(s.BalanceSheet.Years, []int{2021, 2022, 2023}) {
		t.Fatalf("unexpected years: %v", s.BalanceSheet.Years)
	}
	if !reflect.DeepEqual(s.BalanceSheet.Years, s.IncomeStatement.Years) {
		t.Fatalf("statements disagree on years: %v %v", s.BalanceSheet.Years, s.IncomeStatement.Years)
	}
	for _, c := range s.BalanceSheet.Categories {
		if len(s.BalanceSheet.Values[c]) != len(s.BalanceSheet.Years) {
			t.Fatalf("%s: %d values for %d years", c, len(s.BalanceSheet.Values[c]), len(s.BalanceSheet.Years))
		}
	}
	for _, c := range s.IncomeStatement.Categories {
		if len(s.IncomeStatement.Values[c]) != len(s.IncomeStatement.Years) {
			t.Fatalf("%s: %d values for %d years", c, len(s.IncomeStatement.Values[c]), len(s.IncomeStatement.Years))
		}
	}
	want := []domain.DuplicatePeriod{{Index: 2, Name: "Acme", Year: 2021}}
	if !reflect.DeepEqual(res.Duplicates, want) {
		t.Fatalf("expected duplicates %v, got %v", want, res.Duplicates)
	}
}

func TestAggregateDuplicateYearKeepsLatest(t *testing.T) {
	first := acme2023()
	second := acme2023()
	second.Revenue = domain.AmountOf(99)
	second.Assets.Current = domain.LineItems{"Cash and cash equivalents": 1}

	res := mustAggregate(t, []domain.StructuredFinancials{first, second})

	s := res.Series[0]
	if !reflect.DeepEqual(s.BalanceSheet.Years, []int{2023}) {
		t.Fatalf("unexpected years: %v", s.BalanceSheet.Years)
	}
	assertValues(t, domain.CategoryRevenue, s.IncomeStatement.Values[domain.CategoryRevenue], []float64{99})
	assertValues(t, domain.CategoryCurrentAssets, s.BalanceSheet.Values[domain.CategoryCurrentAssets], []float64{1})
	if len(res.Duplicates) != 1 {
		t.Fatalf("expected one duplicate, got %v", res.Duplicates)
	}
}

func TestAggregateCompaniesInFirstSeenOrder(t *testing.T) {
	zeta := acme2023()
	zeta.Name = "Zeta"
	beta := acme2023()
	beta.Name = "Beta"

	res := mustAggregate(t, []domain.StructuredFinancials{zeta, beta, withYear(zeta, 2024)})
	if len(res.Series) != 2 {
		t.Fatalf("expected two series, got %d", len(res.Series))
	}
	if res.Series[0].Name != "Zeta" || res.Series[1].Name != "Beta" {
		t.Fatalf("unexpected order: %s, %s", res.Series[0].Name, res.Series[1].Name)
	}
	if !reflect.DeepEqual(res.Series[0].BalanceSheet.Years, []int{2023, 2024}) {
		t.Fatalf("unexpected Zeta years: %v", res.Series[0].BalanceSheet.Years)
	}
}

func TestAggregateSkipsMalformedRecords(t *testing.T) {
	noAssets := acme2023()
	noAssets.Assets = nil
	noEquity := acme2023()
	noEquity.Name = "Other"
	noEquity.Equity = nil

	res := mustAggregate(t, []domain.StructuredFinancials{noAssets, acme2023(), noEquity})
	if len(res.Series) != 1 || res.Series[0].Name != "Acme" {
		t.Fatalf("expected only the Acme series, got %+v", res.Series)
	}
	if len(res.Skipped) != 2 {
		t.Fatalf("expected two skipped records, got %v", res.Skipped)
	}
	if res.Skipped[0].Index != 0 || !strings.Contains(res.Skipped[0].Reason, "assets") {
		t.Fatalf("unexpected first skip: %+v", res.Skipped[0])
	}
	if res.Skipped[1].Index != 2 || res.Skipped[1].Name != "Other" || !strings.Contains(res.Skipped[1].Reason, "equity") {
		t.Fatalf("unexpected second skip: %+v", res.Skipped[1])
	}
}

func TestAggregateStrictAbortsOnMalformedRecord(t *testing.T) {
	bad := acme2023()
	bad.Liabilities = nil

	res, err := Aggregate([]domain.StructuredFinancials{acme2023(), bad}, AggregateOptions{Strict: true})
	if err == nil {
		t.Fatalf("expected strict aggregation to fail")
	}
	if res != nil {
		t.Fatalf("expected no result, got %+v", res)
	}
	if !domain.IsKind(err, domain.ErrMalformedRecord) {
		t.Fatalf("expected malformed record kind, got %v", err)
	}
	var malformed *domain.MalformedRecordError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected *domain.MalformedRecordError, got %T", err)
	}
	if malformed.Index != 1 || malformed.Missing != "liabilities" {
		t.Fatalf("unexpected error detail: %+v", malformed)
	}
}

func TestAggregateEmptyBatch(t *testing.T) {
	res := mustAggregate(t, nil)
	if res.Series == nil || len(res.Series) != 0 {
		t.Fatalf("expected empty non-nil series, got %#v", res.Series)
	}
}
