package financials

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"

	"github.com/kirillkom/fin-extract/internal/core/domain"
)

// Strategy tries to turn raw model output into a JSON document. It reports
// false when it cannot produce one.
type Strategy struct {
	Name  string
	Apply func(raw string) ([]byte, bool)
}

var fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)```")

// DefaultStrategies is the recovery order used for every model response.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "raw", Apply: rawStrategy},
		{Name: "fence-strip", Apply: fenceStripStrategy},
		{Name: "brace-span", Apply: braceSpanStrategy},
	}
}

// LenientStrategies repair near-JSON output. They run after the defaults.
func LenientStrategies() []Strategy {
	return []Strategy{
		{Name: "json-repair", Apply: repairStrategy},
		{Name: "hjson", Apply: hjsonStrategy},
	}
}

// Normalizer recovers a StructuredFinancials record from model output.
type Normalizer struct {
	strategies []Strategy
}

func NewNormalizer(lenient bool) *Normalizer {
	strategies := DefaultStrategies()
	if lenient {
		strategies = append(strategies, LenientStrategies()...)
	}
	return &Normalizer{strategies: strategies}
}

// NewNormalizerWithStrategies uses the given strategies in order.
func NewNormalizerWithStrategies(strategies ...Strategy) *Normalizer {
	return &Normalizer{strategies: strategies}
}

// Normalize tries each strategy in order and decodes the first document it gets.
// A JSON array is reduced to its most recent period.
func (n *Normalizer) Normalize(raw string) (domain.StructuredFinancials, error) {
	var lastErr error
	for _, s := range n.strategies {
		doc, ok := s.Apply(raw)
		if !ok {
			continue
		}
		record, err := decodeRecord(doc)
		if err != nil {
			lastErr = err
			continue
		}
		if record.Identifier == "" && record.Name != "" && record.Year != 0 {
			record.Identifier = domain.BuildIdentifier(record.Name, record.Year)
		}
		return record, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no recoverable json in model output")
	}
	return domain.StructuredFinancials{}, &domain.ParseError{Raw: raw, Err: lastErr}
}

// MostRecent returns the record with the strictly greatest year. Ties keep the
// earlier record.
func MostRecent(records []domain.StructuredFinancials) (domain.StructuredFinancials, bool) {
	if len(records) == 0 {
		return domain.StructuredFinancials{}, false
	}
	best := records[0]
	for _, r := range records[1:] {
		if r.Year > best.Year {
			best = r
		}
	}
	return best, true
}

func decodeRecord(doc []byte) (domain.StructuredFinancials, error) {
	doc = bytes.TrimSpace(doc)
	switch {
	case len(doc) > 0 && doc[0] == '{':
		var record domain.StructuredFinancials
		if err := json.Unmarshal(doc, &record); err != nil {
			return domain.StructuredFinancials{}, err
		}
		return record, nil
	case len(doc) > 0 && doc[0] == '[':
		var items []json.RawMessage
		if err := json.Unmarshal(doc, &items); err != nil {
			return domain.StructuredFinancials{}, err
		}
		records := make([]domain.StructuredFinancials, 0, len(items))
		for _, item := range items {
			item = bytes.TrimSpace(item)
			if len(item) == 0 || item[0] != '{' {
				continue
			}
			var record domain.StructuredFinancials
			if err := json.Unmarshal(item, &record); err != nil {
				return domain.StructuredFinancials{}, err
			}
			records = append(records, record)
		}
		best, ok := MostRecent(records)
		if !ok {
			return domain.StructuredFinancials{}, errors.New("json array holds no records")
		}
		return best, nil
	default:
		return domain.StructuredFinancials{}, errors.New("json value is not an object or array")
	}
}

func validDocument(s string) ([]byte, bool) {
	b := []byte(strings.TrimSpace(s))
	if len(b) == 0 || (b[0] != '{' && b[0] != '[') {
		return nil, false
	}
	if !json.Valid(b) {
		return nil, false
	}
	return b, true
}

func rawStrategy(raw string) ([]byte, bool) {
	return validDocument(raw)
}

func fenceStripStrategy(raw string) ([]byte, bool) {
	m := fencePattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, false
	}
	return validDocument(m[1])
}

func braceSpanStrategy(raw string) ([]byte, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return validDocument(raw[start : end+1])
}

func repairStrategy(raw string) ([]byte, bool) {
	repaired, err := jsonrepair.RepairJSON(stripFences(raw))
	if err != nil {
		return nil, false
	}
	return validDocument(repaired)
}

func hjsonStrategy(raw string) ([]byte, bool) {
	var value interface{}
	if err := hjson.Unmarshal([]byte(stripFences(raw)), &value); err != nil {
		return nil, false
	}
	switch value.(type) {
	case map[string]interface{}, []interface{}:
	default:
		return nil, false
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}
	return b, true
}

func stripFences(raw string) string {
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return raw
}
