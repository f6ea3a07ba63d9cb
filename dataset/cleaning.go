package dataset

import (
	"fmt"

	"churnserve/ml"
)

// CleaningRule inspects one labeled record before it enters training.
type CleaningRule interface {
	Apply(record ml.CustomerRecord, label int) error
	Name() string
}

// CleaningStats summarizes a cleaning pass.
type CleaningStats struct {
	TotalProcessed int            `json:"total_processed"`
	Passed         int            `json:"passed"`
	Rejected       int            `json:"rejected"`
	Issues         map[string]int `json:"issues"`
}

// Cleaner drops rows that fail any rule and counts why.
type Cleaner struct {
	rules []CleaningRule
}

// NewCleaner returns a cleaner with the default churn-row rules.
func NewCleaner() *Cleaner {
	return &Cleaner{
		rules: []CleaningRule{
			categoryRule{},
			rangeRule{},
		},
	}
}

func (c *Cleaner) AddRule(rule CleaningRule) {
	c.rules = append(c.rules, rule)
}

// Clean returns the rows that passed every rule, preserving order.
func (c *Cleaner) Clean(records []ml.CustomerRecord, labels []int) ([]ml.CustomerRecord, []int, CleaningStats) {
	stats := CleaningStats{Issues: make(map[string]int)}
	cleanRecords := make([]ml.CustomerRecord, 0, len(records))
	cleanLabels := make([]int, 0, len(records))

	for i, record := range records {
		stats.TotalProcessed++
		ok := true
		for _, rule := range c.rules {
			if err := rule.Apply(record, labels[i]); err != nil {
				stats.Issues[rule.Name()]++
				ok = false
				break
			}
		}
		if !ok {
			stats.Rejected++
			continue
		}
		stats.Passed++
		cleanRecords = append(cleanRecords, record)
		cleanLabels = append(cleanLabels, labels[i])
	}
	return cleanRecords, cleanLabels, stats
}

// categoryRule rejects rows whose categorical fields have no training-time
// encoding.
type categoryRule struct{}

func (categoryRule) Name() string { return "category" }

func (categoryRule) Apply(record ml.CustomerRecord, _ int) error {
	_, err := record.RawVector()
	return err
}

// rangeRule rejects rows with impossible usage values.
type rangeRule struct{}

func (rangeRule) Name() string { return "range" }

func (rangeRule) Apply(record ml.CustomerRecord, label int) error {
	nonNegative := map[string]float64{
		ml.ColAccountLength:        record.AccountLength,
		ml.ColNumberVmailMessages:  record.NumberVmailMessages,
		ml.ColTotalDayMinutes:      record.TotalDayMinutes,
		ml.ColTotalDayCalls:        record.TotalDayCalls,
		ml.ColTotalDayCharge:       record.TotalDayCharge,
		ml.ColTotalEveMinutes:      record.TotalEveMinutes,
		ml.ColTotalEveCalls:        record.TotalEveCalls,
		ml.ColTotalEveCharge:       record.TotalEveCharge,
		ml.ColTotalNightMinutes:    record.TotalNightMinutes,
		ml.ColTotalNightCalls:      record.TotalNightCalls,
		ml.ColTotalNightCharge:     record.TotalNightCharge,
		ml.ColTotalIntlMinutes:     record.TotalIntlMinutes,
		ml.ColTotalIntlCalls:       record.TotalIntlCalls,
		ml.ColTotalIntlCharge:      record.TotalIntlCharge,
		ml.ColCustomerServiceCalls: record.CustomerServiceCalls,
	}
	for col, value := range nonNegative {
		if value < 0 {
			return fmt.Errorf("%s is negative: %v", col, value)
		}
	}
	if label != 0 && label != 1 {
		return fmt.Errorf("label out of range: %d", label)
	}
	return nil
}
