package ml

import (
	"fmt"
	"sort"
	"strings"
)

// CustomerRecord is one customer row from the churn dataset, prior to any
// encoding or scaling. Field set and column order must match what the scaler
// and model were fitted against.
type CustomerRecord struct {
	State                string
	AccountLength        float64
	AreaCode             float64
	InternationalPlan    string
	VoiceMailPlan        string
	NumberVmailMessages  float64
	TotalDayMinutes      float64
	TotalDayCalls        float64
	TotalDayCharge       float64
	TotalEveMinutes      float64
	TotalEveCalls        float64
	TotalEveCharge       float64
	TotalNightMinutes    float64
	TotalNightCalls      float64
	TotalNightCharge     float64
	TotalIntlMinutes     float64
	TotalIntlCalls       float64
	TotalIntlCharge      float64
	CustomerServiceCalls float64
}

const (
	ColState                = "State"
	ColAccountLength        = "Account length"
	ColAreaCode             = "Area code"
	ColInternationalPlan    = "International plan"
	ColVoiceMailPlan        = "Voice mail plan"
	ColNumberVmailMessages  = "Number vmail messages"
	ColTotalDayMinutes      = "Total day minutes"
	ColTotalDayCalls        = "Total day calls"
	ColTotalDayCharge       = "Total day charge"
	ColTotalEveMinutes      = "Total eve minutes"
	ColTotalEveCalls        = "Total eve calls"
	ColTotalEveCharge       = "Total eve charge"
	ColTotalNightMinutes    = "Total night minutes"
	ColTotalNightCalls      = "Total night calls"
	ColTotalNightCharge     = "Total night charge"
	ColTotalIntlMinutes     = "Total intl minutes"
	ColTotalIntlCalls       = "Total intl calls"
	ColTotalIntlCharge      = "Total intl charge"
	ColCustomerServiceCalls = "Customer service calls"
)

// FeatureColumns returns the canonical feature columns in model order.
func FeatureColumns() []string {
	return []string{
		ColState,
		ColAccountLength,
		ColAreaCode,
		ColInternationalPlan,
		ColVoiceMailPlan,
		ColNumberVmailMessages,
		ColTotalDayMinutes,
		ColTotalDayCalls,
		ColTotalDayCharge,
		ColTotalEveMinutes,
		ColTotalEveCalls,
		ColTotalEveCharge,
		ColTotalNightMinutes,
		ColTotalNightCalls,
		ColTotalNightCharge,
		ColTotalIntlMinutes,
		ColTotalIntlCalls,
		ColTotalIntlCharge,
		ColCustomerServiceCalls,
	}
}

// stateCodes maps the 50 US states plus DC to their training-time integer
// codes (alphabetical rank, matching the fitted label encoding).
var stateCodes = buildStateCodes()

func buildStateCodes() map[string]int {
	abbrs := []string{
		"AK", "AL", "AR", "AZ", "CA", "CO", "CT", "DC", "DE", "FL",
		"GA", "HI", "IA", "ID", "IL", "IN", "KS", "KY", "LA", "MA",
		"MD", "ME", "MI", "MN", "MO", "MS", "MT", "NC", "ND", "NE",
		"NH", "NJ", "NM", "NV", "NY", "OH", "OK", "OR", "PA", "RI",
		"SC", "SD", "TN", "TX", "UT", "VA", "VT", "WA", "WI", "WV",
		"WY",
	}
	codes := make(map[string]int, len(abbrs))
	for i, abbr := range abbrs {
		codes[abbr] = i
	}
	return codes
}

// StateCode returns the integer code for a state abbreviation.
func StateCode(state string) (float64, error) {
	code, ok := stateCodes[strings.ToUpper(strings.TrimSpace(state))]
	if !ok {
		return 0, &EncodingError{Column: ColState, Value: state}
	}
	return float64(code), nil
}

// PlanCode maps a yes/no plan flag to {1, 0}.
func PlanCode(column, value string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes":
		return 1, nil
	case "no":
		return 0, nil
	default:
		return 0, &EncodingError{Column: column, Value: value}
	}
}

// RawVector encodes the record's categorical fields and returns the unscaled
// feature values in canonical column order.
func (r CustomerRecord) RawVector() ([]float64, error) {
	state, err := StateCode(r.State)
	if err != nil {
		return nil, err
	}
	intl, err := PlanCode(ColInternationalPlan, r.InternationalPlan)
	if err != nil {
		return nil, err
	}
	vmail, err := PlanCode(ColVoiceMailPlan, r.VoiceMailPlan)
	if err != nil {
		return nil, err
	}
	return []float64{
		state,
		r.AccountLength,
		r.AreaCode,
		intl,
		vmail,
		r.NumberVmailMessages,
		r.TotalDayMinutes,
		r.TotalDayCalls,
		r.TotalDayCharge,
		r.TotalEveMinutes,
		r.TotalEveCalls,
		r.TotalEveCharge,
		r.TotalNightMinutes,
		r.TotalNightCalls,
		r.TotalNightCharge,
		r.TotalIntlMinutes,
		r.TotalIntlCalls,
		r.TotalIntlCharge,
		r.CustomerServiceCalls,
	}, nil
}

// FeatureMap returns the record's raw named values for echoing back to the
// caller.
func (r CustomerRecord) FeatureMap() map[string]interface{} {
	return map[string]interface{}{
		ColState:                r.State,
		ColAccountLength:        r.AccountLength,
		ColAreaCode:             r.AreaCode,
		ColInternationalPlan:    r.InternationalPlan,
		ColVoiceMailPlan:        r.VoiceMailPlan,
		ColNumberVmailMessages:  r.NumberVmailMessages,
		ColTotalDayMinutes:      r.TotalDayMinutes,
		ColTotalDayCalls:        r.TotalDayCalls,
		ColTotalDayCharge:       r.TotalDayCharge,
		ColTotalEveMinutes:      r.TotalEveMinutes,
		ColTotalEveCalls:        r.TotalEveCalls,
		ColTotalEveCharge:       r.TotalEveCharge,
		ColTotalNightMinutes:    r.TotalNightMinutes,
		ColTotalNightCalls:      r.TotalNightCalls,
		ColTotalNightCharge:     r.TotalNightCharge,
		ColTotalIntlMinutes:     r.TotalIntlMinutes,
		ColTotalIntlCalls:       r.TotalIntlCalls,
		ColTotalIntlCharge:      r.TotalIntlCharge,
		ColCustomerServiceCalls: r.CustomerServiceCalls,
	}
}

// RecordFromPayload validates an explicit feature payload against the
// canonical key set and builds a CustomerRecord from it. The key set must
// match exactly; missing and unexpected keys are reported together.
func RecordFromPayload(payload map[string]interface{}) (CustomerRecord, error) {
	var record CustomerRecord

	required := FeatureColumns()
	seen := make(map[string]bool, len(required))
	for _, col := range required {
		seen[col] = false
	}

	var extra []string
	for key := range payload {
		if _, ok := seen[key]; !ok {
			extra = append(extra, key)
			continue
		}
		seen[key] = true
	}
	var missing []string
	for _, col := range required {
		if !seen[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(missing)
		sort.Strings(extra)
		return record, &ValidationError{Missing: missing, Extra: extra}
	}

	str := func(col string) (string, error) {
		v, ok := payload[col].(string)
		if !ok {
			return "", &ValidationError{Reason: fmt.Sprintf("%s must be a string", col)}
		}
		return v, nil
	}
	num := func(col string) (float64, error) {
		switch v := payload[col].(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		default:
			return 0, &ValidationError{Reason: fmt.Sprintf("%s must be a number", col)}
		}
	}

	var err error
	if record.State, err = str(ColState); err != nil {
		return record, err
	}
	if record.InternationalPlan, err = str(ColInternationalPlan); err != nil {
		return record, err
	}
	if record.VoiceMailPlan, err = str(ColVoiceMailPlan); err != nil {
		return record, err
	}

	numeric := []struct {
		col string
		dst *float64
	}{
		{ColAccountLength, &record.AccountLength},
		{ColAreaCode, &record.AreaCode},
		{ColNumberVmailMessages, &record.NumberVmailMessages},
		{ColTotalDayMinutes, &record.TotalDayMinutes},
		{ColTotalDayCalls, &record.TotalDayCalls},
		{ColTotalDayCharge, &record.TotalDayCharge},
		{ColTotalEveMinutes, &record.TotalEveMinutes},
		{ColTotalEveCalls, &record.TotalEveCalls},
		{ColTotalEveCharge, &record.TotalEveCharge},
		{ColTotalNightMinutes, &record.TotalNightMinutes},
		{ColTotalNightCalls, &record.TotalNightCalls},
		{ColTotalNightCharge, &record.TotalNightCharge},
		{ColTotalIntlMinutes, &record.TotalIntlMinutes},
		{ColTotalIntlCalls, &record.TotalIntlCalls},
		{ColTotalIntlCharge, &record.TotalIntlCharge},
		{ColCustomerServiceCalls, &record.CustomerServiceCalls},
	}
	for _, field := range numeric {
		if *field.dst, err = num(field.col); err != nil {
			return record, err
		}
	}

	return record, nil
}
