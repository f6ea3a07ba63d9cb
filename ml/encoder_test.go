package ml

import (
	"errors"
	"testing"
)

func identityScaler() *Scaler {
	columns := FeatureColumns()
	means := make([]float64, len(columns))
	scales := make([]float64, len(columns))
	for i := range scales {
		scales[i] = 1
	}
	return &Scaler{Columns: columns, Means: means, Scales: scales}
}

func sampleRecord() CustomerRecord {
	return CustomerRecord{
		State:                "KS",
		AccountLength:        128,
		AreaCode:             415,
		InternationalPlan:    "No",
		VoiceMailPlan:        "Yes",
		NumberVmailMessages:  25,
		TotalDayMinutes:      265.1,
		TotalDayCalls:        110,
		TotalDayCharge:       45.07,
		TotalEveMinutes:      197.4,
		TotalEveCalls:        99,
		TotalEveCharge:       16.78,
		TotalNightMinutes:    244.7,
		TotalNightCalls:      91,
		TotalNightCharge:     11.01,
		TotalIntlMinutes:     10,
		TotalIntlCalls:       3,
		TotalIntlCharge:      2.7,
		CustomerServiceCalls: 1,
	}
}

func samplePayload() map[string]interface{} {
	payload := make(map[string]interface{})
	for key, value := range sampleRecord().FeatureMap() {
		payload[key] = value
	}
	return payload
}

func TestEncodeDeterministic(t *testing.T) {
	encoder := NewEncoder(identityScaler())

	first, err := encoder.Encode(sampleRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := encoder.Encode(sampleRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.Values) != len(FeatureColumns()) {
		t.Fatalf("expected %d values, got %d", len(FeatureColumns()), len(first.Values))
	}
	for i := range first.Values {
		if first.Values[i] != second.Values[i] {
			t.Fatalf("encode not deterministic at column %s", first.Columns[i])
		}
	}
}

func TestEncodePayloadMissingAndExtraKeys(t *testing.T) {
	encoder := NewEncoder(identityScaler())

	payload := samplePayload()
	delete(payload, ColTotalDayMinutes)
	payload["Unknown column"] = 1.0

	_, _, err := encoder.EncodePayload(payload)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(validationErr.Missing) != 1 || validationErr.Missing[0] != ColTotalDayMinutes {
		t.Fatalf("expected missing %q, got %v", ColTotalDayMinutes, validationErr.Missing)
	}
	if len(validationErr.Extra) != 1 || validationErr.Extra[0] != "Unknown column" {
		t.Fatalf("expected extra key reported, got %v", validationErr.Extra)
	}
}

func TestEncodeUnknownCategorical(t *testing.T) {
	encoder := NewEncoder(identityScaler())

	record := sampleRecord()
	record.State = "ZZ"
	if _, err := encoder.Encode(record); err == nil {
		t.Fatal("expected error for unknown state")
	} else {
		var encodingErr *EncodingError
		if !errors.As(err, &encodingErr) {
			t.Fatalf("expected EncodingError, got %v", err)
		}
		if encodingErr.Column != ColState {
			t.Fatalf("expected column %s, got %s", ColState, encodingErr.Column)
		}
	}

	record = sampleRecord()
	record.InternationalPlan = "maybe"
	var encodingErr *EncodingError
	if _, err := encoder.Encode(record); !errors.As(err, &encodingErr) {
		t.Fatalf("expected EncodingError for plan flag, got %v", err)
	}
}

func TestEncodeZeroScaleFailsFast(t *testing.T) {
	scaler := identityScaler()
	scaler.Scales[3] = 0
	encoder := NewEncoder(scaler)

	_, err := encoder.Encode(sampleRecord())
	var configErr *ConfigurationError
	if !errors.As(err, &configErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestRecordFromPayloadWrongType(t *testing.T) {
	payload := samplePayload()
	payload[ColAccountLength] = "not a number"

	_, err := RecordFromPayload(payload)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
