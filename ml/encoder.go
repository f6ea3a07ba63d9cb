package ml

// FeatureRow is the fixed-length scaled feature vector consumed by the
// model, in canonical column order.
type FeatureRow struct {
	Columns []string
	Values  []float64
}

// Encoder converts raw customer records into model-ready feature rows using
// training-time categorical encodings and the fitted scaler. Stateless apart
// from the immutable scaler; safe for concurrent use.
type Encoder struct {
	scaler *Scaler
}

func NewEncoder(scaler *Scaler) *Encoder {
	return &Encoder{scaler: scaler}
}

// Encode maps a record to its scaled feature row. Deterministic and free of
// side effects: the same record always yields the same vector.
func (e *Encoder) Encode(record CustomerRecord) (FeatureRow, error) {
	raw, err := record.RawVector()
	if err != nil {
		return FeatureRow{}, err
	}
	scaled, err := e.scaler.Transform(raw)
	if err != nil {
		return FeatureRow{}, err
	}
	return FeatureRow{Columns: e.scaler.Columns, Values: scaled}, nil
}

// EncodePayload validates an explicit feature object and encodes it.
func (e *Encoder) EncodePayload(payload map[string]interface{}) (CustomerRecord, FeatureRow, error) {
	record, err := RecordFromPayload(payload)
	if err != nil {
		return CustomerRecord{}, FeatureRow{}, err
	}
	row, err := e.Encode(record)
	if err != nil {
		return record, FeatureRow{}, err
	}
	return record, row, nil
}
