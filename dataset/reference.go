// Package dataset loads the churn reference dataset used for training and
// for row_index prediction requests.
package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"churnserve/ml"
)

const labelColumn = "Churn"

// rowCacheSize bounds the parsed-record cache. Reference lookups repeat the
// same indices heavily (demos, smoke tests), so parsing is cached.
const rowCacheSize = 512

// Reference is a read-only view over the churn CSV. Raw fields are held in
// memory; records are parsed on demand and cached.
type Reference struct {
	path    string
	columns map[string]int
	rows    [][]string
	cache   *lru.Cache[int, ml.CustomerRecord]
}

// Open reads and indexes the reference CSV. The header must carry every
// canonical feature column plus the Churn label.
func Open(path string) (*Reference, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(decodeCharset(raw)))
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%s has no data rows", path)
	}

	columns := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		columns[strings.TrimSpace(name)] = i
	}
	for _, col := range ml.FeatureColumns() {
		if _, ok := columns[col]; !ok {
			return nil, fmt.Errorf("%s is missing column %q", path, col)
		}
	}
	if _, ok := columns[labelColumn]; !ok {
		return nil, fmt.Errorf("%s is missing column %q", path, labelColumn)
	}

	cache, err := lru.New[int, ml.CustomerRecord](rowCacheSize)
	if err != nil {
		return nil, err
	}

	return &Reference{
		path:    path,
		columns: columns,
		rows:    records[1:],
		cache:   cache,
	}, nil
}

// Len returns the number of data rows.
func (r *Reference) Len() int {
	return len(r.rows)
}

// Row parses the record at the given zero-based index.
func (r *Reference) Row(index int) (ml.CustomerRecord, error) {
	if index < 0 || index >= len(r.rows) {
		return ml.CustomerRecord{}, &ml.ValidationError{
			Reason: fmt.Sprintf("row_index %d out of range [0, %d)", index, len(r.rows)),
		}
	}
	if record, ok := r.cache.Get(index); ok {
		return record, nil
	}
	record, err := r.parse(r.rows[index])
	if err != nil {
		return ml.CustomerRecord{}, fmt.Errorf("row %d: %w", index, err)
	}
	r.cache.Add(index, record)
	return record, nil
}

// Label returns the churn label {0,1} at the given index.
func (r *Reference) Label(index int) (int, error) {
	if index < 0 || index >= len(r.rows) {
		return 0, fmt.Errorf("row %d out of range", index)
	}
	return parseLabel(r.rows[index][r.columns[labelColumn]])
}

// Records parses every row with its label, for training ingest.
func (r *Reference) Records() ([]ml.CustomerRecord, []int, error) {
	records := make([]ml.CustomerRecord, 0, len(r.rows))
	labels := make([]int, 0, len(r.rows))
	for i := range r.rows {
		record, err := r.Row(i)
		if err != nil {
			return nil, nil, err
		}
		label, err := r.Label(i)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i, err)
		}
		records = append(records, record)
		labels = append(labels, label)
	}
	return records, labels, nil
}

func (r *Reference) parse(fields []string) (ml.CustomerRecord, error) {
	var record ml.CustomerRecord

	field := func(col string) string {
		return strings.TrimSpace(fields[r.columns[col]])
	}
	record.State = field(ml.ColState)
	record.InternationalPlan = field(ml.ColInternationalPlan)
	record.VoiceMailPlan = field(ml.ColVoiceMailPlan)

	numeric := []struct {
		col string
		dst *float64
	}{
		{ml.ColAccountLength, &record.AccountLength},
		{ml.ColAreaCode, &record.AreaCode},
		{ml.ColNumberVmailMessages, &record.NumberVmailMessages},
		{ml.ColTotalDayMinutes, &record.TotalDayMinutes},
		{ml.ColTotalDayCalls, &record.TotalDayCalls},
		{ml.ColTotalDayCharge, &record.TotalDayCharge},
		{ml.ColTotalEveMinutes, &record.TotalEveMinutes},
		{ml.ColTotalEveCalls, &record.TotalEveCalls},
		{ml.ColTotalEveCharge, &record.TotalEveCharge},
		{ml.ColTotalNightMinutes, &record.TotalNightMinutes},
		{ml.ColTotalNightCalls, &record.TotalNightCalls},
		{ml.ColTotalNightCharge, &record.TotalNightCharge},
		{ml.ColTotalIntlMinutes, &record.TotalIntlMinutes},
		{ml.ColTotalIntlCalls, &record.TotalIntlCalls},
		{ml.ColTotalIntlCharge, &record.TotalIntlCharge},
		{ml.ColCustomerServiceCalls, &record.CustomerServiceCalls},
	}
	for _, f := range numeric {
		value, err := strconv.ParseFloat(field(f.col), 64)
		if err != nil {
			return record, fmt.Errorf("column %s: %w", f.col, err)
		}
		*f.dst = value
	}
	return record, nil
}

func parseLabel(value string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "1":
		return 1, nil
	case "false", "no", "0":
		return 0, nil
	default:
		return 0, fmt.Errorf("unrecognized churn label %q", value)
	}
}

// decodeCharset strips a UTF-8 BOM and transcodes Windows-1252 exports that
// are not valid UTF-8.
func decodeCharset(raw []byte) []byte {
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(raw) {
		return raw
	}
	decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), raw)
	if err != nil {
		return raw
	}
	return decoded
}
