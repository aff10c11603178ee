package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/leapstack-labs/creditscope/internal/cell"
)

// FieldValue is one named financial field of an observation.
type FieldValue struct {
	Name  string
	Value cell.Value
}

// Observation holds the financial fields reported for one cohort year.
// CohortYear is zero for tables that are not broken out by cohort.
type Observation struct {
	CohortYear int
	Fields     []FieldValue
}

// Get returns the named field.
func (o Observation) Get(name string) (cell.Value, bool) {
	for _, f := range o.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return cell.Value{}, false
}

// Float returns the named field when it holds a number.
func (o Observation) Float(name string) (float64, bool) {
	v, ok := o.Get(name)
	if !ok {
		return 0, false
	}
	return v.Float()
}

// MarshalJSON writes the observation as a flat object in layout column order.
func (o Observation) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	if o.CohortYear != 0 {
		buf.WriteString(`"cohort_year":`)
		buf.WriteString(strconv.Itoa(o.CohortYear))
		first = false
	}
	for _, f := range o.Fields {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a flat object back, keeping key order as field order.
func (o *Observation) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("observation must be an object, got %v", tok)
	}
	*o = Observation{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("observation field %q: %w", name, err)
		}
		if name == "cohort_year" {
			if err := json.Unmarshal(raw, &o.CohortYear); err != nil {
				return fmt.Errorf("observation cohort_year: %w", err)
			}
			continue
		}
		var v cell.Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("observation field %q: %w", name, err)
		}
		o.Fields = append(o.Fields, FieldValue{Name: name, Value: v})
	}
	_, err = dec.Token()
	return err
}

// Record is one program row (or, for reestimate tables, one program header
// with its cohort rows) together with the hierarchy active where it appeared.
type Record struct {
	Table        int                   `json:"table"`
	BudgetYear   int                   `json:"budget_year"`
	Agency       string                `json:"agency"`
	Bureau       string                `json:"bureau"`
	Account      string                `json:"account"`
	Program      string                `json:"program"`
	Attributes   map[string]cell.Value `json:"attributes,omitempty"`
	Observations []Observation         `json:"observations"`
}

// Cohort returns the observation for a cohort year.
func (r Record) Cohort(year int) (Observation, bool) {
	for _, o := range r.Observations {
		if o.CohortYear == year {
			return o, true
		}
	}
	return Observation{}, false
}

func (r Record) key() string {
	return r.Agency + "\x00" + r.Bureau + "\x00" + r.Account + "\x00" + r.Program
}
