package workflow

import (
	"errors"
	"fmt"
	"time"
)

const (
	ParamExecutionDate = "execution_date"
	// Sentinel asks the resolver to fall back to the run's nominal date.
	Sentinel = "NA"
	// DateLayout is yyyymmdd.
	DateLayout = "20060102"
)

var ErrInvalidParams = errors.New("invalid run params")

// Params are the values supplied when a run is triggered.
type Params map[string]any

// Get returns the string value of key, or def when it is absent.
func (p Params) Get(key, def string) string {
	v, ok := p[key].(string)
	if !ok {
		return def
	}
	return v
}

// Merge fills declared params missing from p with their defaults and
// rejects values of the wrong type. Formats are not checked.
func (d *Definition) Merge(p Params) (Params, error) {
	out := make(Params, len(d.Params)+len(p))
	for k, v := range p {
		out[k] = v
	}
	for name, decl := range d.Params {
		v, ok := out[name]
		if !ok || v == nil {
			out[name] = decl.Default
			continue
		}
		if decl.Type == "string" {
			if _, isString := v.(string); !isString {
				return nil, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidParams, name, v)
			}
		}
	}
	return out, nil
}

// NominalDate renders a logical date as yyyymmdd.
func NominalDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ResolveDate returns the date the batch job processes: the nominal date
// when execution_date is the sentinel or absent, otherwise execution_date
// exactly as supplied.
func ResolveDate(nominal string, params Params) string {
	executionDate := params.Get(ParamExecutionDate, Sentinel)
	if executionDate == Sentinel {
		return nominal
	}
	return executionDate
}
