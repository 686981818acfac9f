package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/SyneHQ/backfill"
)

func TestResolveDate(t *testing.T) {
	testList := []struct {
		name     string
		nominal  string
		params   Params
		expected string
	}{
		{name: "sentinel", nominal: "20241215", params: Params{ParamExecutionDate: "NA"}, expected: "20241215"},
		{name: "explicit", nominal: "20241215", params: Params{ParamExecutionDate: "20240101"}, expected: "20240101"},
		{name: "missing key", nominal: "20241215", params: Params{}, expected: "20241215"},
		{name: "nil params", nominal: "20241215", params: nil, expected: "20241215"},
		{name: "not reformatted", nominal: "20241215", params: Params{ParamExecutionDate: "2024-01-01"}, expected: "2024-01-01"},
		{name: "lowercase sentinel is a value", nominal: "20241215", params: Params{ParamExecutionDate: "na"}, expected: "na"},
		{name: "empty string passes through", nominal: "20241215", params: Params{ParamExecutionDate: ""}, expected: ""},
	}
	for _, data := range testList {
		t.Run(data.name, func(t *testing.T) {
			assert.Equal(t, data.expected, ResolveDate(data.nominal, data.params))
		})
	}
}

func TestResolveDateIdempotent(t *testing.T) {
	params := Params{ParamExecutionDate: "20240101"}
	first := ResolveDate("20241215", params)
	second := ResolveDate("20241215", params)
	assert.Equal(t, first, second)
	assert.Equal(t, Params{ParamExecutionDate: "20240101"}, params)
}

func TestNominalDate(t *testing.T) {
	assert.Equal(t, "20241215", NominalDate(time.Date(2024, 12, 15, 23, 30, 0, 0, time.UTC)))
	// logical dates are rendered in UTC
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, "20241216", NominalDate(time.Date(2024, 12, 15, 22, 0, 0, 0, est)))
}

func TestMergeParams(t *testing.T) {
	def, err := New(config.ClusterDetails{ClusterName: "c", ProjectID: "p", Region: "r"})
	require.NoError(t, err)

	got, err := def.Merge(nil)
	require.NoError(t, err)
	assert.Equal(t, Params{ParamExecutionDate: Sentinel}, got)

	got, err = def.Merge(Params{ParamExecutionDate: "20240101", "note": "manual"})
	require.NoError(t, err)
	assert.Equal(t, Params{ParamExecutionDate: "20240101", "note": "manual"}, got)

	_, err = def.Merge(Params{ParamExecutionDate: 20240101.0})
	assert.ErrorIs(t, err, ErrInvalidParams)
}
