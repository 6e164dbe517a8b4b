package dataset

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `test_name,related_code_churn,failures_last_10_runs,last_run_status
test_successful_login,12,0,pass
test_invalid_password,40.5,3,fail
test_add_item_to_cart,5,1,pass
`

func TestRead(t *testing.T) {
	t.Parallel()

	rows, err := Read(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, Row{
		TestName:           "test_invalid_password",
		RelatedCodeChurn:   40.5,
		FailuresLast10Runs: 3,
		LastRunStatus:      StatusFail,
	}, rows[1])
	assert.True(t, rows[1].Failed())
	assert.False(t, rows[0].Failed())
	assert.Equal(t, []float64{40.5, 3}, rows[1].Features())
	assert.Equal(t, []string{"test_successful_login", "test_invalid_password", "test_add_item_to_cart"}, Names(rows))
}

func TestReadColumnsByName(t *testing.T) {
	t.Parallel()

	csv := "last_run_status,owner,test_name,failures_last_10_runs,related_code_churn\n" +
		"fail,qa,test_x,2,7\n"

	rows, err := Read(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "test_x", rows[0].TestName)
	assert.Equal(t, 7.0, rows[0].RelatedCodeChurn)
	assert.Equal(t, 2, rows[0].FailuresLast10Runs)
	assert.Equal(t, StatusFail, rows[0].LastRunStatus)
}

func TestReadEmpty(t *testing.T) {
	t.Parallel()

	rows, err := Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadMissingColumn(t *testing.T) {
	t.Parallel()

	_, err := Read(strings.NewReader("test_name,related_code_churn,last_run_status\nt,1,pass\n"))
	assert.True(t, errors.Is(err, ErrMissingColumn))
}

func TestReadCollectsEveryMalformedRow(t *testing.T) {
	t.Parallel()

	csv := `test_name,related_code_churn,failures_last_10_runs,last_run_status
ok_test,1,0,pass
bad_churn,lots,0,pass
bad_status,1,0,FAIL
negative,1,-2,fail
not_a_number,NaN,1,fail
infinite,+Inf,0,pass
`
	rows, err := Read(strings.NewReader(csv))
	require.Error(t, err)
	assert.Nil(t, rows)
	assert.True(t, errors.Is(err, ErrMalformedRow))

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 5)
	for _, line := range []string{"line 3", "line 4", "line 5", "line 6", "line 7"} {
		assert.Contains(t, err.Error(), line)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		row   Row
		valid bool
	}{
		{name: "valid", row: Row{TestName: "t", LastRunStatus: StatusPass}, valid: true},
		{name: "empty name", row: Row{LastRunStatus: StatusPass}},
		{name: "negative churn", row: Row{TestName: "t", RelatedCodeChurn: -1, LastRunStatus: StatusPass}},
		{name: "NaN churn", row: Row{TestName: "t", RelatedCodeChurn: math.NaN(), LastRunStatus: StatusPass}},
		{name: "infinite churn", row: Row{TestName: "t", RelatedCodeChurn: math.Inf(1), LastRunStatus: StatusPass}},
		{name: "negative infinite churn", row: Row{TestName: "t", RelatedCodeChurn: math.Inf(-1), LastRunStatus: StatusPass}},
		{name: "negative failures", row: Row{TestName: "t", FailuresLast10Runs: -1, LastRunStatus: StatusFail}},
		{name: "bad status", row: Row{TestName: "t", LastRunStatus: "Pass"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.row.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrMalformedRow))
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Parallel()

	rows, err := Read(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "test_results.csv")
	require.NoError(t, Save(path, rows))

	loaded, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, rows, loaded)
}

func TestLoadMissing(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	rows, err := Load(filepath.Join(t.TempDir(), "nope.csv"), logrus.NewEntry(logger))

	assert.True(t, errors.Is(err, ErrSourceUnavailable))
	assert.Empty(t, rows)
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}
