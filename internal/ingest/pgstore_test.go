package ingest

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRow feeds canned column values into scanJob the way database/sql would.
type stubRow struct {
	values []any
}

func (r *stubRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = r.values[i].(string)
		case *Status:
			*v = r.values[i].(Status)
		case *[]byte:
			if r.values[i] != nil {
				*v = r.values[i].([]byte)
			}
		case *sql.NullString:
			if r.values[i] == nil {
				*v = sql.NullString{}
			} else {
				*v = sql.NullString{String: r.values[i].(string), Valid: true}
			}
		case *int:
			*v = r.values[i].(int)
		case *sql.NullTime:
			if r.values[i] == nil {
				*v = sql.NullTime{}
			} else {
				*v = sql.NullTime{Time: r.values[i].(time.Time), Valid: true}
			}
		case *time.Time:
			*v = r.values[i].(time.Time)
		}
	}
	return nil
}

func jobRow(errorMessage any) *stubRow {
	now := time.Now().UTC()
	return &stubRow{values: []any{
		"job-1", "doc-1", StatusFailed, []byte(`{"step":"failed","percentage":0}`),
		errorMessage, 0, nil, nil, now, now,
	}}
}

func TestScanJobErrorMessage(t *testing.T) {
	// The error_message column is NOT NULL DEFAULT '' and the store always
	// writes a plain string, so an empty message must round-trip as "".
	job, err := scanJob(jobRow(""))
	require.NoError(t, err)
	assert.Equal(t, "", job.ErrorMessage)

	job, err = scanJob(jobRow("document processing failed"))
	require.NoError(t, err)
	assert.Equal(t, "document processing failed", job.ErrorMessage)

	// Rows predating the NOT NULL constraint may still carry NULL.
	job, err = scanJob(jobRow(nil))
	require.NoError(t, err)
	assert.Equal(t, "", job.ErrorMessage)
}

func TestScanJobProgress(t *testing.T) {
	job, err := scanJob(jobRow(""))
	require.NoError(t, err)
	require.NotNil(t, job.Progress)
	assert.Equal(t, "failed", job.Progress.Step)

	row := jobRow("")
	row.values[3] = nil
	job, err = scanJob(row)
	require.NoError(t, err)
	assert.Nil(t, job.Progress)
}
