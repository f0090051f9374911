package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataset_NormalizeHeader(t *testing.T) {
	t.Parallel()

	t.Run("analytics export dialect", func(t *testing.T) {
		t.Parallel()
		got, err := NormalizeHeader([]string{
			"state", "district", "latest_month", "Risk_Tier",
			"MEGR_latest", "ARS_latest", "EVI_latest",
			"UPI_score_latest", "UPI_flag_latest",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{
			ColState, ColDistrict, ColDate, ColRiskLevel,
			ColMEGR, ColAnomalyScore, ColVolatilityScore,
			ColUnderperfScore, ColUnderperfFlag,
		}, got)
	})

	t.Run("monthly ingest dialect", func(t *testing.T) {
		t.Parallel()
		got, err := NormalizeHeader([]string{"state", "district", "month", "total_enrolments"})
		require.NoError(t, err)
		assert.Equal(t, []string{ColState, ColDistrict, ColDate, ColEnrolments}, got)
	})

	t.Run("already canonical", func(t *testing.T) {
		t.Parallel()
		got, err := NormalizeHeader([]string{"State", "District", "Date", "Enrolments", "Updates"})
		require.NoError(t, err)
		assert.Equal(t, []string{ColState, ColDistrict, ColDate, ColEnrolments, ColUpdates}, got)
	})

	t.Run("case insensitive with whitespace", func(t *testing.T) {
		t.Parallel()
		got, err := NormalizeHeader([]string{" STATE ", "District", "DATE"})
		require.NoError(t, err)
		assert.Equal(t, []string{ColState, ColDistrict, ColDate}, got)
	})

	t.Run("unknown columns pass through", func(t *testing.T) {
		t.Parallel()
		got, err := NormalizeHeader([]string{"state", "district", "date", "Pincode"})
		require.NoError(t, err)
		assert.Equal(t, []string{ColState, ColDistrict, ColDate, "Pincode"}, got)
	})

	t.Run("second alias for a claimed column passes through", func(t *testing.T) {
		t.Parallel()
		// A derived Month column next to Date must not hijack the Date
		// mapping on re-ingestion of enriched output.
		got, err := NormalizeHeader([]string{"State", "District", "Date", "Month_Year", "Year", "Month"})
		require.NoError(t, err)
		assert.Equal(t, []string{ColState, ColDistrict, ColDate, ColMonthYear, "Year", "Month"}, got)
	})

	t.Run("missing identity columns are fatal", func(t *testing.T) {
		t.Parallel()
		_, err := NormalizeHeader([]string{"state", "total_enrolments"})
		require.Error(t, err)
		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, []string{ColDistrict, ColDate}, schemaErr.Missing)
		assert.Contains(t, schemaErr.Found, ColState)
	})
}
