package duck

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrolytics/pipeline/internal/dataset"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{Logger: testLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return store
}

func writeEnrichedFixture(t *testing.T) string {
	t.Helper()
	month := func(m time.Month) time.Time {
		return time.Date(2025, m, 1, 0, 0, 0, 0, time.UTC)
	}
	ds := dataset.NewDataset([]dataset.Record{
		{
			State: "Uttar Pradesh", District: "Lucknow", Date: month(1),
			Enrolments: 1000, Updates: 300,
			RiskTier: dataset.RiskLow, VolatilityTier: dataset.VolatilityStable,
			Priority: dataset.PriorityLow, GrowthRate: 0,
		},
		{
			State: "Uttar Pradesh", District: "Lucknow", Date: month(2),
			Enrolments: 1600, Updates: 480,
			RiskTier: dataset.RiskHigh, VolatilityTier: dataset.VolatilityHigh,
			Priority: dataset.PriorityHigh, GrowthRate: 60, IsAnomaly: true,
		},
		{
			State: "Uttar Pradesh", District: "Kanpur", Date: month(1),
			Enrolments: 2000, Updates: 600,
			RiskTier: dataset.RiskMedium, VolatilityTier: dataset.VolatilityStable,
			Priority: dataset.PriorityMedium, GrowthRate: 0,
		},
		{
			State: "Maharashtra", District: "Pune", Date: month(1),
			Enrolments: 3000, Updates: 900,
			RiskTier: dataset.RiskLow, VolatilityTier: dataset.VolatilityStable,
			Priority: dataset.PriorityLow, GrowthRate: 0,
		},
	}, []string{
		dataset.ColState, dataset.ColDistrict, dataset.ColDate,
		dataset.ColEnrolments, dataset.ColUpdates, dataset.ColRiskLevel,
		dataset.ColMEGR, dataset.ColIsAnomaly, dataset.ColPriority,
	})

	path := filepath.Join(t.TempDir(), "processed_data.csv")
	require.NoError(t, dataset.WriteCSV(path, ds))
	return path
}

func TestDuck_Store_Validate(t *testing.T) {
	t.Parallel()

	_, err := NewStore(StoreConfig{})
	require.Error(t, err)
}

func TestDuck_Store_Queries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.LoadEnriched(ctx, writeEnrichedFixture(t)))

	t.Run("state summaries", func(t *testing.T) {
		summaries, err := store.StateSummaries(ctx)
		require.NoError(t, err)
		require.Len(t, summaries, 2)

		// Ordered by state.
		mh, up := summaries[0], summaries[1]

		assert.Equal(t, "Maharashtra", mh.State)
		assert.Equal(t, 1, mh.Districts)
		assert.Equal(t, int64(3000), mh.Enrolments)
		assert.Equal(t, 0, mh.Anomalies)

		assert.Equal(t, "Uttar Pradesh", up.State)
		assert.Equal(t, 2, up.Districts)
		assert.Equal(t, int64(4600), up.Enrolments)
		assert.Equal(t, int64(1380), up.Updates)
		assert.Equal(t, 1, up.Anomalies)
		assert.InDelta(t, 20.0, up.AvgGrowth, 1e-6)
	})

	t.Run("risk counts", func(t *testing.T) {
		counts, err := store.RiskCounts(ctx)
		require.NoError(t, err)

		byLevel := make(map[string]int)
		for _, c := range counts {
			byLevel[c.RiskLevel] = c.Count
		}
		assert.Equal(t, 2, byLevel["Low"])
		assert.Equal(t, 1, byLevel["Medium"])
		assert.Equal(t, 1, byLevel["High"])
	})

	t.Run("anomaly timeline", func(t *testing.T) {
		points, err := store.AnomalyTimeline(ctx)
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, 1, points[0].Count)
		assert.Equal(t, 2, int(points[0].Date.Month()))
	})
}

func TestDuck_Store_LoadEnriched_MissingFile(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	err := store.LoadEnriched(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}
