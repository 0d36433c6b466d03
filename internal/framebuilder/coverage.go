package framebuilder

import (
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/raceplay.report/internal/adapter"
)

// checkTimingDataCoverage implements spec.md §4.1 step 7's
// _check_timing_data_coverage: the fraction of stream_timing rows with a
// non-null, non-zero Position. Uses gonum/stat.Mean over a 0/1 indicator,
// which is exactly a coverage ratio once the indicator is built.
func checkTimingDataCoverage(timing []adapter.TimingRow, threshold float64) bool {
	if len(timing) == 0 {
		return false
	}
	indicator := make([]float64, len(timing))
	for i, row := range timing {
		if row.Position > 0 {
			indicator[i] = 1
		}
	}
	coverage := stat.Mean(indicator, nil)
	return coverage >= threshold
}
