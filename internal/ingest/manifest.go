package ingest

import (
	"sort"
	"strings"

	"github.com/fiscalflow/fiscalflow/internal/canon"
	"github.com/fiscalflow/fiscalflow/internal/domain"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

// manifestDelta accumulates what one batch delivered for one asset-day.
type manifestDelta struct {
	hourly      int
	daily       bool
	calibration bool
}

// manifestDeltas summarizes one file's canonical rows per asset-day.
// Calibrations land on the day their window ends; days the file only
// touched through observations get an empty delta so the manifest still
// names them.
func manifestDeltas(res *canon.Result) map[persistence.AssetDate]manifestDelta {
	deltas := map[persistence.AssetDate]manifestDelta{}
	bump := func(ad persistence.AssetDate, fn func(*manifestDelta)) {
		d := deltas[ad]
		fn(&d)
		deltas[ad] = d
	}

	for _, f := range res.Facts {
		ad := persistence.AssetDate{AssetTag: f.AssetTag, BusinessDate: f.BusinessDate}
		switch f.ReportType {
		case domain.ReportHourly:
			bump(ad, func(d *manifestDelta) { d.hourly++ })
		case domain.ReportDaily:
			bump(ad, func(d *manifestDelta) { d.daily = true })
		}
	}
	for _, c := range res.Calibrations {
		if c.WindowEnd == nil {
			continue
		}
		ad := persistence.AssetDate{AssetTag: c.AssetTag, BusinessDate: domain.DateKey(*c.WindowEnd)}
		bump(ad, func(d *manifestDelta) { d.calibration = true })
	}
	for _, ad := range res.AssetDates() {
		if _, ok := deltas[ad]; !ok {
			deltas[ad] = manifestDelta{}
		}
	}
	return deltas
}

// buildManifests folds the per-file deltas into one manifest row per
// asset-day. The quality flags speak only about hourly and daily report
// delivery; a day that arrived through other report shapes carries none.
func buildManifests(batchID string, results []fileResult) []persistence.Manifest {
	agg := map[persistence.AssetDate]manifestDelta{}
	for _, r := range results {
		for ad, d := range r.deltas {
			cur := agg[ad]
			cur.hourly += d.hourly
			cur.daily = cur.daily || d.daily
			cur.calibration = cur.calibration || d.calibration
			agg[ad] = cur
		}
	}

	manifests := make([]persistence.Manifest, 0, len(agg))
	for ad, d := range agg {
		var flags []string
		if d.hourly > 0 && d.hourly < domain.ExpectedHourlyReports {
			flags = append(flags, "batch_incomplete")
		}
		if d.hourly > 0 && !d.daily {
			flags = append(flags, "missing_daily")
		}
		manifests = append(manifests, persistence.Manifest{
			BatchID:        batchID,
			AssetTag:       ad.AssetTag,
			BusinessDate:   ad.BusinessDate,
			ExpectedHourly: domain.ExpectedHourlyReports,
			FoundHourly:    d.hourly,
			HasDaily:       d.daily,
			HasCalibration: d.calibration,
			QualityFlag:    strings.Join(flags, ","),
		})
	}
	sort.Slice(manifests, func(i, j int) bool {
		if manifests[i].AssetTag != manifests[j].AssetTag {
			return manifests[i].AssetTag < manifests[j].AssetTag
		}
		return manifests[i].BusinessDate < manifests[j].BusinessDate
	})
	return manifests
}
