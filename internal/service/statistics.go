package service

import (
	"cmp"
	"slices"

	"github.com/garnizeh/medequip/internal/taxonomy"
	"github.com/garnizeh/medequip/pkg/models"
)

const secondsPerDay = 86400

// FailureStatistics groups reports by equipment type, then by status and
// severity. types maps equipment ids to their type; reports whose equipment
// is unknown are skipped. A non-empty only keeps a single equipment type.
//
// The average resolution time of a group is the mean, over its resolved
// reports, of (updatedAt - reportedDate) in days. It stays nil for groups
// without resolved reports.
func FailureStatistics(reports []models.FailureReport, types map[string]taxonomy.EquipmentType, only taxonomy.EquipmentType) []models.FailureStatistics {
	type key struct {
		status   models.ReportStatus
		severity models.Severity
	}
	type acc struct {
		count    int
		resolved int
		days     float64
	}

	byType := map[taxonomy.EquipmentType]map[key]*acc{}
	for _, r := range reports {
		typ, ok := types[r.Equipment]
		if !ok || (only != "" && typ != only) {
			continue
		}
		groups := byType[typ]
		if groups == nil {
			groups = map[key]*acc{}
			byType[typ] = groups
		}
		k := key{status: r.Status, severity: r.Severity}
		a := groups[k]
		if a == nil {
			a = &acc{}
			groups[k] = a
		}
		a.count++
		if r.Status == models.ReportResolved {
			a.resolved++
			a.days += r.UpdatedAt.Sub(r.ReportedDate).Seconds() / secondsPerDay
		}
	}

	out := make([]models.FailureStatistics, 0, len(byType))
	for typ, groups := range byType {
		st := models.FailureStatistics{EquipmentType: string(typ), StatusBreakdown: make([]models.StatusBreakdown, 0, len(groups))}
		for k, a := range groups {
			b := models.StatusBreakdown{Status: k.status, Severity: k.severity, Count: a.count}
			if a.resolved > 0 {
				avg := a.days / float64(a.resolved)
				b.AvgResolutionTime = &avg
			}
			st.StatusBreakdown = append(st.StatusBreakdown, b)
			st.TotalReports += a.count
		}
		slices.SortFunc(st.StatusBreakdown, func(a, b models.StatusBreakdown) int {
			return cmp.Or(
				cmp.Compare(slices.Index(models.ReportStatuses, a.Status), slices.Index(models.ReportStatuses, b.Status)),
				cmp.Compare(slices.Index(models.Severities, a.Severity), slices.Index(models.Severities, b.Severity)),
			)
		})
		out = append(out, st)
	}

	slices.SortFunc(out, func(a, b models.FailureStatistics) int {
		return cmp.Or(cmp.Compare(b.TotalReports, a.TotalReports), cmp.Compare(a.EquipmentType, b.EquipmentType))
	})
	return out
}

// MaintenanceStatistics counts ledger entries per equipment type and issue,
// most frequent first. Entries whose equipment is unknown are skipped.
func MaintenanceStatistics(entries []models.MaintenanceRecord, types map[string]taxonomy.EquipmentType) []models.MaintenanceStatistics {
	counts := map[taxonomy.EquipmentType]map[string]int{}
	for _, m := range entries {
		typ, ok := types[m.Equipment]
		if !ok {
			continue
		}
		if counts[typ] == nil {
			counts[typ] = map[string]int{}
		}
		counts[typ][m.Issue]++
	}

	out := make([]models.MaintenanceStatistics, 0, len(counts))
	for typ, issues := range counts {
		st := models.MaintenanceStatistics{EquipmentType: string(typ), Issues: make([]models.IssueCount, 0, len(issues))}
		for issue, n := range issues {
			st.Issues = append(st.Issues, models.IssueCount{Issue: issue, Count: n})
			st.Total += n
		}
		slices.SortFunc(st.Issues, func(a, b models.IssueCount) int {
			return cmp.Or(cmp.Compare(b.Count, a.Count), cmp.Compare(a.Issue, b.Issue))
		})
		out = append(out, st)
	}

	slices.SortFunc(out, func(a, b models.MaintenanceStatistics) int {
		return cmp.Or(cmp.Compare(b.Total, a.Total), cmp.Compare(a.EquipmentType, b.EquipmentType))
	})
	return out
}
