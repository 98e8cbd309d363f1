package models

// StatusBreakdown is one (status, severity) group of failure reports for an
// equipment type. AvgResolutionTime is in days and only set when the group
// contains resolved reports.
type StatusBreakdown struct {
	Status            ReportStatus `json:"status"`
	Severity          Severity     `json:"severity"`
	Count             int          `json:"count"`
	AvgResolutionTime *float64     `json:"avgResolutionTime"`
}

type FailureStatistics struct {
	EquipmentType   string            `json:"equipmentType"`
	StatusBreakdown []StatusBreakdown `json:"statusBreakdown"`
	TotalReports    int               `json:"totalReports"`
}

type IssueCount struct {
	Issue string `json:"issue"`
	Count int    `json:"count"`
}

type MaintenanceStatistics struct {
	EquipmentType string       `json:"equipmentType"`
	Issues        []IssueCount `json:"issues"`
	Total         int          `json:"total"`
}
