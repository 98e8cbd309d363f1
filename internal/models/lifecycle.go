// Package models holds the lifecycle rules for failure reports and
// equipment status. The data types themselves live in pkg/models.
package models

import (
	"fmt"

	"github.com/garnizeh/medequip/pkg/models"
)

// updateTransitions lists, for each status, the statuses a report may be
// moved to through an ordinary update. Resolved is absent as a target: it is
// only reached through resolution, and it has no way out.
var updateTransitions = map[models.ReportStatus][]models.ReportStatus{
	models.ReportReported: {
		models.ReportReported, models.ReportInProgress, models.ReportPendingParts, models.ReportAwaitingTechnician,
	},
	models.ReportInProgress: {
		models.ReportReported, models.ReportInProgress, models.ReportPendingParts, models.ReportAwaitingTechnician,
	},
	models.ReportPendingParts: {
		models.ReportReported, models.ReportInProgress, models.ReportPendingParts, models.ReportAwaitingTechnician,
	},
	models.ReportAwaitingTechnician: {
		models.ReportReported, models.ReportInProgress, models.ReportPendingParts, models.ReportAwaitingTechnician,
	},
	models.ReportResolved: {},
}

// CanUpdateStatus reports whether an update may move a report from one
// status to another.
func CanUpdateStatus(from, to models.ReportStatus) bool {
	for _, s := range updateTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanResolve reports whether a report in status s may be resolved.
func CanResolve(s models.ReportStatus) bool {
	return s.Valid() && s != models.ReportResolved
}

// CanDelete reports whether a report in status s may be deleted.
func CanDelete(s models.ReportStatus) bool {
	return s != models.ReportResolved
}

type EquipmentEvent int

const (
	// EventIssueReported covers the simple report-issue path and direct
	// maintenance entries.
	EventIssueReported EquipmentEvent = iota + 1
	// EventFailureReported is raised when a failure report is opened.
	EventFailureReported
	// EventRepaired is raised when a failure report is resolved.
	EventRepaired
)

func (e EquipmentEvent) String() string {
	switch e {
	case EventIssueReported:
		return "issue_reported"
	case EventFailureReported:
		return "failure_reported"
	case EventRepaired:
		return "repaired"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// EquipmentTransition is the effect of an event on an equipment record.
type EquipmentTransition struct {
	Status           models.EquipmentStatus
	StampMaintenance bool
}

// NextEquipmentStatus is the one place that decides how an event changes the
// status of the equipment it concerns.
func NextEquipmentStatus(ev EquipmentEvent, sev models.Severity) (EquipmentTransition, error) {
	switch ev {
	case EventIssueReported:
		return EquipmentTransition{Status: models.StatusUnderMaintenance, StampMaintenance: true}, nil
	case EventFailureReported:
		if sev == models.SeverityCritical {
			return EquipmentTransition{Status: models.StatusOutOfOrder}, nil
		}
		return EquipmentTransition{Status: models.StatusUnderMaintenance}, nil
	case EventRepaired:
		return EquipmentTransition{Status: models.StatusOperational, StampMaintenance: true}, nil
	default:
		return EquipmentTransition{}, fmt.Errorf("unknown equipment event %s", ev)
	}
}
