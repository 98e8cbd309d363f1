package models

import (
	"time"

	"github.com/garnizeh/medequip/internal/taxonomy"
)

// Domain models. JSON names are the wire contract; bson names match them so
// documents look the same in MongoDB.

type EquipmentStatus string

const (
	StatusOperational      EquipmentStatus = "Operational"
	StatusUnderMaintenance EquipmentStatus = "Under maintenance"
	StatusOutOfOrder       EquipmentStatus = "Out of order"
)

var EquipmentStatuses = []EquipmentStatus{StatusOperational, StatusUnderMaintenance, StatusOutOfOrder}

func (s EquipmentStatus) Valid() bool {
	for _, v := range EquipmentStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type Equipment struct {
	ID                  string                 `json:"id" bson:"id"`
	Type                taxonomy.EquipmentType `json:"type" bson:"type"`
	Name                string                 `json:"name" bson:"name"`
	SerialNo            string                 `json:"serialNo" bson:"serialNo"`
	Location            string                 `json:"location" bson:"location"`
	Status              EquipmentStatus        `json:"status" bson:"status"`
	ManualLink          string                 `json:"manualLink,omitempty" bson:"manualLink,omitempty"`
	ImageLink           string                 `json:"imageLink,omitempty" bson:"imageLink,omitempty"`
	InstallationDate    time.Time              `json:"installationDate" bson:"installationDate"`
	Manufacturer        string                 `json:"manufacturer" bson:"manufacturer"`
	ModelType           string                 `json:"modelType" bson:"modelType"`
	OperatingHours      float64                `json:"operatingHours" bson:"operatingHours"`
	LastMaintenanceDate *time.Time             `json:"lastMaintenanceDate,omitempty" bson:"lastMaintenanceDate,omitempty"`
	CreatedAt           time.Time              `json:"createdAt" bson:"createdAt"`
}

// EquipmentSummary is the subset of an equipment record embedded in ledger
// entries and failure reports when they are read back.
type EquipmentSummary struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Type     taxonomy.EquipmentType `json:"type"`
	Location string                 `json:"location"`
	SerialNo string                 `json:"serialNo"`
}

func (e *Equipment) Summary() *EquipmentSummary {
	if e == nil {
		return nil
	}
	return &EquipmentSummary{ID: e.ID, Name: e.Name, Type: e.Type, Location: e.Location, SerialNo: e.SerialNo}
}

// EquipmentPatch carries the fields of a partial equipment update. Nil
// fields are left untouched.
type EquipmentPatch struct {
	SerialNo         *string
	Location         *string
	Status           *EquipmentStatus
	ManualLink       *string
	ImageLink        *string
	InstallationDate *time.Time
	Manufacturer     *string
	ModelType        *string
	OperatingHours   *float64
	// LastMaintenanceDate is an administrative correction of the stamp.
	LastMaintenanceDate *time.Time
}

// Apply copies the set fields of p onto e.
func (p EquipmentPatch) Apply(e *Equipment) {
	if p.SerialNo != nil {
		e.SerialNo = *p.SerialNo
	}
	if p.Location != nil {
		e.Location = *p.Location
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.ManualLink != nil {
		e.ManualLink = *p.ManualLink
	}
	if p.ImageLink != nil {
		e.ImageLink = *p.ImageLink
	}
	if p.InstallationDate != nil {
		e.InstallationDate = *p.InstallationDate
	}
	if p.Manufacturer != nil {
		e.Manufacturer = *p.Manufacturer
	}
	if p.ModelType != nil {
		e.ModelType = *p.ModelType
	}
	if p.OperatingHours != nil {
		e.OperatingHours = *p.OperatingHours
	}
	if p.LastMaintenanceDate != nil {
		t := *p.LastMaintenanceDate
		e.LastMaintenanceDate = &t
	}
}

type MaintenanceRecord struct {
	MaintenanceID    string            `json:"maintenanceId" bson:"maintenanceId"`
	Equipment        string            `json:"equipment" bson:"equipment"`
	EquipmentDetails *EquipmentSummary `json:"equipmentDetails,omitempty" bson:"-"`
	Issue            string            `json:"issue" bson:"issue"`
	Description      string            `json:"description" bson:"description"`
	Resolution       string            `json:"resolution" bson:"resolution"`
	Technician       string            `json:"technician" bson:"technician"`
	MaintenanceDate  time.Time         `json:"maintenanceDate" bson:"maintenanceDate"`
	FailureID        string            `json:"failureId,omitempty" bson:"failureId,omitempty"`
	CreatedAt        time.Time         `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt" bson:"updatedAt"`
}

type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) Valid() bool {
	for _, v := range Severities {
		if s == v {
			return true
		}
	}
	return false
}

type ReportStatus string

const (
	ReportReported           ReportStatus = "Reported"
	ReportInProgress         ReportStatus = "In Progress"
	ReportPendingParts       ReportStatus = "Pending Parts"
	ReportAwaitingTechnician ReportStatus = "Awaiting Technician"
	ReportResolved           ReportStatus = "Resolved"
)

var ReportStatuses = []ReportStatus{ReportReported, ReportInProgress, ReportPendingParts, ReportAwaitingTechnician, ReportResolved}

func (s ReportStatus) Valid() bool {
	for _, v := range ReportStatuses {
		if s == v {
			return true
		}
	}
	return false
}

const (
	DefaultPriority = 3
	MinPriority     = 1
	MaxPriority     = 5
)

type Note struct {
	Note    string    `json:"note" bson:"note"`
	AddedBy string    `json:"addedBy" bson:"addedBy"`
	AddedAt time.Time `json:"addedAt" bson:"addedAt"`
}

type Image struct {
	URL         string    `json:"url" bson:"url"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt" bson:"uploadedAt"`
}

type FailureReport struct {
	FailureID           string            `json:"failureId" bson:"failureId"`
	Equipment           string            `json:"equipment" bson:"equipment"`
	EquipmentDetails    *EquipmentSummary `json:"equipmentDetails,omitempty" bson:"-"`
	Issue               string            `json:"issue" bson:"issue"`
	Description         string            `json:"description" bson:"description"`
	ReportedBy          string            `json:"reportedBy" bson:"reportedBy"`
	ReportedDate        time.Time         `json:"reportedDate" bson:"reportedDate"`
	Severity            Severity          `json:"severity" bson:"severity"`
	Status              ReportStatus      `json:"status" bson:"status"`
	AssignedTechnician  string            `json:"assignedTechnician,omitempty" bson:"assignedTechnician,omitempty"`
	EstimatedRepairTime *time.Time        `json:"estimatedRepairTime,omitempty" bson:"estimatedRepairTime,omitempty"`
	ActualStartTime     *time.Time        `json:"actualStartTime,omitempty" bson:"actualStartTime,omitempty"`
	Notes               []Note            `json:"notes" bson:"notes"`
	Priority            int               `json:"priority" bson:"priority"`
	Images              []Image           `json:"images" bson:"images"`
	ResolvedAt          *time.Time        `json:"resolvedAt,omitempty" bson:"resolvedAt,omitempty"`
	CreatedAt           time.Time         `json:"createdAt" bson:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt" bson:"updatedAt"`
}

type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type ChatSession struct {
	SessionID    string        `json:"sessionId"`
	EquipmentID  string        `json:"equipmentId,omitempty"`
	Equipment    *Equipment    `json:"equipment,omitempty"`
	Messages     []ChatMessage `json:"messages"`
	LastActivity time.Time     `json:"lastActivity"`
	CreatedAt    time.Time     `json:"createdAt"`
}
