package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/garnizeh/medequip/internal/config"
	"github.com/garnizeh/medequip/internal/metrics"
	"github.com/garnizeh/medequip/internal/service"
	"github.com/garnizeh/medequip/internal/taxonomy"
)

// Deps are the services and settings the router is built from. Assistant may
// be nil, in which case the /api/ai routes are not mounted.
type Deps struct {
	Config      *config.Config
	Equipment   *service.EquipmentService
	Maintenance *service.MaintenanceService
	Reports     *service.FailureReportService
	Assistant   *service.AssistantService
	Taxonomy    *taxonomy.Taxonomy
	Store       Pinger
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	Version     string
	BuildTime   string
	Now         func() time.Time
}

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Taxonomy == nil {
		d.Taxonomy = taxonomy.Default()
	}

	r := mux.NewRouter()

	// Middleware chain
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(d.Logger))
	r.Use(RecoveryMiddleware)
	r.Use(MetricsMiddleware(d.Metrics))

	systemHandler := NewSystemHandler(d.Store, d.Taxonomy)
	equipmentHandler := NewEquipmentHandler(d.Equipment)
	maintenanceHandler := NewMaintenanceHandler(d.Maintenance, d.Now)
	reportsHandler := NewFailureReportsHandler(d.Reports, d.Equipment, d.Now)

	// Open endpoints
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/version", systemHandler.VersionHandler(d.Version, d.BuildTime)).Methods(http.MethodGet)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)
	}

	apiRouter := r.PathPrefix("/api").Subrouter()
	if d.Config != nil && d.Config.Auth.Enabled {
		apiRouter.Use(JWTAuthMiddleware(d.Config.Auth.JWTSecret))
	}

	apiRouter.HandleFunc("/taxonomy", systemHandler.TaxonomyHandler).Methods(http.MethodGet)

	// Equipment registry
	eq := apiRouter.PathPrefix("/equipment").Subrouter()
	eq.HandleFunc("", equipmentHandler.List).Methods(http.MethodGet)
	eq.HandleFunc("", equipmentHandler.Create).Methods(http.MethodPost)
	eq.HandleFunc("/type/{type}", equipmentHandler.ListByType).Methods(http.MethodGet)
	eq.HandleFunc("/{id}", equipmentHandler.Get).Methods(http.MethodGet)
	eq.HandleFunc("/{id}", equipmentHandler.Update).Methods(http.MethodPut)
	eq.HandleFunc("/{id}", equipmentHandler.Delete).Methods(http.MethodDelete)
	eq.HandleFunc("/{id}/report-issue", equipmentHandler.ReportIssue).Methods(http.MethodPost)
	eq.HandleFunc("/{id}/operating-hours", equipmentHandler.AddOperatingHours).Methods(http.MethodPatch)

	// Maintenance ledger. Fixed segments are registered before /{id}.
	mh := apiRouter.PathPrefix("/maintenance-history").Subrouter()
	mh.HandleFunc("", maintenanceHandler.List).Methods(http.MethodGet)
	mh.HandleFunc("", maintenanceHandler.Create).Methods(http.MethodPost)
	mh.HandleFunc("/statistics", maintenanceHandler.Statistics).Methods(http.MethodGet)
	mh.HandleFunc("/export", maintenanceHandler.Export).Methods(http.MethodGet)
	mh.HandleFunc("/issues/all", maintenanceHandler.AllIssues).Methods(http.MethodGet)
	mh.HandleFunc("/issues/type/{type}", maintenanceHandler.IssuesForType).Methods(http.MethodGet)
	mh.HandleFunc("/issues/equipment/{equipmentId}", maintenanceHandler.IssuesForEquipment).Methods(http.MethodGet)
	mh.HandleFunc("/equipment/{equipmentId}", maintenanceHandler.ListByEquipment).Methods(http.MethodGet)
	mh.HandleFunc("/equipment/{equipmentId}", maintenanceHandler.CreateForEquipment).Methods(http.MethodPost)
	mh.HandleFunc("/{id}", maintenanceHandler.Get).Methods(http.MethodGet)
	mh.HandleFunc("/{id}", maintenanceHandler.Update).Methods(http.MethodPut)
	mh.HandleFunc("/{id}", maintenanceHandler.Delete).Methods(http.MethodDelete)

	// Failure reports
	fr := apiRouter.PathPrefix("/failure-reports").Subrouter()
	fr.HandleFunc("", reportsHandler.List).Methods(http.MethodGet)
	fr.HandleFunc("", reportsHandler.Create).Methods(http.MethodPost)
	fr.HandleFunc("/statistics", reportsHandler.Statistics).Methods(http.MethodGet)
	fr.HandleFunc("/{id}", reportsHandler.Get).Methods(http.MethodGet)
	fr.HandleFunc("/{id}", reportsHandler.Update).Methods(http.MethodPut)
	fr.HandleFunc("/{id}", reportsHandler.Delete).Methods(http.MethodDelete)
	fr.HandleFunc("/{id}/resolve", reportsHandler.Resolve).Methods(http.MethodPost)
	fr.HandleFunc("/{id}/work-order", reportsHandler.WorkOrder).Methods(http.MethodGet)

	if d.Assistant != nil {
		assistantHandler := NewAssistantHandler(d.Assistant)
		ai := apiRouter.PathPrefix("/ai").Subrouter()
		ai.HandleFunc("/query", assistantHandler.Query).Methods(http.MethodPost)
		ai.HandleFunc("/sessions", assistantHandler.OpenSession).Methods(http.MethodPost)
		ai.HandleFunc("/sessions/{id}", assistantHandler.GetSession).Methods(http.MethodGet)
		ai.HandleFunc("/sessions/{id}", assistantHandler.DeleteSession).Methods(http.MethodDelete)
		ai.HandleFunc("/sessions/{id}/messages", assistantHandler.SendMessage).Methods(http.MethodPost)
	}

	origins := []string{"*"}
	if d.Config != nil && len(d.Config.CORS.AllowedOrigins) > 0 {
		origins = d.Config.CORS.AllowedOrigins
	}
	return CORSMiddleware(origins)(r)
}
