// Package api exposes the engine's operation contract to its UI
// collaborators over a loopback HTTP surface. Local reads and writes are
// synchronous; the matching sync job is handed to the worker after the
// local write has durably completed, so a save never waits on the network.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/wali1264/dokteryaraflain/internal/backup"
	"github.com/wali1264/dokteryaraflain/internal/store"
	"github.com/wali1264/dokteryaraflain/internal/syncer"
	"github.com/wali1264/dokteryaraflain/pkg/logger"
	"github.com/wali1264/dokteryaraflain/pkg/types"
)

// maxImportSize bounds a backup upload.
const maxImportSize = 64 << 20

// Handlers handles HTTP requests for the record engine
type Handlers struct {
	store  *store.Store
	worker *syncer.Worker
	logger *logger.Logger
}

// NewHandlers creates new HTTP handlers
func NewHandlers(st *store.Store, worker *syncer.Worker, log *logger.Logger) *Handlers {
	return &Handlers{
		store:  st,
		worker: worker,
		logger: log,
	}
}

// RegisterRoutes registers HTTP routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Patient routes
	router.HandleFunc("/patients", h.ListPatients).Methods("GET")
	router.HandleFunc("/patients", h.SavePatient).Methods("POST")
	router.HandleFunc("/patients/{patientID}", h.DeletePatient).Methods("DELETE")
	router.HandleFunc("/patients/{patientID}/prescriptions", h.PatientPrescriptions).Methods("GET")

	// Drug routes (local formulary, never mirrored)
	router.HandleFunc("/drugs", h.ListDrugs).Methods("GET")
	router.HandleFunc("/drugs", h.SaveDrug).Methods("POST")
	router.HandleFunc("/drugs/{drugID}", h.DeleteDrug).Methods("DELETE")

	// Template routes
	router.HandleFunc("/templates", h.ListTemplates).Methods("GET")
	router.HandleFunc("/templates", h.SaveTemplate).Methods("POST")
	router.HandleFunc("/templates/{templateID}", h.DeleteTemplate).Methods("DELETE")

	// Prescription routes
	router.HandleFunc("/prescriptions", h.ListPrescriptions).Methods("GET")
	router.HandleFunc("/prescriptions", h.CreatePrescription).Methods("POST")

	// Profile routes
	router.HandleFunc("/profile", h.GetProfile).Methods("GET")
	router.HandleFunc("/profile", h.SaveProfile).Methods("PUT")

	// Backup routes
	router.HandleFunc("/backup/export", h.ExportBackup).Methods("GET")
	router.HandleFunc("/backup/import", h.ImportBackup).Methods("POST")

	// Sync routes
	router.HandleFunc("/sync/full", h.TriggerFullSync).Methods("POST")
	router.HandleFunc("/sync/status", h.SyncStatus).Methods("GET")

	// Health check
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}

// ListPatients returns every patient; callers order by their own criterion.
func (h *Handlers) ListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.store.Patients()
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, patients)
}

// SavePatient inserts or replaces a patient, then queues its mirror upload.
func (h *Handlers) SavePatient(w http.ResponseWriter, r *http.Request) {
	var patient types.Patient
	if err := json.NewDecoder(r.Body).Decode(&patient); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}

	if patient.FullName == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Patient full name is required")
		return
	}
	if patient.Age < 0 {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Patient age cannot be negative")
		return
	}
	if patient.Gender != "male" && patient.Gender != "female" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Patient gender must be male or female")
		return
	}

	now := time.Now().UnixMilli()
	if patient.ID == "" {
		patient.ID = uuid.New().String()
		patient.CreatedAt = now
	}
	patient.UpdatedAt = now

	if _, err := h.store.SavePatient(&patient); err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.worker.UploadPatient(&patient)
	h.writeJSON(w, http.StatusOK, patient)
}

// DeletePatient removes a patient locally and queues the remote delete.
// Historical prescriptions are kept; their patient reference is soft.
func (h *Handlers) DeletePatient(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["patientID"]

	if err := h.store.DeletePatient(patientID); err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.worker.DeletePatient(patientID)
	h.writeJSON(w, http.StatusOK, map[string]string{"deleted": patientID})
}

// PatientPrescriptions lists one patient's visit history.
func (h *Handlers) PatientPrescriptions(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["patientID"]

	prescriptions, err := h.store.PrescriptionsByPatient(patientID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, prescriptions)
}

// ListDrugs returns the local formulary.
func (h *Handlers) ListDrugs(w http.ResponseWriter, r *http.Request) {
	drugs, err := h.store.Drugs()
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, drugs)
}

// SaveDrug inserts or replaces a formulary entry. Drugs stay local-only.
func (h *Handlers) SaveDrug(w http.ResponseWriter, r *http.Request) {
	var drug types.Drug
	if err := json.NewDecoder(r.Body).Decode(&drug); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}

	if drug.Name == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Drug name is required")
		return
	}
	if drug.ID == "" {
		drug.ID = uuid.New().String()
	}

	if _, err := h.store.SaveDrug(&drug); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, drug)
}

// DeleteDrug removes a formulary entry. Prescriptions reference drugs by
// name, so history is unaffected.
func (h *Handlers) DeleteDrug(w http.ResponseWriter, r *http.Request) {
	drugID := mux.Vars(r)["drugID"]

	if err := h.store.DeleteDrug(drugID); err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"deleted": drugID})
}

// ListTemplates returns every prescription template.
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.store.Templates()
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, templates)
}

// SaveTemplate inserts or replaces a template, then queues a full mirror:
// template edits are low frequency and re-mirroring everything is the
// simple way to guarantee convergence.
func (h *Handlers) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	var template types.PrescriptionTemplate
	if err := json.NewDecoder(r.Body).Decode(&template); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}

	if template.Title == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Template title is required")
		return
	}
	if template.ID == "" {
		template.ID = uuid.New().String()
	}
	for i := range template.Items {
		if template.Items[i].ID == "" {
			template.Items[i].ID = uuid.New().String()
		}
	}

	if _, err := h.store.SaveTemplate(&template); err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.worker.FullSync()
	h.writeJSON(w, http.StatusOK, template)
}

// DeleteTemplate removes a template and queues a full mirror.
func (h *Handlers) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := mux.Vars(r)["templateID"]

	if err := h.store.DeleteTemplate(templateID); err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.worker.FullSync()
	h.writeJSON(w, http.StatusOK, map[string]string{"deleted": templateID})
}

// ListPrescriptions returns every issued prescription.
func (h *Handlers) ListPrescriptions(w http.ResponseWriter, r *http.Request) {
	prescriptions, err := h.store.Prescriptions()
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, prescriptions)
}

// CreatePrescription records an issued visit. Item identities are always
// minted fresh here: a prescription copied from a template must never share
// item ids with it. The prescription is immutable once created.
func (h *Handlers) CreatePrescription(w http.ResponseWriter, r *http.Request) {
	var rx types.Prescription
	if err := json.NewDecoder(r.Body).Decode(&rx); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}

	if rx.PatientID == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Patient ID is required")
		return
	}

	// The patient must exist at creation time; the reference is not
	// re-validated afterward.
	patientRaw, err := h.store.Get(types.KindPatients, rx.PatientID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if patientRaw == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "Patient does not exist")
		return
	}

	if rx.PatientName == "" {
		var patient types.Patient
		if err := json.Unmarshal(patientRaw, &patient); err == nil {
			rx.PatientName = patient.FullName
		}
	}

	rx.ID = uuid.New().String()
	if rx.Date == 0 {
		rx.Date = time.Now().UnixMilli()
	}
	for i := range rx.Items {
		rx.Items[i].ID = uuid.New().String()
	}

	if _, err := h.store.SavePrescription(&rx); err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.worker.UploadPrescription(&rx)
	h.writeJSON(w, http.StatusCreated, rx)
}

// GetProfile returns the doctor profile, 404 before first save.
func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.store.Profile()
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if profile == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "Profile not created yet")
		return
	}
	h.writeJSON(w, http.StatusOK, profile)
}

// SaveProfile writes the singleton profile and queues a full mirror, which
// also re-publishes the letterhead if it changed.
func (h *Handlers) SaveProfile(w http.ResponseWriter, r *http.Request) {
	var profile types.DoctorProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}

	if profile.FullName == "" {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Doctor full name is required")
		return
	}

	if err := h.store.SaveProfile(&profile); err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.worker.FullSync()
	h.writeJSON(w, http.StatusOK, profile)
}

// ExportBackup streams the full-state snapshot.
func (h *Handlers) ExportBackup(w http.ResponseWriter, r *http.Request) {
	data, err := backup.Export(h.store)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		`attachment; filename="dokteryar_backup_`+time.Now().Format("2006-01-02")+`.json"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ImportBackup restores a snapshot. This is the only bulk-destructive
// operation and requires explicit confirmation from the caller.
func (h *Handlers) ImportBackup(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		h.writeError(w, http.StatusBadRequest, "confirmation_required",
			"Importing a backup replaces local data; repeat with confirm=true")
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Cannot read request body")
		return
	}

	if err := backup.Import(h.store, data); err != nil {
		if types.CategoryOf(err) == types.ErrorParse {
			h.writeError(w, http.StatusBadRequest, "parse_error", err.Error())
			return
		}
		h.writeStoreError(w, err)
		return
	}

	// Local state was rebuilt wholesale; re-mirror everything.
	h.worker.FullSync()
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "imported"})
}

// TriggerFullSync queues a manual full mirror.
func (h *Handlers) TriggerFullSync(w http.ResponseWriter, r *http.Request) {
	h.worker.FullSync()
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// SyncStatus reports the advisory sync state. Pending is informational; it
// never blocks or reverses a local save.
func (h *Handlers) SyncStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := h.store.SyncPending()
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	deviceID, err := h.store.DeviceID()
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"device_id": deviceID,
		"pending":   pending,
	})
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// writeStoreError maps engine errors onto the HTTP surface. Storage
// failures are surfaced loudly: the user is actively waiting and a local
// write must never be silently dropped.
func (h *Handlers) writeStoreError(w http.ResponseWriter, err error) {
	h.logger.WithError(err).Error("Store operation failed")
	switch types.CategoryOf(err) {
	case types.ErrorStorageUnavailable:
		h.writeError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
	case types.ErrorNotFound:
		h.writeError(w, http.StatusNotFound, "not_found", err.Error())
	case types.ErrorValidation:
		h.writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
