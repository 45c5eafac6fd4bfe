// Package syncer mirrors the local store to the shared remote, best effort.
// Local writes always win: nothing here ever blocks, reverses, or fails a
// local save. An unreachable or misbehaving remote only flips the persisted
// pending-sync flag, and the next successful full mirror reconciles all
// drift because it always starts from delete-all-for-this-device.
package syncer

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/wali1264/dokteryaraflain/internal/remote"
	"github.com/wali1264/dokteryaraflain/internal/store"
	"github.com/wali1264/dokteryaraflain/pkg/logger"
	"github.com/wali1264/dokteryaraflain/pkg/types"
)

// AppVersion travels in the doctor row so the remote side can tell
// installations apart.
const AppVersion = "2.0"

// Rows is the remote row store the engine mirrors into.
type Rows interface {
	UpsertDoctor(ctx context.Context, row *remote.DoctorRow) error
	DeleteByDevice(ctx context.Context, table, deviceID string) error
	DeletePatientByLocalID(ctx context.Context, deviceID, localID string) error
	DeletePrescriptionByLocalID(ctx context.Context, deviceID, localID string) error
	InsertPatients(ctx context.Context, rows []remote.PatientRow) error
	InsertPrescriptions(ctx context.Context, rows []remote.PrescriptionRow) error
	InsertTemplates(ctx context.Context, rows []remote.TemplateRow) error
}

// Objects is the remote object store for the letterhead image.
type Objects interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// Prober answers whether the remote is reachable right now. Checking it
// first makes the offline case a fast, silent no-op.
type Prober interface {
	Reachable(ctx context.Context) bool
}

// Engine implements incremental per-entity mirroring and the full recovery
// mirror.
type Engine struct {
	store     *store.Store
	rows      Rows
	objects   Objects
	prober    Prober
	logger    *logger.Logger
	metrics   *Metrics
	batchSize int
}

// NewEngine creates a sync engine.
func NewEngine(st *store.Store, rows Rows, objects Objects, prober Prober, batchSize int, m *Metrics, log *logger.Logger) *Engine {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Engine{
		store:     st,
		rows:      rows,
		objects:   objects,
		prober:    prober,
		logger:    log,
		metrics:   m,
		batchSize: batchSize,
	}
}

// markPending records that local state may be ahead of the mirror. The
// reconnect watcher picks it up later; callers never see an error.
func (e *Engine) markPending(reason string, cause error) {
	if err := e.store.SetSyncPending(true); err != nil {
		e.logger.WithError(err).Error("Cannot persist pending-sync flag")
	}
	entry := e.logger.WithComponent("syncer").WithField("reason", reason)
	if cause != nil {
		entry = entry.WithError(cause)
	}
	entry.Info("Sync deferred, pending flag set")
}

// UploadPatient mirrors one patient row after a local save. Delete-then-
// insert keyed on the local identity keeps retries idempotent: there is
// never more than one remote row per (device, local id).
func (e *Engine) UploadPatient(ctx context.Context, p *types.Patient) {
	e.incremental(ctx, "patient_upload", func(deviceID string) error {
		if err := e.rows.DeletePatientByLocalID(ctx, deviceID, p.ID); err != nil {
			return err
		}
		if err := e.rows.InsertPatients(ctx, []remote.PatientRow{patientRow(deviceID, p)}); err != nil {
			return err
		}
		e.metrics.rowsMirrored.WithLabelValues(remote.TablePatients).Inc()
		return nil
	})
}

// DeletePatient removes one patient's mirror row after a local delete.
func (e *Engine) DeletePatient(ctx context.Context, localID string) {
	e.incremental(ctx, "patient_delete", func(deviceID string) error {
		return e.rows.DeletePatientByLocalID(ctx, deviceID, localID)
	})
}

// UploadPrescription mirrors one prescription row after a local save.
func (e *Engine) UploadPrescription(ctx context.Context, rx *types.Prescription) {
	e.incremental(ctx, "prescription_upload", func(deviceID string) error {
		if err := e.rows.DeletePrescriptionByLocalID(ctx, deviceID, rx.ID); err != nil {
			return err
		}
		if err := e.rows.InsertPrescriptions(ctx, []remote.PrescriptionRow{prescriptionRow(deviceID, rx)}); err != nil {
			return err
		}
		e.metrics.rowsMirrored.WithLabelValues(remote.TablePrescriptions).Inc()
		return nil
	})
}

// DeletePrescription removes one prescription's mirror row.
func (e *Engine) DeletePrescription(ctx context.Context, localID string) {
	e.incremental(ctx, "prescription_delete", func(deviceID string) error {
		return e.rows.DeletePrescriptionByLocalID(ctx, deviceID, localID)
	})
}

// incremental runs one per-entity mirror operation with the shared
// offline/failure discipline.
func (e *Engine) incremental(ctx context.Context, mode string, op func(deviceID string) error) {
	start := time.Now()

	if !e.prober.Reachable(ctx) {
		e.metrics.attempts.WithLabelValues(mode, "offline").Inc()
		e.markPending("network unavailable", nil)
		return
	}

	deviceID, err := e.store.DeviceID()
	if err != nil {
		e.metrics.attempts.WithLabelValues(mode, "error").Inc()
		e.markPending("device identity unavailable", err)
		return
	}

	if err := op(deviceID); err != nil {
		e.metrics.attempts.WithLabelValues(mode, "error").Inc()
		e.markPending(mode+" failed", err)
		return
	}

	e.metrics.attempts.WithLabelValues(mode, "ok").Inc()
	e.metrics.duration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}

// FullSync re-mirrors everything this device owns remotely: doctor profile
// (upsert), then templates, patients and prescriptions via delete-all-then-
// reinsert in batches. It is the convergence backstop for profile and
// template edits, manual retries and reconnection recovery. It never
// returns an error; on any failure the pending flag stays set for the next
// attempt.
func (e *Engine) FullSync(ctx context.Context) {
	start := time.Now()

	if !e.prober.Reachable(ctx) {
		e.metrics.attempts.WithLabelValues("full", "offline").Inc()
		e.markPending("network unavailable", nil)
		return
	}

	if err := e.fullSync(ctx); err != nil {
		e.metrics.attempts.WithLabelValues("full", "error").Inc()
		e.markPending("full mirror failed", err)
		e.logger.SyncEvent("full", 0, false, map[string]interface{}{"error": err.Error()})
		return
	}

	if err := e.store.SetSyncPending(false); err != nil {
		e.logger.WithError(err).Error("Cannot clear pending-sync flag")
		return
	}

	e.metrics.attempts.WithLabelValues("full", "ok").Inc()
	e.metrics.duration.WithLabelValues("full").Observe(time.Since(start).Seconds())
}

func (e *Engine) fullSync(ctx context.Context) error {
	deviceID, err := e.store.DeviceID()
	if err != nil {
		return err
	}

	profile, err := e.store.Profile()
	if err != nil {
		return err
	}
	templates, err := e.store.Templates()
	if err != nil {
		return err
	}
	patients, err := e.store.Patients()
	if err != nil {
		return err
	}
	prescriptions, err := e.store.Prescriptions()
	if err != nil {
		return err
	}

	rows := 0

	// The profile is lazily created; before first save there is simply no
	// doctor row to publish, but the archives still mirror.
	if profile != nil {
		headerURL := e.mirrorLetterhead(ctx, deviceID, profile.LetterheadImage())
		if err := e.rows.UpsertDoctor(ctx, &remote.DoctorRow{
			DeviceID:             deviceID,
			FullName:             profile.FullName,
			Specialty:            profile.Specialty,
			MedicalCouncilNumber: profile.MedicalCouncilNumber,
			PhoneNumber:          profile.PhoneNumber,
			Address:              profile.Address,
			HeaderImageURL:       headerURL,
			AppVersion:           AppVersion,
			LastSyncAt:           time.Now().UTC(),
		}); err != nil {
			return err
		}
		rows++
	}

	if err := e.rows.DeleteByDevice(ctx, remote.TableTemplates, deviceID); err != nil {
		return err
	}
	templateRows := make([]remote.TemplateRow, 0, len(templates))
	for i := range templates {
		templateRows = append(templateRows, templateRow(deviceID, &templates[i]))
	}
	if err := insertChunked(templateRows, e.batchSize, func(chunk []remote.TemplateRow) error {
		return e.rows.InsertTemplates(ctx, chunk)
	}); err != nil {
		return err
	}
	e.metrics.rowsMirrored.WithLabelValues(remote.TableTemplates).Add(float64(len(templateRows)))
	rows += len(templateRows)

	if err := e.rows.DeleteByDevice(ctx, remote.TablePatients, deviceID); err != nil {
		return err
	}
	patientRows := make([]remote.PatientRow, 0, len(patients))
	for i := range patients {
		patientRows = append(patientRows, patientRow(deviceID, &patients[i]))
	}
	if err := insertChunked(patientRows, e.batchSize, func(chunk []remote.PatientRow) error {
		return e.rows.InsertPatients(ctx, chunk)
	}); err != nil {
		return err
	}
	e.metrics.rowsMirrored.WithLabelValues(remote.TablePatients).Add(float64(len(patientRows)))
	rows += len(patientRows)

	if err := e.rows.DeleteByDevice(ctx, remote.TablePrescriptions, deviceID); err != nil {
		return err
	}
	rxRows := make([]remote.PrescriptionRow, 0, len(prescriptions))
	for i := range prescriptions {
		rxRows = append(rxRows, prescriptionRow(deviceID, &prescriptions[i]))
	}
	if err := insertChunked(rxRows, e.batchSize, func(chunk []remote.PrescriptionRow) error {
		return e.rows.InsertPrescriptions(ctx, chunk)
	}); err != nil {
		return err
	}
	e.metrics.rowsMirrored.WithLabelValues(remote.TablePrescriptions).Add(float64(len(rxRows)))
	rows += len(rxRows)

	e.logger.SyncEvent("full", rows, true, nil)
	return nil
}

// insertChunked feeds rows to insert in fixed-size batches, guarding
// against request-size limits and keeping memory bounded for large
// prescription histories.
func insertChunked[T any](rows []T, batchSize int, insert func([]T) error) error {
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := insert(rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// Row builders. Every mirror row gets a fresh remote identity; the local
// identity travels in its own column for future matching.

func patientRow(deviceID string, p *types.Patient) remote.PatientRow {
	weight := ""
	if p.Weight != nil {
		weight = strconv.FormatFloat(*p.Weight, 'f', -1, 64)
	}
	return remote.PatientRow{
		ID:             uuid.New().String(),
		DeviceID:       deviceID,
		PatientIDLocal: p.ID,
		FullName:       p.FullName,
		Age:            p.Age,
		Gender:         p.Gender,
		Weight:         weight,
		MedicalHistory: p.MedicalHistory,
		Allergies:      p.Allergies,
		UpdatedAt:      time.UnixMilli(p.UpdatedAt).UTC(),
	}
}

func prescriptionRow(deviceID string, rx *types.Prescription) remote.PrescriptionRow {
	return remote.PrescriptionRow{
		ID:                  uuid.New().String(),
		DeviceID:            deviceID,
		PrescriptionIDLocal: rx.ID,
		PatientIDLocal:      rx.PatientID,
		PatientName:         rx.PatientName,
		Diagnosis:           rx.Diagnosis,
		DateEpoch:           rx.Date,
		VitalSigns:          rx.VitalSigns,
		Items:               rx.Items,
		SyncedAt:            time.Now().UTC(),
	}
}

func templateRow(deviceID string, t *types.PrescriptionTemplate) remote.TemplateRow {
	return remote.TemplateRow{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		Title:     t.Title,
		Diagnosis: t.Diagnosis,
		Items:     t.Items,
		SyncedAt:  time.Now().UTC(),
	}
}
