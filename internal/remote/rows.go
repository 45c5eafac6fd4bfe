// Package remote talks to the shared mirror: a Postgres row store holding
// per-device shadows of local entities, and an object store for the
// letterhead image. Every row is scoped by device_id so installations never
// collide.
package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wali1264/dokteryaraflain/pkg/logger"
	"github.com/wali1264/dokteryaraflain/pkg/types"
)

// Mirror table names.
const (
	TableDoctors       = "doctors"
	TablePatients      = "patients_archive"
	TablePrescriptions = "prescriptions_archive"
	TableTemplates     = "templates_archive"
)

// DoctorRow is the singleton per-device clinician row, upserted on device_id.
type DoctorRow struct {
	DeviceID             string
	FullName             string
	Specialty            string
	MedicalCouncilNumber string
	PhoneNumber          string
	Address              string
	HeaderImageURL       string
	AppVersion           string
	LastSyncAt           time.Time
}

// PatientRow is one mirrored patient. ID is a fresh row identity; the local
// identity travels in PatientIDLocal for future matching.
type PatientRow struct {
	ID             string
	DeviceID       string
	PatientIDLocal string
	FullName       string
	Age            int
	Gender         string
	Weight         string
	MedicalHistory string
	Allergies      string
	UpdatedAt      time.Time
}

// PrescriptionRow is one mirrored prescription.
type PrescriptionRow struct {
	ID                  string
	DeviceID            string
	PrescriptionIDLocal string
	PatientIDLocal      string
	PatientName         string
	Diagnosis           string
	DateEpoch           int64
	VitalSigns          types.VitalSigns
	Items               []types.PrescriptionItem
	SyncedAt            time.Time
}

// TemplateRow is one mirrored template.
type TemplateRow struct {
	ID        string
	DeviceID  string
	Title     string
	Diagnosis string
	Items     []types.PrescriptionItem
	SyncedAt  time.Time
}

// RowStore is the repository over the mirror tables.
type RowStore struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewRowStore creates a new mirror row repository
func NewRowStore(db *sql.DB, log *logger.Logger) *RowStore {
	return &RowStore{db: db, logger: log}
}

// UpsertDoctor overwrites this device's doctor row. The profile is a
// singleton per device, so upsert semantics are safe and skip the
// delete/insert dance the archive tables need.
func (r *RowStore) UpsertDoctor(ctx context.Context, row *DoctorRow) error {
	query := `
		INSERT INTO doctors (
			device_id, full_name, specialty, medical_council_number,
			phone_number, address, header_image_url, app_version, last_sync_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (device_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			specialty = EXCLUDED.specialty,
			medical_council_number = EXCLUDED.medical_council_number,
			phone_number = EXCLUDED.phone_number,
			address = EXCLUDED.address,
			header_image_url = EXCLUDED.header_image_url,
			app_version = EXCLUDED.app_version,
			last_sync_at = EXCLUDED.last_sync_at`

	_, err := r.db.ExecContext(ctx, query,
		row.DeviceID,
		row.FullName,
		row.Specialty,
		row.MedicalCouncilNumber,
		row.PhoneNumber,
		row.Address,
		row.HeaderImageURL,
		row.AppVersion,
		row.LastSyncAt,
	)
	if err != nil {
		return types.NewRemoteError("remote_upsert_doctor", "doctor upsert refused", err)
	}
	return nil
}

// DeleteByDevice removes every row of table scoped to deviceID.
func (r *RowStore) DeleteByDevice(ctx context.Context, table, deviceID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE device_id = $1", table)
	_, err := r.db.ExecContext(ctx, query, deviceID)
	if err != nil {
		return types.NewRemoteError("remote_delete_device", fmt.Sprintf("delete from %s refused", table), err)
	}
	return nil
}

// DeletePatientByLocalID removes this device's mirror row for one local
// patient. Running it before every insert keeps the upload idempotent.
func (r *RowStore) DeletePatientByLocalID(ctx context.Context, deviceID, localID string) error {
	query := `DELETE FROM patients_archive WHERE device_id = $1 AND patient_id_local = $2`
	_, err := r.db.ExecContext(ctx, query, deviceID, localID)
	if err != nil {
		return types.NewRemoteError("remote_delete_patient", "patient row delete refused", err)
	}
	return nil
}

// DeletePrescriptionByLocalID removes this device's mirror row for one
// local prescription.
func (r *RowStore) DeletePrescriptionByLocalID(ctx context.Context, deviceID, localID string) error {
	query := `DELETE FROM prescriptions_archive WHERE device_id = $1 AND prescription_id_local = $2`
	_, err := r.db.ExecContext(ctx, query, deviceID, localID)
	if err != nil {
		return types.NewRemoteError("remote_delete_prescription", "prescription row delete refused", err)
	}
	return nil
}

// InsertPatients inserts rows as one multi-row statement.
func (r *RowStore) InsertPatients(ctx context.Context, rows []PatientRow) error {
	if len(rows) == 0 {
		return nil
	}

	cols := []string{
		"id", "device_id", "patient_id_local", "full_name", "age",
		"gender", "weight", "medical_history", "allergies", "updated_at",
	}
	args := make([]interface{}, 0, len(rows)*len(cols))
	for _, row := range rows {
		args = append(args,
			row.ID, row.DeviceID, row.PatientIDLocal, row.FullName, row.Age,
			row.Gender, row.Weight, row.MedicalHistory, row.Allergies, row.UpdatedAt,
		)
	}

	query := buildInsert(TablePatients, cols, len(rows))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return types.NewRemoteError("remote_insert_patients", "patient rows refused", err)
	}
	return nil
}

// InsertPrescriptions inserts rows as one multi-row statement. VitalSigns
// and Items travel as jsonb.
func (r *RowStore) InsertPrescriptions(ctx context.Context, rows []PrescriptionRow) error {
	if len(rows) == 0 {
		return nil
	}

	cols := []string{
		"id", "device_id", "prescription_id_local", "patient_id_local",
		"patient_name", "diagnosis", "date_epoch", "vital_signs", "items", "synced_at",
	}
	args := make([]interface{}, 0, len(rows)*len(cols))
	for _, row := range rows {
		vitals, err := json.Marshal(row.VitalSigns)
		if err != nil {
			return types.NewRemoteError("remote_encode", "cannot encode vital signs", err)
		}
		items, err := json.Marshal(row.Items)
		if err != nil {
			return types.NewRemoteError("remote_encode", "cannot encode prescription items", err)
		}
		args = append(args,
			row.ID, row.DeviceID, row.PrescriptionIDLocal, row.PatientIDLocal,
			row.PatientName, row.Diagnosis, row.DateEpoch, vitals, items, row.SyncedAt,
		)
	}

	query := buildInsert(TablePrescriptions, cols, len(rows))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return types.NewRemoteError("remote_insert_prescriptions", "prescription rows refused", err)
	}
	return nil
}

// InsertTemplates inserts rows as one multi-row statement.
func (r *RowStore) InsertTemplates(ctx context.Context, rows []TemplateRow) error {
	if len(rows) == 0 {
		return nil
	}

	cols := []string{"id", "device_id", "title", "diagnosis", "items", "synced_at"}
	args := make([]interface{}, 0, len(rows)*len(cols))
	for _, row := range rows {
		items, err := json.Marshal(row.Items)
		if err != nil {
			return types.NewRemoteError("remote_encode", "cannot encode template items", err)
		}
		args = append(args, row.ID, row.DeviceID, row.Title, row.Diagnosis, items, row.SyncedAt)
	}

	query := buildInsert(TableTemplates, cols, len(rows))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return types.NewRemoteError("remote_insert_templates", "template rows refused", err)
	}
	return nil
}

// buildInsert renders INSERT INTO table (cols...) VALUES ($1..),($..)...
func buildInsert(table string, cols []string, rowCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(cols, ", "))

	n := 1
	for row := 0; row < rowCount; row++ {
		if row > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for col := range cols {
			if col > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
		}
		b.WriteString(")")
	}
	return b.String()
}
