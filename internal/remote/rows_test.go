package remote

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wali1264/dokteryaraflain/pkg/logger"
	"github.com/wali1264/dokteryaraflain/pkg/types"
)

func setupRowStore(t *testing.T) (*RowStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRowStore(db, logger.Discard()), mock
}

func TestRowStore_UpsertDoctor(t *testing.T) {
	store, mock := setupRowStore(t)

	now := time.Now().UTC()
	mock.ExpectExec(`INSERT INTO doctors .+ ON CONFLICT \(device_id\) DO UPDATE`).
		WithArgs("dev-1", "Dr. Wali", "Internal Medicine", "MC-1264", "0700", "Herat", "https://cdn/h.png", "2.0", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpsertDoctor(context.Background(), &DoctorRow{
		DeviceID:             "dev-1",
		FullName:             "Dr. Wali",
		Specialty:            "Internal Medicine",
		MedicalCouncilNumber: "MC-1264",
		PhoneNumber:          "0700",
		Address:              "Herat",
		HeaderImageURL:       "https://cdn/h.png",
		AppVersion:           "2.0",
		LastSyncAt:           now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRowStore_DeleteByDevice(t *testing.T) {
	store, mock := setupRowStore(t)

	mock.ExpectExec(`DELETE FROM patients_archive WHERE device_id = \$1`).
		WithArgs("dev-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := store.DeleteByDevice(context.Background(), TablePatients, "dev-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRowStore_DeletePatientByLocalID(t *testing.T) {
	store, mock := setupRowStore(t)

	mock.ExpectExec(`DELETE FROM patients_archive WHERE device_id = \$1 AND patient_id_local = \$2`).
		WithArgs("dev-1", "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.DeletePatientByLocalID(context.Background(), "dev-1", "p1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRowStore_InsertPatientsMultiRow(t *testing.T) {
	store, mock := setupRowStore(t)

	updated := time.Now().UTC()
	rows := []PatientRow{
		{ID: "r1", DeviceID: "dev-1", PatientIDLocal: "p1", FullName: "Ali", Age: 40, Gender: "male", Weight: "70", UpdatedAt: updated},
		{ID: "r2", DeviceID: "dev-1", PatientIDLocal: "p2", FullName: "Sara", Age: 31, Gender: "female", Weight: "", UpdatedAt: updated},
	}

	mock.ExpectExec(`INSERT INTO patients_archive \(id, device_id, patient_id_local, .+\) VALUES \(\$1, .+\), \(\$11, .+\)`).
		WithArgs(
			"r1", "dev-1", "p1", "Ali", 40, "male", "70", "", "", updated,
			"r2", "dev-1", "p2", "Sara", 31, "female", "", "", "", updated,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := store.InsertPatients(context.Background(), rows)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRowStore_InsertEmptySliceIsNoOp(t *testing.T) {
	store, mock := setupRowStore(t)

	require.NoError(t, store.InsertPatients(context.Background(), nil))
	require.NoError(t, store.InsertTemplates(context.Background(), nil))
	require.NoError(t, store.InsertPrescriptions(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRowStore_InsertPrescriptionsEncodesJSON(t *testing.T) {
	store, mock := setupRowStore(t)

	synced := time.Now().UTC()
	rows := []PrescriptionRow{{
		ID:                  "r1",
		DeviceID:            "dev-1",
		PrescriptionIDLocal: "rx1",
		PatientIDLocal:      "p1",
		PatientName:         "Ali",
		Diagnosis:           "Flu",
		DateEpoch:           1700000000000,
		VitalSigns:          types.VitalSigns{BP: "120/80"},
		Items: []types.PrescriptionItem{
			{ID: "i1", DrugName: "Amoxicillin", Dosage: "500mg", Instruction: "TID"},
		},
		SyncedAt: synced,
	}}

	mock.ExpectExec(`INSERT INTO prescriptions_archive`).
		WithArgs(
			"r1", "dev-1", "rx1", "p1", "Ali", "Flu", int64(1700000000000),
			[]byte(`{"bp":"120/80"}`),
			[]byte(`[{"id":"i1","drugName":"Amoxicillin","dosage":"500mg","instruction":"TID"}]`),
			synced,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.InsertPrescriptions(context.Background(), rows)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRowStore_RejectedWriteIsRemoteError(t *testing.T) {
	store, mock := setupRowStore(t)

	mock.ExpectExec(`DELETE FROM templates_archive`).
		WithArgs("dev-1").
		WillReturnError(fmt.Errorf("schema mismatch"))

	err := store.DeleteByDevice(context.Background(), TableTemplates, "dev-1")
	require.Error(t, err)
	assert.Equal(t, types.ErrorRemoteRejected, types.CategoryOf(err))
}

func TestBuildInsertPlaceholders(t *testing.T) {
	query := buildInsert("t", []string{"a", "b"}, 3)
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2), ($3, $4), ($5, $6)", query)
}
