package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wali1264/dokteryaraflain/internal/store"
	"github.com/wali1264/dokteryaraflain/internal/syncer"
	"github.com/wali1264/dokteryaraflain/pkg/logger"
	"github.com/wali1264/dokteryaraflain/pkg/types"
)

type noObjects struct{}

func (noObjects) Upload(context.Context, string, []byte, string) (string, error) {
	return "", fmt.Errorf("no object store in tests")
}

// newTestServer wires the handlers over a real store with an offline sync
// engine: local operations must behave identically with no network at all.
func newTestServer(t *testing.T) (*httptest.Server, *store.Store, *syncer.Worker) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	metrics := syncer.NewMetrics(prometheus.NewRegistry())
	engine := syncer.NewEngine(st, nil, noObjects{}, syncer.Unreachable{}, 100, metrics, logger.Discard())
	worker := syncer.NewWorker(engine, 64, logger.Discard())
	worker.Start(context.Background())
	t.Cleanup(worker.Close)

	router := mux.NewRouter()
	NewHandlers(st, worker, logger.Discard()).RegisterRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, st, worker
}

func doJSON(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSavePatient_MintsIdentityAndTimestamps(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/patients", types.Patient{FullName: "Ali", Gender: "male", Age: 40})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	saved := decodeBody[types.Patient](t, resp)
	assert.NotEmpty(t, saved.ID)
	assert.NotZero(t, saved.CreatedAt)
	assert.NotZero(t, saved.UpdatedAt)

	list := doJSON(t, "GET", srv.URL+"/patients", nil)
	patients := decodeBody[[]types.Patient](t, list)
	require.Len(t, patients, 1)
	assert.Equal(t, saved.ID, patients[0].ID)
}

func TestSavePatient_UpdateKeepsIdentity(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/patients", types.Patient{FullName: "Ali", Gender: "male", Age: 40})
	saved := decodeBody[types.Patient](t, resp)

	saved.Age = 41
	resp = doJSON(t, "POST", srv.URL+"/patients", saved)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decodeBody[types.Patient](t, resp)
	assert.Equal(t, saved.ID, updated.ID)
	assert.Equal(t, saved.CreatedAt, updated.CreatedAt)

	list := doJSON(t, "GET", srv.URL+"/patients", nil)
	patients := decodeBody[[]types.Patient](t, list)
	require.Len(t, patients, 1)
	assert.Equal(t, 41, patients[0].Age)
}

func TestSavePatient_Validation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	cases := []types.Patient{
		{Gender: "male"},                            // no name
		{FullName: "Ali", Gender: "other"},          // bad gender
		{FullName: "Ali", Gender: "male", Age: -1},  // negative age
	}
	for _, p := range cases {
		resp := doJSON(t, "POST", srv.URL+"/patients", p)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}
}

func TestDeletePatient_IsIdempotentOverHTTP(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/patients", types.Patient{FullName: "Ali", Gender: "male"})
	saved := decodeBody[types.Patient](t, resp)

	resp = doJSON(t, "DELETE", srv.URL+"/patients/"+saved.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doJSON(t, "DELETE", srv.URL+"/patients/"+saved.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreatePrescription_MintsFreshItemIdentities(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/patients", types.Patient{FullName: "Ali", Gender: "male"})
	patient := decodeBody[types.Patient](t, resp)

	// Items copied from a template still carry template item ids; the
	// engine must mint fresh ones.
	resp = doJSON(t, "POST", srv.URL+"/prescriptions", types.Prescription{
		PatientID: patient.ID,
		Diagnosis: "Flu",
		Items: []types.PrescriptionItem{
			{ID: "template-item-1", DrugName: "Amoxicillin", Dosage: "500mg"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	rx := decodeBody[types.Prescription](t, resp)
	assert.NotEmpty(t, rx.ID)
	assert.NotZero(t, rx.Date)
	assert.Equal(t, "Ali", rx.PatientName, "patient name denormalized at creation")
	require.Len(t, rx.Items, 1)
	assert.NotEqual(t, "template-item-1", rx.Items[0].ID)
	assert.NotEmpty(t, rx.Items[0].ID)
}

func TestCreatePrescription_MissingPatientIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/prescriptions", types.Prescription{PatientID: "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPatientPrescriptions_FilteredByIndex(t *testing.T) {
	srv, st, _ := newTestServer(t)

	_, err := st.SavePatient(&types.Patient{ID: "p1", FullName: "Ali", Gender: "male"})
	require.NoError(t, err)
	_, err = st.SavePrescription(&types.Prescription{ID: "rx1", PatientID: "p1", PatientName: "Ali"})
	require.NoError(t, err)
	_, err = st.SavePrescription(&types.Prescription{ID: "rx2", PatientID: "p2", PatientName: "Sara"})
	require.NoError(t, err)

	resp := doJSON(t, "GET", srv.URL+"/patients/p1/prescriptions", nil)
	history := decodeBody[[]types.Prescription](t, resp)
	require.Len(t, history, 1)
	assert.Equal(t, "rx1", history[0].ID)
}

func TestProfile_LazyCreation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doJSON(t, "GET", srv.URL+"/profile", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, "PUT", srv.URL+"/profile", types.DoctorProfile{FullName: "Dr. Wali"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, "GET", srv.URL+"/profile", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := decodeBody[types.DoctorProfile](t, resp)
	assert.Equal(t, types.ProfileID, profile.ID)
}

func TestBackup_ExportImportOverHTTP(t *testing.T) {
	srv, st, _ := newTestServer(t)

	_, err := st.SaveDrug(&types.Drug{ID: "d1", Name: "Amoxicillin"})
	require.NoError(t, err)

	resp := doJSON(t, "GET", srv.URL+"/backup/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snapshot bytes.Buffer
	_, err = snapshot.ReadFrom(resp.Body)
	require.NoError(t, err)

	require.NoError(t, st.DeleteDrug("d1"))

	req, err := http.NewRequest("POST", srv.URL+"/backup/import?confirm=true", bytes.NewReader(snapshot.Bytes()))
	require.NoError(t, err)
	importResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer importResp.Body.Close()
	require.Equal(t, http.StatusOK, importResp.StatusCode)

	drugs, err := st.Drugs()
	require.NoError(t, err)
	require.Len(t, drugs, 1)
	assert.Equal(t, "Amoxicillin", drugs[0].Name)
}

func TestBackup_ImportRequiresConfirmation(t *testing.T) {
	srv, st, _ := newTestServer(t)

	_, err := st.SaveDrug(&types.Drug{ID: "d1", Name: "Amoxicillin"})
	require.NoError(t, err)

	resp := doJSON(t, "POST", srv.URL+"/backup/import", map[string]interface{}{"drugs": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unconfirmed import must not touch anything.
	drugs, err := st.Drugs()
	require.NoError(t, err)
	assert.Len(t, drugs, 1)
}

func TestBackup_MalformedImportIs400(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req, err := http.NewRequest("POST", srv.URL+"/backup/import?confirm=true", bytes.NewReader([]byte("not json")))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyncStatus_ReportsPendingAfterOfflineMutation(t *testing.T) {
	srv, st, worker := newTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/patients", types.Patient{FullName: "Ali", Gender: "male"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Drain the queued (offline) sync job, then the flag must be visible.
	worker.Close()

	pending, err := st.SyncPending()
	require.NoError(t, err)
	assert.True(t, pending)

	status := doJSON(t, "GET", srv.URL+"/sync/status", nil)
	body := decodeBody[map[string]interface{}](t, status)
	assert.Equal(t, true, body["pending"])
	assert.NotEmpty(t, body["device_id"])
}

func TestTriggerFullSync_IsAccepted(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doJSON(t, "POST", srv.URL+"/sync/full", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := doJSON(t, "GET", srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
