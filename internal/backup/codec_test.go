package backup

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wali1264/dokteryaraflain/internal/store"
	"github.com/wali1264/dokteryaraflain/pkg/logger"
	"github.com/wali1264/dokteryaraflain/pkg/types"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *store.Store) {
	t.Helper()
	_, err := s.SavePatient(&types.Patient{ID: "p1", FullName: "Ali", Gender: "male", Age: 40})
	require.NoError(t, err)
	_, err = s.SaveDrug(&types.Drug{ID: "d1", Name: "Amoxicillin"})
	require.NoError(t, err)
	_, err = s.SaveTemplate(&types.PrescriptionTemplate{
		ID:    "t1",
		Title: "Cold",
		Items: []types.PrescriptionItem{{ID: "i1", DrugName: "Amoxicillin", Dosage: "500mg"}},
	})
	require.NoError(t, err)
	_, err = s.SavePrescription(&types.Prescription{ID: "rx1", PatientID: "p1", PatientName: "Ali", Date: 1700000000000})
	require.NoError(t, err)
	require.NoError(t, s.SaveProfile(&types.DoctorProfile{FullName: "Dr. Wali"}))
}

func TestBackup_RoundTrip(t *testing.T) {
	src := openTestStore(t)
	seed(t, src)

	data, err := Export(src)
	require.NoError(t, err)

	dst := openTestStore(t)
	require.NoError(t, Import(dst, data))

	patients, err := dst.Patients()
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, "Ali", patients[0].FullName)

	drugs, err := dst.Drugs()
	require.NoError(t, err)
	require.Len(t, drugs, 1)
	assert.Equal(t, "Amoxicillin", drugs[0].Name)

	templates, err := dst.Templates()
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "i1", templates[0].Items[0].ID)

	prescriptions, err := dst.Prescriptions()
	require.NoError(t, err)
	require.Len(t, prescriptions, 1)
	assert.Equal(t, "rx1", prescriptions[0].ID)

	profile, err := dst.Profile()
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Dr. Wali", profile.FullName)

	// Restored indexes must answer queries too.
	history, err := dst.PrescriptionsByPatient("p1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestBackup_ImportReplacesExistingCollections(t *testing.T) {
	src := openTestStore(t)
	seed(t, src)
	data, err := Export(src)
	require.NoError(t, err)

	dst := openTestStore(t)
	_, err = dst.SavePatient(&types.Patient{ID: "old", FullName: "Stale", Gender: "female"})
	require.NoError(t, err)

	require.NoError(t, Import(dst, data))

	patients, err := dst.Patients()
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, "p1", patients[0].ID)
}

func TestBackup_MalformedInputLeavesStoreUntouched(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)

	cases := map[string][]byte{
		"not json":        []byte("definitely not json"),
		"not an object":   []byte(`[1, 2, 3]`),
		"entity no id":    []byte(`{"patients": [{"fullName": "Ghost", "gender": "male"}]}`),
		"entity bad type": []byte(`{"drugs": [{"id": "d9", "name": 42}]}`),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			err := Import(s, data)
			require.Error(t, err)
			assert.Equal(t, types.ErrorParse, types.CategoryOf(err))

			// No partial clear: everything seeded is still there.
			patients, err := s.Patients()
			require.NoError(t, err)
			assert.Len(t, patients, 1)
			drugs, err := s.Drugs()
			require.NoError(t, err)
			assert.Len(t, drugs, 1)
		})
	}
}

func TestBackup_AbsentKindsAreLeftUntouched(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)

	// Partial backup carrying only drugs: patients must survive.
	partial := []byte(`{"drugs": [{"id": "d2", "name": "Ibuprofen"}]}`)
	require.NoError(t, Import(s, partial))

	drugs, err := s.Drugs()
	require.NoError(t, err)
	require.Len(t, drugs, 1)
	assert.Equal(t, "Ibuprofen", drugs[0].Name)

	patients, err := s.Patients()
	require.NoError(t, err)
	assert.Len(t, patients, 1)
}

func TestBackup_UnknownCollectionsAreSkipped(t *testing.T) {
	s := openTestStore(t)

	// A newer export may carry collections this build does not know.
	data := []byte(`{"future_things": [{"id": "x"}], "drugs": [{"id": "d1", "name": "Amoxicillin"}]}`)
	require.NoError(t, Import(s, data))

	drugs, err := s.Drugs()
	require.NoError(t, err)
	assert.Len(t, drugs, 1)
}

func TestBackup_ExportIncludesEmptyCollections(t *testing.T) {
	s := openTestStore(t)

	data, err := Export(s)
	require.NoError(t, err)

	snap, err := decode(data)
	require.NoError(t, err)
	for _, kind := range types.AllKinds {
		items, ok := snap[kind]
		assert.True(t, ok, "kind %s missing from export", kind)
		assert.Empty(t, items)
	}
}
