package store

import (
	"encoding/json"

	"github.com/wali1264/dokteryaraflain/pkg/types"
)

// Typed accessors over the raw collection operations. The UI shell speaks
// these shapes; the raw layer stays generic for backup and sync.

func decodeAll[T any](raws []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, types.NewStorageError("store_decode", "corrupt record in collection", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Patients returns every patient record.
func (s *Store) Patients() ([]types.Patient, error) {
	raws, err := s.GetAll(types.KindPatients)
	if err != nil {
		return nil, err
	}
	return decodeAll[types.Patient](raws)
}

// SavePatient inserts or replaces a patient.
func (s *Store) SavePatient(p *types.Patient) (string, error) {
	return s.Put(types.KindPatients, p)
}

// DeletePatient removes a patient. Historical prescriptions keep their soft
// reference and are intentionally left in place.
func (s *Store) DeletePatient(id string) error {
	return s.Delete(types.KindPatients, id)
}

// Drugs returns the local formulary.
func (s *Store) Drugs() ([]types.Drug, error) {
	raws, err := s.GetAll(types.KindDrugs)
	if err != nil {
		return nil, err
	}
	return decodeAll[types.Drug](raws)
}

// SaveDrug inserts or replaces a drug.
func (s *Store) SaveDrug(d *types.Drug) (string, error) {
	return s.Put(types.KindDrugs, d)
}

// DeleteDrug removes a drug.
func (s *Store) DeleteDrug(id string) error {
	return s.Delete(types.KindDrugs, id)
}

// Templates returns every prescription template.
func (s *Store) Templates() ([]types.PrescriptionTemplate, error) {
	raws, err := s.GetAll(types.KindTemplates)
	if err != nil {
		return nil, err
	}
	return decodeAll[types.PrescriptionTemplate](raws)
}

// SaveTemplate inserts or replaces a template.
func (s *Store) SaveTemplate(t *types.PrescriptionTemplate) (string, error) {
	return s.Put(types.KindTemplates, t)
}

// DeleteTemplate removes a template.
func (s *Store) DeleteTemplate(id string) error {
	return s.Delete(types.KindTemplates, id)
}

// Prescriptions returns every issued prescription.
func (s *Store) Prescriptions() ([]types.Prescription, error) {
	raws, err := s.GetAll(types.KindPrescriptions)
	if err != nil {
		return nil, err
	}
	return decodeAll[types.Prescription](raws)
}

// SavePrescription records an issued visit.
func (s *Store) SavePrescription(rx *types.Prescription) (string, error) {
	return s.Put(types.KindPrescriptions, rx)
}

// PrescriptionsByPatient returns the visit history of one patient via the
// patientId index.
func (s *Store) PrescriptionsByPatient(patientID string) ([]types.Prescription, error) {
	raws, err := s.GetByIndex(types.KindPrescriptions, "patientId", patientID)
	if err != nil {
		return nil, err
	}
	return decodeAll[types.Prescription](raws)
}

// Profile returns the doctor profile singleton, or nil before first save.
func (s *Store) Profile() (*types.DoctorProfile, error) {
	raw, err := s.Get(types.KindSettings, types.ProfileID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var p types.DoctorProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, types.NewStorageError("store_decode", "corrupt profile record", err)
	}
	return &p, nil
}

// SaveProfile writes the doctor profile under its fixed identity.
func (s *Store) SaveProfile(p *types.DoctorProfile) error {
	p.ID = types.ProfileID
	_, err := s.Put(types.KindSettings, p)
	return err
}
