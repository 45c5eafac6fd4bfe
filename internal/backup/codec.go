// Package backup serializes the entire local store to one portable JSON
// snapshot and restores it. Import is the only bulk-destructive path in the
// system and validates the whole document before clearing anything.
package backup

import (
	"encoding/json"

	"github.com/wali1264/dokteryaraflain/internal/store"
	"github.com/wali1264/dokteryaraflain/pkg/types"
)

// Snapshot is keyed by collection name. Kinds absent from an imported
// snapshot are left untouched, which keeps partial backups forward
// compatible.
type Snapshot map[types.Kind][]json.RawMessage

// Export collects every entity of every kind into one serialized document.
func Export(s *store.Store) ([]byte, error) {
	snap := Snapshot{}
	for _, kind := range types.AllKinds {
		items, err := s.GetAll(kind)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []json.RawMessage{}
		}
		snap[kind] = items
	}
	return json.MarshalIndent(snap, "", "  ")
}

// Import replaces each collection present in data with the snapshot's
// contents, all-or-nothing per kind. Malformed input fails before any kind
// is cleared, so a bad import can never leave the store half-cleared.
func Import(s *store.Store, data []byte) error {
	snap, err := decode(data)
	if err != nil {
		return err
	}

	for _, kind := range types.AllKinds {
		items, ok := snap[kind]
		if !ok {
			continue
		}
		if err := s.ReplaceAll(kind, items); err != nil {
			return err
		}
	}
	return nil
}

// decode validates structural shape: a JSON object whose known keys hold
// arrays of objects, each decodable into that kind's entity type.
func decode(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, types.NewParseError("backup_shape", "snapshot is not a collection map", err)
	}

	for kind, items := range snap {
		if !knownKind(kind) {
			// Unknown keys are skipped, not fatal: newer exports may
			// carry collections this build does not have yet.
			delete(snap, kind)
			continue
		}
		for _, raw := range items {
			if err := validateEntity(kind, raw); err != nil {
				return nil, err
			}
		}
	}
	return snap, nil
}

func knownKind(kind types.Kind) bool {
	for _, k := range types.AllKinds {
		if k == kind {
			return true
		}
	}
	return false
}

func validateEntity(kind types.Kind, raw json.RawMessage) error {
	var err error
	switch kind {
	case types.KindPatients:
		err = strictDecode(raw, &types.Patient{})
	case types.KindDrugs:
		err = strictDecode(raw, &types.Drug{})
	case types.KindTemplates:
		err = strictDecode(raw, &types.PrescriptionTemplate{})
	case types.KindSettings:
		err = strictDecode(raw, &types.DoctorProfile{})
	case types.KindPrescriptions:
		err = strictDecode(raw, &types.Prescription{})
	}
	if err != nil {
		return types.NewParseError("backup_entity", "snapshot entity does not match its kind", err)
	}
	return nil
}

func strictDecode(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return err
	}
	// Every entity in a snapshot must carry its identity; records without
	// one would be unaddressable after restore.
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return err
	}
	if probe.ID == "" {
		return types.NewParseError("backup_no_id", "snapshot entity has no identity", nil)
	}
	return nil
}
