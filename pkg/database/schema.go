package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the mirror tables. Every row is scoped by device_id;
// the mirror is a per-device shadow, never a merged dataset.
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.WithComponent("database").Info("Ensuring mirror schema")

	tables := []string{
		createDoctorsTable,
		createPatientsArchiveTable,
		createPrescriptionsArchiveTable,
		createTemplatesArchiveTable,
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		createPatientsArchiveIndexes,
		createPrescriptionsArchiveIndexes,
		createTemplatesArchiveIndexes,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}

const createDoctorsTable = `
CREATE TABLE IF NOT EXISTS doctors (
	device_id UUID PRIMARY KEY,
	full_name TEXT NOT NULL,
	specialty TEXT,
	medical_council_number TEXT,
	phone_number TEXT,
	address TEXT,
	header_image_url TEXT,
	app_version TEXT,
	last_sync_at TIMESTAMPTZ NOT NULL
);`

const createPatientsArchiveTable = `
CREATE TABLE IF NOT EXISTS patients_archive (
	id UUID PRIMARY KEY,
	device_id UUID NOT NULL,
	patient_id_local TEXT NOT NULL,
	full_name TEXT NOT NULL,
	age INTEGER,
	gender TEXT,
	weight TEXT,
	medical_history TEXT,
	allergies TEXT,
	updated_at TIMESTAMPTZ
);`

const createPrescriptionsArchiveTable = `
CREATE TABLE IF NOT EXISTS prescriptions_archive (
	id UUID PRIMARY KEY,
	device_id UUID NOT NULL,
	prescription_id_local TEXT NOT NULL,
	patient_id_local TEXT NOT NULL,
	patient_name TEXT,
	diagnosis TEXT,
	date_epoch BIGINT,
	vital_signs JSONB,
	items JSONB,
	synced_at TIMESTAMPTZ
);`

const createTemplatesArchiveTable = `
CREATE TABLE IF NOT EXISTS templates_archive (
	id UUID PRIMARY KEY,
	device_id UUID NOT NULL,
	title TEXT NOT NULL,
	diagnosis TEXT,
	items JSONB,
	synced_at TIMESTAMPTZ
);`

const createPatientsArchiveIndexes = `
CREATE INDEX IF NOT EXISTS idx_patients_archive_device ON patients_archive(device_id);
CREATE INDEX IF NOT EXISTS idx_patients_archive_local ON patients_archive(device_id, patient_id_local);`

const createPrescriptionsArchiveIndexes = `
CREATE INDEX IF NOT EXISTS idx_prescriptions_archive_device ON prescriptions_archive(device_id);
CREATE INDEX IF NOT EXISTS idx_prescriptions_archive_local ON prescriptions_archive(device_id, prescription_id_local);`

const createTemplatesArchiveIndexes = `
CREATE INDEX IF NOT EXISTS idx_templates_archive_device ON templates_archive(device_id);`
