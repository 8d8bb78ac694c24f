package records

import (
	"encoding/json"
	"errors"
)

// Record types accepted on the ledger.
const (
	TypeDiagnosticReport  = "diagnostic_report"
	TypePrescription      = "prescription"
	TypeLabResult         = "lab_result"
	TypeVitalSigns        = "vital_signs"
	TypeConsultationNotes = "consultation_notes"
	TypeSurgeryRecord     = "surgery_record"
	TypeImagingReport     = "imaging_report"
	TypeVaccination       = "vaccination"
	TypeAllergyRecord     = "allergy_record"
	TypePatientConsent    = "patient_consent"
)

var validRecordTypes = map[string]bool{
	TypeDiagnosticReport:  true,
	TypePrescription:      true,
	TypeLabResult:         true,
	TypeVitalSigns:        true,
	TypeConsultationNotes: true,
	TypeSurgeryRecord:     true,
	TypeImagingReport:     true,
	TypeVaccination:       true,
	TypeAllergyRecord:     true,
	TypePatientConsent:    true,
}

// RecordTypes returns every accepted record type.
func RecordTypes() []string {
	return []string{
		TypeDiagnosticReport,
		TypePrescription,
		TypeLabResult,
		TypeVitalSigns,
		TypeConsultationNotes,
		TypeSurgeryRecord,
		TypeImagingReport,
		TypeVaccination,
		TypeAllergyRecord,
		TypePatientConsent,
	}
}

func ValidRecordType(t string) bool {
	return validRecordTypes[t]
}

var (
	ErrInvalidRecordType = errors.New("invalid record type")
	ErrInvalidConsent    = errors.New("invalid consent request")
)

// envelope is the plaintext structure encrypted into a record transaction's
// payload.
type envelope struct {
	RecordType string          `json:"record_type"`
	Data       json.RawMessage `json:"data"`
}

// consentData is the envelope body of a patient_consent record.
type consentData struct {
	Action      string   `json:"action"`
	ProviderID  string   `json:"provider_id"`
	RecordTypes []string `json:"record_types"`
	Expiration  *float64 `json:"expiration,omitempty"`
}

// EncryptedPlaceholder replaces record data the node cannot decrypt. The
// record itself is still listed so its existence is visible to authorized
// requesters.
const EncryptedPlaceholder = `"ENCRYPTED"`

// Record is the decrypted view of a medical-record transaction.
type Record struct {
	TransactionID string          `json:"transaction_id"`
	BlockIndex    int             `json:"block_index"`
	PatientID     string          `json:"patient_id"`
	ProviderID    string          `json:"provider_id"`
	RecordType    string          `json:"record_type"`
	Data          json.RawMessage `json:"data"`
	AccessList    []string        `json:"access_list"`
	Timestamp     float64         `json:"timestamp"`
}

// CreateRecordInput carries a new medical record submission.
type CreateRecordInput struct {
	PatientID  string          `json:"patient_id"`
	ProviderID string          `json:"provider_id"`
	RecordType string          `json:"record_type"`
	Data       json.RawMessage `json:"medical_data"`
	AccessList []string        `json:"access_list"`
	Signature  string          `json:"signature"`
}

// ConsentInput carries a grant or revoke of record access.
type ConsentInput struct {
	PatientID   string   `json:"patient_id"`
	ProviderID  string   `json:"provider_id"`
	Action      string   `json:"access_type"`
	RecordTypes []string `json:"record_types"`
	Expiration  *float64 `json:"expiration"`
	Signature   string   `json:"signature"`
}
