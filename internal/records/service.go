package records

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/medledger/medledger/internal/ledger"
	"github.com/medledger/medledger/internal/platform/hipaa"
)

// Service layers medical records on top of the ledger. Record data is
// encrypted through the confidentiality layer before it enters the mempool;
// the clear routing fields (patient, provider, type, access list) stay
// readable so chain queries work without the key.
type Service struct {
	ledger *ledger.Service
	enc    *hipaa.EncryptionService
	logger zerolog.Logger
}

func NewService(ledgerSvc *ledger.Service, enc *hipaa.EncryptionService, logger zerolog.Logger) *Service {
	return &Service{ledger: ledgerSvc, enc: enc, logger: logger}
}

// CreateRecord validates, encrypts and submits a medical record transaction.
// It returns the transaction id. The signature is stored opaquely.
func (s *Service) CreateRecord(ctx context.Context, in CreateRecordInput) (string, error) {
	if !ValidRecordType(in.RecordType) {
		return "", fmt.Errorf("%w: %q, must be one of: %s",
			ErrInvalidRecordType, in.RecordType, strings.Join(RecordTypes(), ", "))
	}
	if in.PatientID == "" {
		return "", fmt.Errorf("%w: patient_id is required", ledger.ErrValidation)
	}
	if in.ProviderID == "" {
		return "", fmt.Errorf("%w: provider_id is required", ledger.ErrValidation)
	}

	accessList := in.AccessList
	if len(accessList) == 0 {
		accessList = []string{in.PatientID, in.ProviderID}
	}

	plaintext, err := json.Marshal(envelope{RecordType: in.RecordType, Data: in.Data})
	if err != nil {
		return "", fmt.Errorf("marshal record envelope: %w", err)
	}

	payload, err := s.enc.EncryptField(string(plaintext))
	if err != nil {
		return "", fmt.Errorf("encrypt record data: %w", err)
	}

	tx := ledger.Transaction{
		Sender:    in.ProviderID,
		Recipient: in.PatientID,
		Payload:   payload,
		Signature: in.Signature,
		Record: &ledger.RecordMeta{
			PatientID:  in.PatientID,
			ProviderID: in.ProviderID,
			RecordType: in.RecordType,
			AccessList: accessList,
		},
	}

	id, err := s.ledger.Submit(ctx, tx)
	if err != nil {
		return "", err
	}

	s.logger.Info().
		Str("transaction_id", id).
		Str("patient_id", in.PatientID).
		Str("record_type", in.RecordType).
		Msg("medical record submitted")
	return id, nil
}

// Consent submits a patient_consent record that grants or revokes a
// provider's access to the patient's records. The consent itself is a record
// transaction authored by the patient.
func (s *Service) Consent(ctx context.Context, in ConsentInput) (string, error) {
	if in.Action != "grant" && in.Action != "revoke" {
		return "", fmt.Errorf("%w: access_type must be either 'grant' or 'revoke'", ErrInvalidConsent)
	}
	if in.ProviderID == "" {
		return "", fmt.Errorf("%w: provider_id is required", ErrInvalidConsent)
	}

	recordTypes := in.RecordTypes
	if len(recordTypes) == 0 {
		recordTypes = RecordTypes()
	}

	data, err := json.Marshal(consentData{
		Action:      in.Action,
		ProviderID:  in.ProviderID,
		RecordTypes: recordTypes,
		Expiration:  in.Expiration,
	})
	if err != nil {
		return "", fmt.Errorf("marshal consent data: %w", err)
	}

	return s.CreateRecord(ctx, CreateRecordInput{
		PatientID:  in.PatientID,
		ProviderID: in.PatientID,
		RecordType: TypePatientConsent,
		Data:       data,
		AccessList: []string{in.PatientID, in.ProviderID},
		Signature:  in.Signature,
	})
}

// PatientRecords walks the chain and returns the patient's records that the
// requester may read, newest last. Access is granted when the requester is on
// a record's access list or holds an unrevoked consent grant covering the
// record's type. Data that cannot be decrypted is returned as "ENCRYPTED".
func (s *Service) PatientRecords(ctx context.Context, patientID, requesterID, recordType string) ([]Record, error) {
	if recordType != "" && !ValidRecordType(recordType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecordType, recordType)
	}

	chain, err := s.ledger.Chain(ctx)
	if err != nil {
		return nil, err
	}

	grants := s.consentGrants(chain, patientID)

	records := []Record{}
	for _, block := range chain {
		for _, tx := range block.Transactions {
			meta := tx.Record
			if meta == nil || meta.PatientID != patientID {
				continue
			}
			if recordType != "" && meta.RecordType != recordType {
				continue
			}
			if !authorized(requesterID, meta, grants) {
				continue
			}

			records = append(records, Record{
				TransactionID: tx.ID,
				BlockIndex:    block.Index,
				PatientID:     meta.PatientID,
				ProviderID:    meta.ProviderID,
				RecordType:    meta.RecordType,
				Data:          s.decryptData(tx.Payload),
				AccessList:    meta.AccessList,
				Timestamp:     tx.Timestamp,
			})
		}
	}
	return records, nil
}

// decryptData returns the record envelope's data field, or the ENCRYPTED
// placeholder when the payload cannot be decrypted with the node's key.
func (s *Service) decryptData(payload string) json.RawMessage {
	if payload == "" {
		return nil
	}

	plaintext, err := s.enc.DecryptField(payload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("record payload could not be decrypted")
		return json.RawMessage(EncryptedPlaceholder)
	}

	var env envelope
	if err := json.Unmarshal([]byte(plaintext), &env); err != nil {
		return json.RawMessage(EncryptedPlaceholder)
	}
	return env.Data
}

// consentGrants computes the effective grant state for a patient by replaying
// the patient's consent records in chain order: a later revoke undoes an
// earlier grant for the listed record types.
func (s *Service) consentGrants(chain []*ledger.Block, patientID string) map[string]map[string]bool {
	grants := make(map[string]map[string]bool)

	for _, block := range chain {
		for _, tx := range block.Transactions {
			meta := tx.Record
			if meta == nil || meta.PatientID != patientID || meta.RecordType != TypePatientConsent {
				continue
			}

			plaintext, err := s.enc.DecryptField(tx.Payload)
			if err != nil {
				continue
			}
			var env envelope
			if err := json.Unmarshal([]byte(plaintext), &env); err != nil {
				continue
			}
			var consent consentData
			if err := json.Unmarshal(env.Data, &consent); err != nil {
				continue
			}

			if grants[consent.ProviderID] == nil {
				grants[consent.ProviderID] = make(map[string]bool)
			}
			granted := consent.Action == "grant"
			for _, rt := range consent.RecordTypes {
				grants[consent.ProviderID][rt] = granted
			}
		}
	}
	return grants
}

func authorized(requesterID string, meta *ledger.RecordMeta, grants map[string]map[string]bool) bool {
	for _, id := range meta.AccessList {
		if id == requesterID {
			return true
		}
	}
	return grants[requesterID][meta.RecordType]
}
