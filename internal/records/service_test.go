package records

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/medledger/medledger/internal/ledger"
	"github.com/medledger/medledger/internal/platform/hipaa"
)

func newTestEncryption(t *testing.T) *hipaa.EncryptionService {
	t.Helper()
	key := hex.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	enc, err := hipaa.NewEncryptionService(key, zerolog.New(os.Stderr))
	if err != nil {
		t.Fatalf("create encryption service: %v", err)
	}
	return enc
}

func newTestServices(t *testing.T) (*Service, *ledger.Service) {
	t.Helper()
	ledgerSvc := ledger.NewService(ledger.NewMemoryStore(), ledger.NewMempool(), ledger.Options{
		NodeID:     "records-test-node",
		Difficulty: 1,
		Reward:     1,
		Logger:     zerolog.New(os.Stderr),
	})
	return NewService(ledgerSvc, newTestEncryption(t), zerolog.New(os.Stderr)), ledgerSvc
}

func mustMine(t *testing.T, svc *ledger.Service) {
	t.Helper()
	if _, err := svc.Mine(context.Background()); err != nil {
		t.Fatalf("mine: %v", err)
	}
}

func TestCreateRecord_InvalidType(t *testing.T) {
	svc, _ := newTestServices(t)

	_, err := svc.CreateRecord(context.Background(), CreateRecordInput{
		PatientID:  "patient-1",
		ProviderID: "dr-1",
		RecordType: "horoscope",
		Data:       json.RawMessage(`{}`),
	})
	if !errors.Is(err, ErrInvalidRecordType) {
		t.Fatalf("expected ErrInvalidRecordType, got %v", err)
	}
}

func TestCreateRecord_RequiresIdentifiers(t *testing.T) {
	svc, _ := newTestServices(t)

	_, err := svc.CreateRecord(context.Background(), CreateRecordInput{
		ProviderID: "dr-1",
		RecordType: TypeLabResult,
	})
	if !errors.Is(err, ledger.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing patient_id, got %v", err)
	}

	_, err = svc.CreateRecord(context.Background(), CreateRecordInput{
		PatientID:  "patient-1",
		RecordType: TypeLabResult,
	})
	if !errors.Is(err, ledger.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing provider_id, got %v", err)
	}
}

func TestCreateRecord_EncryptsPayload(t *testing.T) {
	svc, ledgerSvc := newTestServices(t)

	plain := `{"diagnosis":"common cold"}`
	id, err := svc.CreateRecord(context.Background(), CreateRecordInput{
		PatientID:  "patient-1",
		ProviderID: "dr-1",
		RecordType: TypeDiagnosticReport,
		Data:       json.RawMessage(plain),
	})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	if id == "" {
		t.Fatal("expected transaction id")
	}

	pending := ledgerSvc.Pool().Pending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending transaction, got %d", len(pending))
	}

	tx := pending[0]
	if strings.Contains(tx.Payload, "common cold") {
		t.Error("payload must not contain plaintext medical data")
	}
	if tx.Record == nil {
		t.Fatal("expected record metadata on the transaction")
	}
	if tx.Record.RecordType != TypeDiagnosticReport {
		t.Errorf("expected record type %s, got %s", TypeDiagnosticReport, tx.Record.RecordType)
	}
	if len(tx.Record.AccessList) != 2 {
		t.Errorf("expected default access list [patient, provider], got %v", tx.Record.AccessList)
	}
}

func TestPatientRecords_AccessControl(t *testing.T) {
	svc, ledgerSvc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.CreateRecord(ctx, CreateRecordInput{
		PatientID:  "patient-1",
		ProviderID: "dr-1",
		RecordType: TypeLabResult,
		Data:       json.RawMessage(`{"glucose":"95 mg/dL"}`),
	})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	mustMine(t, ledgerSvc)

	// The authoring provider reads decrypted data.
	recs, err := svc.PatientRecords(ctx, "patient-1", "dr-1", "")
	if err != nil {
		t.Fatalf("patient records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record for authorized provider, got %d", len(recs))
	}
	if !strings.Contains(string(recs[0].Data), "glucose") {
		t.Errorf("expected decrypted data, got %s", recs[0].Data)
	}

	// The patient is on the default access list.
	recs, err = svc.PatientRecords(ctx, "patient-1", "patient-1", "")
	if err != nil {
		t.Fatalf("patient records: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("expected 1 record for the patient, got %d", len(recs))
	}

	// A stranger sees nothing.
	recs, err = svc.PatientRecords(ctx, "patient-1", "dr-nosy", "")
	if err != nil {
		t.Fatalf("patient records: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected no records for unauthorized requester, got %d", len(recs))
	}
}

func TestPatientRecords_TypeFilter(t *testing.T) {
	svc, ledgerSvc := newTestServices(t)
	ctx := context.Background()

	for _, rt := range []string{TypeLabResult, TypePrescription} {
		if _, err := svc.CreateRecord(ctx, CreateRecordInput{
			PatientID:  "patient-1",
			ProviderID: "dr-1",
			RecordType: rt,
			Data:       json.RawMessage(`{}`),
		}); err != nil {
			t.Fatalf("create %s: %v", rt, err)
		}
	}
	mustMine(t, ledgerSvc)

	recs, err := svc.PatientRecords(ctx, "patient-1", "dr-1", TypePrescription)
	if err != nil {
		t.Fatalf("patient records: %v", err)
	}
	if len(recs) != 1 || recs[0].RecordType != TypePrescription {
		t.Errorf("expected only the prescription record, got %+v", recs)
	}

	if _, err := svc.PatientRecords(ctx, "patient-1", "dr-1", "horoscope"); !errors.Is(err, ErrInvalidRecordType) {
		t.Errorf("expected ErrInvalidRecordType for bad filter, got %v", err)
	}
}

func TestConsent_GrantAndRevoke(t *testing.T) {
	svc, ledgerSvc := newTestServices(t)
	ctx := context.Background()

	if _, err := svc.CreateRecord(ctx, CreateRecordInput{
		PatientID:  "patient-1",
		ProviderID: "dr-1",
		RecordType: TypeLabResult,
		Data:       json.RawMessage(`{"glucose":"95 mg/dL"}`),
	}); err != nil {
		t.Fatalf("create record: %v", err)
	}
	mustMine(t, ledgerSvc)

	// Not yet granted.
	recs, err := svc.PatientRecords(ctx, "patient-1", "dr-specialist", "")
	if err != nil {
		t.Fatalf("patient records: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("specialist should see nothing before consent, got %d", len(recs))
	}

	// Grant access to lab results.
	if _, err := svc.Consent(ctx, ConsentInput{
		PatientID:   "patient-1",
		ProviderID:  "dr-specialist",
		Action:      "grant",
		RecordTypes: []string{TypeLabResult},
	}); err != nil {
		t.Fatalf("grant consent: %v", err)
	}
	mustMine(t, ledgerSvc)

	recs, err = svc.PatientRecords(ctx, "patient-1", "dr-specialist", TypeLabResult)
	if err != nil {
		t.Fatalf("patient records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("specialist should see the lab result after grant, got %d", len(recs))
	}

	// Revoke undoes the grant.
	if _, err := svc.Consent(ctx, ConsentInput{
		PatientID:   "patient-1",
		ProviderID:  "dr-specialist",
		Action:      "revoke",
		RecordTypes: []string{TypeLabResult},
	}); err != nil {
		t.Fatalf("revoke consent: %v", err)
	}
	mustMine(t, ledgerSvc)

	recs, err = svc.PatientRecords(ctx, "patient-1", "dr-specialist", TypeLabResult)
	if err != nil {
		t.Fatalf("patient records: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("specialist should see nothing after revoke, got %d", len(recs))
	}
}

func TestConsent_InvalidAction(t *testing.T) {
	svc, _ := newTestServices(t)

	_, err := svc.Consent(context.Background(), ConsentInput{
		PatientID:  "patient-1",
		ProviderID: "dr-1",
		Action:     "borrow",
	})
	if !errors.Is(err, ErrInvalidConsent) {
		t.Fatalf("expected ErrInvalidConsent, got %v", err)
	}
}

func TestPatientRecords_UndecryptableShowsPlaceholder(t *testing.T) {
	svc, ledgerSvc := newTestServices(t)
	ctx := context.Background()

	// A record whose payload was encrypted under some other node's key.
	if _, err := ledgerSvc.Submit(ctx, ledger.Transaction{
		Sender:    "dr-1",
		Recipient: "patient-1",
		Payload:   "bm90IGEgdmFsaWQgY2lwaGVydGV4dA==",
		Record: &ledger.RecordMeta{
			PatientID:  "patient-1",
			ProviderID: "dr-1",
			RecordType: TypeImagingReport,
			AccessList: []string{"patient-1", "dr-1"},
		},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	mustMine(t, ledgerSvc)

	recs, err := svc.PatientRecords(ctx, "patient-1", "dr-1", "")
	if err != nil {
		t.Fatalf("patient records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected the undecryptable record to be listed, got %d", len(recs))
	}
	if string(recs[0].Data) != EncryptedPlaceholder {
		t.Errorf("expected %s placeholder, got %s", EncryptedPlaceholder, recs[0].Data)
	}
}
