// Package export builds self-contained documents from engine state and
// archives them by content address: an action dossier (the action, its
// challenges, receipt and journal trail) and a retirement certificate.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ecoproof/ecoproof/pkg/artifacts"
	"github.com/ecoproof/ecoproof/pkg/canonicalize"
	"github.com/ecoproof/ecoproof/pkg/contracts"
	"github.com/ecoproof/ecoproof/pkg/engine"
	"github.com/ecoproof/ecoproof/pkg/ledger"
	"github.com/ecoproof/ecoproof/pkg/merkle"
	"github.com/ecoproof/ecoproof/pkg/settlement"
)

// Dossier is the full public record of one action.
type Dossier struct {
	ExportID        string                       `json:"export_id"`
	ExportedAt      time.Time                    `json:"exported_at"`
	Action          *contracts.Action            `json:"action"`
	Challenges      []*contracts.Challenge       `json:"challenges"`
	Receipt         *contracts.SettlementReceipt `json:"receipt,omitempty"`
	ReceiptVerified bool                         `json:"receipt_verified"`
	Retired         uint64                       `json:"retired"`
	Journal         []ledger.Entry               `json:"journal"`
	JournalHead     string                       `json:"journal_head"`
	JournalLength   int                          `json:"journal_length"`
	JournalRoot     string                       `json:"journal_root"`
	Proofs          []merkle.InclusionProof      `json:"proofs"`
}

// CertifiedAction is one line of a retirement certificate.
type CertifiedAction struct {
	ActionID      uint64               `json:"action_id"`
	CreditType    contracts.CreditType `json:"credit_type"`
	MethodologyID contracts.RefID      `json:"methodology_id"`
	ProjectID     contracts.RefID      `json:"project_id"`
	Amount        uint64               `json:"amount"`
	ReceiptID     string               `json:"receipt_id,omitempty"`
}

// Certificate attests a retirement.
type Certificate struct {
	CertificateID string                `json:"certificate_id"`
	IssuedAt      time.Time             `json:"issued_at"`
	Retirement    *contracts.Retirement `json:"retirement"`
	Actions       []CertifiedAction     `json:"actions"`
	TotalGrams    uint64                `json:"total_grams"`
	JournalHead   string                `json:"journal_head"`
}

// Exporter reads from the engine and writes to an archive.
type Exporter struct {
	engine  *engine.Engine
	archive artifacts.Archive
	clock   func() time.Time
	logger  *slog.Logger
}

// New creates an exporter.
func New(e *engine.Engine, a artifacts.Archive) *Exporter {
	return &Exporter{
		engine:  e,
		archive: a,
		clock:   time.Now,
		logger:  slog.Default().With("component", "export"),
	}
}

// WithClock overrides clock for testing.
func (x *Exporter) WithClock(clock func() time.Time) *Exporter {
	x.clock = clock
	return x
}

// Dossier assembles the dossier of an action.
func (x *Exporter) Dossier(ctx context.Context, actionID uint64) (*Dossier, error) {
	a, err := x.engine.Action(ctx, actionID)
	if err != nil {
		return nil, err
	}
	challenges, err := x.engine.Challenges(ctx, actionID)
	if err != nil {
		return nil, err
	}
	retired, err := x.engine.Retired(ctx, actionID)
	if err != nil {
		return nil, err
	}
	d := &Dossier{
		ExportID:   uuid.NewString(),
		ExportedAt: x.clock().UTC(),
		Action:     a,
		Challenges: challenges,
		Retired:    retired,
		Journal:    []ledger.Entry{},
		Proofs:     []merkle.InclusionProof{},
	}
	if d.Challenges == nil {
		d.Challenges = []*contracts.Challenge{}
	}
	if err := d.commitJournal(x.engine.Journal().Since(0, 0), actionID); err != nil {
		return nil, err
	}
	if a.Status == contracts.StatusFinalized {
		r, err := x.engine.Receipt(ctx, actionID)
		if err != nil {
			return nil, err
		}
		d.Receipt = r
		if d.ReceiptVerified, err = settlement.VerifyReceipt(r); err != nil {
			return nil, fmt.Errorf("export: verify receipt: %w", err)
		}
	}
	return d, nil
}

// commitJournal records the action's entries from one journal snapshot
// together with their inclusion proofs under the snapshot's Merkle root.
func (d *Dossier) commitJournal(snapshot []ledger.Entry, actionID uint64) error {
	d.JournalHead = ledger.GenesisHash
	d.JournalLength = len(snapshot)
	if len(snapshot) == 0 {
		return nil
	}
	d.JournalHead = snapshot[len(snapshot)-1].ContentHash

	tree := merkle.Build(JournalLeaves(snapshot))
	d.JournalRoot = tree.Root
	for i, e := range snapshot {
		if e.ActionID != actionID {
			continue
		}
		proof, err := tree.Proof(i)
		if err != nil {
			return fmt.Errorf("export: prove entry %d: %w", e.Sequence, err)
		}
		d.Journal = append(d.Journal, e)
		d.Proofs = append(d.Proofs, proof)
	}
	return nil
}

// JournalLeaves maps entries to Merkle leaves keyed by sequence.
func JournalLeaves(entries []ledger.Entry) []merkle.Leaf {
	out := make([]merkle.Leaf, len(entries))
	for i, e := range entries {
		out[i] = merkle.Leaf{Key: strconv.FormatUint(e.Sequence, 10), Value: []byte(e.ContentHash)}
	}
	return out
}

// Certificate assembles the certificate of a retirement.
func (x *Exporter) Certificate(ctx context.Context, serial uint64) (*Certificate, error) {
	rec, err := x.engine.Retirement(ctx, serial)
	if err != nil {
		return nil, err
	}
	c := &Certificate{
		CertificateID: uuid.NewString(),
		IssuedAt:      x.clock().UTC(),
		Retirement:    rec,
		Actions:       make([]CertifiedAction, 0, len(rec.ActionIDs)),
		TotalGrams:    rec.Total(),
		JournalHead:   x.engine.Journal().Head(),
	}
	for i, id := range rec.ActionIDs {
		a, err := x.engine.Action(ctx, id)
		if err != nil {
			return nil, err
		}
		line := CertifiedAction{
			ActionID:      id,
			CreditType:    a.CreditType,
			MethodologyID: a.MethodologyID,
			ProjectID:     a.ProjectID,
			Amount:        rec.Amounts[i],
		}
		if r, err := x.engine.Receipt(ctx, id); err == nil {
			line.ReceiptID = r.ReceiptID
		}
		c.Actions = append(c.Actions, line)
	}
	return c, nil
}

// ExportDossier archives the dossier of actionID and returns its address.
func (x *Exporter) ExportDossier(ctx context.Context, actionID uint64) (string, error) {
	d, err := x.Dossier(ctx, actionID)
	if err != nil {
		return "", err
	}
	addr, err := x.put(ctx, d)
	if err != nil {
		return "", err
	}
	x.logger.InfoContext(ctx, "dossier exported", "action_id", actionID, "address", addr)
	return addr, nil
}

// ExportRetirement archives the certificate of serial and returns its
// address.
func (x *Exporter) ExportRetirement(ctx context.Context, serial uint64) (string, error) {
	c, err := x.Certificate(ctx, serial)
	if err != nil {
		return "", err
	}
	addr, err := x.put(ctx, c)
	if err != nil {
		return "", err
	}
	x.logger.InfoContext(ctx, "retirement certificate exported", "serial", serial, "address", addr)
	return addr, nil
}

func (x *Exporter) put(ctx context.Context, doc any) (string, error) {
	data, err := canonicalize.JCS(doc)
	if err != nil {
		return "", fmt.Errorf("export: canonicalize: %w", err)
	}
	addr, err := x.archive.Put(ctx, data)
	if err != nil {
		return "", fmt.Errorf("export: archive: %w", err)
	}
	return addr, nil
}
