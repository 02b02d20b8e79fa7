package export_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoproof/ecoproof/pkg/artifacts"
	"github.com/ecoproof/ecoproof/pkg/contracts"
	"github.com/ecoproof/ecoproof/pkg/engine"
	"github.com/ecoproof/ecoproof/pkg/export"
	"github.com/ecoproof/ecoproof/pkg/merkle"
)

const (
	admin     = "acct:admin"
	verifier  = "acct:verifier"
	submitter = "acct:submitter"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T, instant bool) (*engine.Engine, *artifacts.FSArchive, *export.Exporter) {
	t.Helper()
	p := contracts.DefaultParams()
	p.InstantSettlement = instant
	p.ChallengeWindowSeconds = 3600
	e, err := engine.Open(context.Background(), engine.Deps{}, engine.Genesis{
		Admin:     admin,
		Params:    &p,
		Verifiers: []string{verifier},
	})
	require.NoError(t, err)
	e = e.WithClock(func() time.Time { return t0 })

	a, err := artifacts.NewFSArchive(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)
	x := export.New(e, a).WithClock(func() time.Time { return t0 })
	return e, a, x
}

func submit(t *testing.T, e *engine.Engine, qty uint64) uint64 {
	t.Helper()
	id, err := e.Submit(context.Background(), submitter, contracts.Claim{
		Description:    "Mangrove restoration, block 3",
		ProofReference: "ipfs://bafy-mangrove",
		CreditType:     contracts.CreditRemoval,
		Quantity:       qty,
	})
	require.NoError(t, err)
	return id
}

func TestDossier_Finalized(t *testing.T) {
	ctx := context.Background()
	e, a, x := setup(t, true)
	id := submit(t, e, 2_000_000)
	require.NoError(t, e.Verify(ctx, verifier, id, 500))

	d, err := x.Dossier(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, d.ExportID)
	assert.Equal(t, t0, d.ExportedAt)
	assert.Equal(t, contracts.StatusFinalized, d.Action.Status)
	require.NotNil(t, d.Receipt)
	assert.True(t, d.ReceiptVerified)
	assert.NotEmpty(t, d.Journal)
	assert.Equal(t, e.Journal().Head(), d.JournalHead)
	assert.Equal(t, e.Journal().Length(), d.JournalLength)
	require.Len(t, d.Proofs, len(d.Journal))
	root := merkle.Build(export.JournalLeaves(e.Journal().Since(0, 0))).Root
	assert.Equal(t, root, d.JournalRoot)
	for i, entry := range d.Journal {
		assert.Equal(t, id, entry.ActionID)
		assert.Equal(t, strconv.FormatUint(entry.Sequence, 10), d.Proofs[i].LeafKey)
		assert.True(t, merkle.VerifyInclusionProof(d.Proofs[i], d.JournalRoot))
	}

	addr, err := x.ExportDossier(ctx, id)
	require.NoError(t, err)
	data, err := a.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, artifacts.Address(data), addr)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "receipt")
	assert.Equal(t, true, doc["receipt_verified"])
}

func TestDossier_PendingHasNoReceipt(t *testing.T) {
	ctx := context.Background()
	e, _, x := setup(t, false)
	id := submit(t, e, 1_000)

	d, err := x.Dossier(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, d.Receipt)
	assert.False(t, d.ReceiptVerified)
	assert.NotNil(t, d.Challenges)
	assert.Zero(t, d.Retired)
}

func TestDossier_UnknownAction(t *testing.T) {
	_, _, x := setup(t, true)
	_, err := x.ExportDossier(context.Background(), 404)
	assert.ErrorIs(t, err, contracts.KindNotFound)
}

func TestCertificate(t *testing.T) {
	ctx := context.Background()
	e, a, x := setup(t, true)
	first := submit(t, e, 1_000_000)
	second := submit(t, e, 3_000_000)
	require.NoError(t, e.Verify(ctx, verifier, first, 10))
	require.NoError(t, e.Verify(ctx, verifier, second, 30))

	rec, err := e.Retire(ctx, submitter, []uint64{first, second}, []uint64{250_000, 1_000_000}, "FY26 offset", "Acme GmbH")
	require.NoError(t, err)

	c, err := x.Certificate(ctx, rec.Serial)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_250_000), c.TotalGrams)
	require.Len(t, c.Actions, 2)
	assert.Equal(t, first, c.Actions[0].ActionID)
	assert.Equal(t, uint64(250_000), c.Actions[0].Amount)
	assert.Equal(t, contracts.CreditRemoval, c.Actions[1].CreditType)
	assert.NotEmpty(t, c.Actions[1].ReceiptID)

	addr, err := x.ExportRetirement(ctx, rec.Serial)
	require.NoError(t, err)
	ok, err := a.Exists(ctx, addr)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = x.ExportRetirement(ctx, 99)
	assert.ErrorIs(t, err, contracts.KindNotFound)
}
