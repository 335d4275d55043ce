package funding

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferDicom(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		description string
		debtor      Dicom
		borrower    Dicom
	}{
		{
			name:        "both positive wins over everything",
			description: "solicitante y pagador con dicom. solicitante sin dicom, no presenta dicom",
			debtor:      DicomFlagged,
			borrower:    DicomFlagged,
		},
		{
			name:        "both negative",
			description: "solicitante y pagador sin dicom",
			debtor:      DicomClear,
			borrower:    DicomClear,
		},
		{
			name:        "only debtor positive",
			description: "el pagador con dicom por monto menor",
			debtor:      DicomFlagged,
			borrower:    DicomUnknown,
		},
		{
			name:        "borrower positive beats borrower negative",
			description: "cliente con dicom. solicitante sin dicom",
			debtor:      DicomUnknown,
			borrower:    DicomFlagged,
		},
		{
			name:        "borrower negative",
			description: "solicitante sin dicom y pagador con dicom",
			debtor:      DicomFlagged,
			borrower:    DicomClear,
		},
		{
			name:        "single negative beats single positive",
			description: "no presenta dicom",
			debtor:      DicomUnknown,
			borrower:    DicomClear,
		},
		{
			name:        "single positive",
			description: "registra dicom desde 2021",
			debtor:      DicomUnknown,
			borrower:    DicomFlagged,
		},
		{
			name:        "no markers",
			description: "empresa con buen historial",
			debtor:      DicomUnknown,
			borrower:    DicomUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			debtor, borrower := InferDicom(tt.description, DefaultLexicon)
			assert.Equal(t, tt.debtor, debtor, "debtor")
			assert.Equal(t, tt.borrower, borrower, "borrower")
		})
	}
}

func TestInferDicomEmptyLexicon(t *testing.T) {
	t.Parallel()

	debtor, borrower := InferDicom("solicitante y pagador con dicom", Lexicon{})
	assert.Equal(t, DicomUnknown, debtor)
	assert.Equal(t, DicomUnknown, borrower)
}

func TestDicomJSON(t *testing.T) {
	t.Parallel()

	payload, err := json.Marshal([]Dicom{DicomFlagged, DicomClear, DicomUnknown})
	require.NoError(t, err)
	assert.JSONEq(t, `[true,false,null]`, string(payload))

	var decoded []Dicom
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, []Dicom{DicomFlagged, DicomClear, DicomUnknown}, decoded)
}

func TestLexiconOverride(t *testing.T) {
	t.Parallel()

	lex := DefaultLexicon.Override(Lexicon{
		DebtorPositive: "  Deudor  con DICOM ",
		SinglePositive: []string{"Tiene DICOM", "  "},
	})

	assert.Equal(t, "deudor con dicom", lex.DebtorPositive)
	assert.Equal(t, []string{"tiene dicom"}, lex.SinglePositive)
	assert.Equal(t, DefaultLexicon.BothPositive, lex.BothPositive)
	assert.Equal(t, DefaultLexicon.BorrowerPositive, lex.BorrowerPositive)
	// the default lexicon is left untouched
	assert.Equal(t, []string{"presenta dicom", "registra dicom"}, DefaultLexicon.SinglePositive)

	debtor, borrower := InferDicom("el deudor con dicom vigente", lex)
	assert.Equal(t, DicomFlagged, debtor)
	assert.Equal(t, DicomUnknown, borrower)
}
