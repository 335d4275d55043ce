package funding

import (
	"encoding/json"
	"strings"

	"github.com/cumplo-spotter/cumplo-spotter/internal/textutil"
)

// Dicom is the tri-state credit blacklist marker. The zero value is unknown.
type Dicom int8

const (
	DicomUnknown Dicom = iota
	DicomClear
	DicomFlagged
)

// DicomOf converts a boolean into a known Dicom value.
func DicomOf(flagged bool) Dicom {
	if flagged {
		return DicomFlagged
	}
	return DicomClear
}

func (d Dicom) Flagged() bool { return d == DicomFlagged }

func (d Dicom) Known() bool { return d != DicomUnknown }

func (d Dicom) String() string {
	switch d {
	case DicomFlagged:
		return "flagged"
	case DicomClear:
		return "clear"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the marker as true, false or null.
func (d Dicom) MarshalJSON() ([]byte, error) {
	switch d {
	case DicomFlagged:
		return []byte("true"), nil
	case DicomClear:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (d *Dicom) UnmarshalJSON(data []byte) error {
	var v *bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v == nil {
		*d = DicomUnknown
		return nil
	}
	*d = DicomOf(*v)
	return nil
}

// Lexicon holds the phrases used to infer DICOM status from a borrower description.
// Phrases must already be cleaned: lowercase and without diacritics.
type Lexicon struct {
	BothPositive     string   `mapstructure:"both-positive"`
	BothNegative     string   `mapstructure:"both-negative"`
	DebtorPositive   string   `mapstructure:"debtor-positive"`
	BorrowerPositive []string `mapstructure:"borrower-positive"`
	BorrowerNegative string   `mapstructure:"borrower-negative"`
	SingleNegative   []string `mapstructure:"single-negative"`
	SinglePositive   []string `mapstructure:"single-positive"`
}

// DefaultLexicon matches the wording the marketplace uses in its descriptions.
var DefaultLexicon = Lexicon{
	BothPositive:     "solicitante y pagador con dicom",
	BothNegative:     "solicitante y pagador sin dicom",
	DebtorPositive:   "pagador con dicom",
	BorrowerPositive: []string{"solicitante con dicom", "cliente con dicom"},
	BorrowerNegative: "solicitante sin dicom",
	SingleNegative:   []string{"no presenta dicom", "no registra dicom", "dicom al dia"},
	SinglePositive:   []string{"presenta dicom", "registra dicom"},
}

// Override returns the lexicon with every phrase set in o replacing the current one.
// Phrases from o are cleaned first, so configuration files may use any casing or accents.
func (l Lexicon) Override(o Lexicon) Lexicon {
	replace := func(dst *string, src string) {
		if cleaned := textutil.Clean(src); cleaned != "" {
			*dst = cleaned
		}
	}
	replaceAll := func(dst *[]string, src []string) {
		if len(src) == 0 {
			return
		}
		cleaned := make([]string, 0, len(src))
		for _, phrase := range src {
			if c := textutil.Clean(phrase); c != "" {
				cleaned = append(cleaned, c)
			}
		}
		*dst = cleaned
	}

	replace(&l.BothPositive, o.BothPositive)
	replace(&l.BothNegative, o.BothNegative)
	replace(&l.DebtorPositive, o.DebtorPositive)
	replace(&l.BorrowerNegative, o.BorrowerNegative)
	replaceAll(&l.BorrowerPositive, o.BorrowerPositive)
	replaceAll(&l.SingleNegative, o.SingleNegative)
	replaceAll(&l.SinglePositive, o.SinglePositive)
	return l
}

// InferDicom derives the debtor and borrower DICOM markers from a cleaned description.
func InferDicom(description string, lex Lexicon) (debtor, borrower Dicom) {
	if containsPhrase(description, lex.BothPositive) {
		return DicomFlagged, DicomFlagged
	}

	if containsPhrase(description, lex.BothNegative) {
		return DicomClear, DicomClear
	}

	if containsPhrase(description, lex.DebtorPositive) {
		debtor = DicomFlagged
	}

	switch {
	case containsAny(description, lex.BorrowerPositive):
		borrower = DicomFlagged
	case containsPhrase(description, lex.BorrowerNegative):
		borrower = DicomClear
	case containsAny(description, lex.SingleNegative):
		borrower = DicomClear
	case containsAny(description, lex.SinglePositive):
		borrower = DicomFlagged
	}

	return debtor, borrower
}

// empty phrases never match
func containsPhrase(text, phrase string) bool {
	return phrase != "" && strings.Contains(text, phrase)
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if containsPhrase(text, phrase) {
			return true
		}
	}
	return false
}
