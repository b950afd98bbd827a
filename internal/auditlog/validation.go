package auditlog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

type VerificationError struct {
	EntryIndex int
	Reason     string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification failed at entry %d: %s", e.EntryIndex, e.Reason)
}

// Validator checks entries in chain order. A nil verifier skips signature checks.
type Validator struct {
	verifier Verifier
	prevHash []byte
	index    int
}

func NewValidator(verifier Verifier) *Validator {
	return &Validator{verifier: verifier}
}

func (v *Validator) ValidateEntry(entry *Entry) error {
	if !bytes.Equal(entry.CalculateHash(), entry.Hash) {
		return &VerificationError{v.index, "entry hash mismatch: data corruption detected"}
	}

	if v.index == 0 {
		if entry.Type != EntryTypeGenesis {
			return &VerificationError{v.index, "first entry is not GENESIS"}
		}
		if !bytes.Equal(entry.PreviousHash, genesisPreviousHash[:]) {
			return &VerificationError{v.index, "genesis previous hash invalid"}
		}
	} else {
		if entry.Type != EntryTypeCheck {
			return &VerificationError{v.index, fmt.Sprintf("unexpected entry type %s", entry.Type)}
		}
		if entry.Check == nil {
			return &VerificationError{v.index, "check entry without details"}
		}
		if !bytes.Equal(entry.PreviousHash, v.prevHash) {
			return &VerificationError{v.index, fmt.Sprintf("chain break: expected prev hash %x, got %x", v.prevHash, entry.PreviousHash)}
		}
	}

	if v.verifier != nil && !v.verifier.Verify(entry.Hash, entry.Signature) {
		return &VerificationError{v.index, "entry signature invalid"}
	}

	v.prevHash = entry.Hash
	v.index++
	return nil
}

// LastHash is the hash the next entry must link to.
func (v *Validator) LastHash() []byte {
	return v.prevHash
}

// ValidateChain reads and validates a whole log and returns the number of check entries.
func ValidateChain(r io.Reader, verifier Verifier) (int, error) {
	validator := NewValidator(verifier)
	decoder := NewDecoder(r)
	for {
		entry, err := decoder.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, &VerificationError{validator.index, err.Error()}
		}
		err = validator.ValidateEntry(entry)
		if err != nil {
			return 0, err
		}
	}
	if validator.index == 0 {
		return 0, &VerificationError{0, "log is empty"}
	}
	return validator.index - 1, nil
}
