package domain

import (
	"errors"
	"fmt"
	"strings"
)

// MaxBatchSize is the largest selection accepted by a single submission.
const MaxBatchSize = 50

var (
	ErrEmptySelection     = errors.New("select at least one document")
	ErrSelectionTooLarge  = fmt.Errorf("cannot submit more than %d documents at once", MaxBatchSize)
	ErrMixedDocumentTypes = errors.New("all documents must be of the same type")
	ErrRetryNotAllowed    = errors.New("retry is only offered for documents in Error or Rejected state")
	ErrSendNotAllowed     = errors.New("document was already accepted by the invoicing backend")
)

// SelectionError is a rejected selection. It matches both ErrInvalidInput and
// its Reason under errors.Is.
type SelectionError struct {
	Reason error
	Detail string
}

func (e *SelectionError) Error() string {
	if e.Detail == "" {
		return e.Reason.Error()
	}
	return e.Reason.Error() + ": " + e.Detail
}

func (e *SelectionError) Unwrap() []error {
	return []error{ErrInvalidInput, e.Reason}
}

// ValidateSelection checks a set before submission: non-empty, at most
// MaxBatchSize entries, a single document type. The set is returned unchanged.
func ValidateSelection(set SelectionSet) (SelectionSet, error) {
	if err := RequireSelection(set); err != nil {
		return nil, err
	}
	if len(set) > MaxBatchSize {
		return nil, &SelectionError{
			Reason: ErrSelectionTooLarge,
			Detail: fmt.Sprintf("%d selected", len(set)),
		}
	}

	first := set[0].DocumentType
	for _, ref := range set[1:] {
		if ref.DocumentType != first {
			return nil, &SelectionError{
				Reason: ErrMixedDocumentTypes,
				Detail: fmt.Sprintf("found %q and %q", first, ref.DocumentType),
			}
		}
	}
	return set, nil
}

// RequireSelection only checks that something was selected and that every
// entry names a document.
func RequireSelection(set SelectionSet) error {
	if len(set) == 0 {
		return &SelectionError{Reason: ErrEmptySelection}
	}
	for i, ref := range set {
		if strings.TrimSpace(ref.DocumentID) == "" || strings.TrimSpace(string(ref.DocumentType)) == "" {
			return WrapError(ErrInvalidInput, "selection", fmt.Errorf("entry %d has no document type or id", i))
		}
	}
	return nil
}

// SelectionReason returns the user-facing reason of a rejected selection.
func SelectionReason(err error) string {
	var selErr *SelectionError
	if errors.As(err, &selErr) {
		return selErr.Reason.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
