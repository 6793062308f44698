package multiedit

import "errors"

var (
	ErrEditHistoryNotFound  = errors.New("multiedit: edit history row not found")
	ErrAmbiguousEditHistory = errors.New("multiedit: edit history ref is ambiguous")
	ErrMergeNotSupported    = errors.New("multiedit: edit history node has more than one previous, merges are not supported")
	ErrCakeRefRequired      = errors.New("multiedit: cakeRef is required for the first edit")
	ErrCakeRefForbidden     = errors.New("multiedit: cakeRef is only accepted for the first edit")
	ErrFirstEditNotSelection = errors.New("multiedit: the first edit of a new chain must be a selection")
	ErrUnsupportedEditType  = errors.New("multiedit: unsupported edit type")
)
