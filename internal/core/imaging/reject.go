package imaging

import (
	"errors"
	"fmt"
)

// Reason identifies why an upload was rejected
type Reason string

// Rejection reasons, surfaced verbatim to the submitter
const (
	TooLarge        Reason = "too_large"
	UnknownType     Reason = "unknown_type"
	UnsupportedType Reason = "unsupported_type"
	CorruptImage    Reason = "corrupt_image"
)

// RejectError is a user-correctable validation failure
type RejectError struct {
	Reason Reason
	detail string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("upload rejected (%s): %s", e.Reason, e.detail)
}

func rejectf(reason Reason, format string, a ...any) error {
	return &RejectError{Reason: reason, detail: fmt.Sprintf(format, a...)}
}

// ReasonOf extracts the rejection reason from err, if it is a RejectError
func ReasonOf(err error) (Reason, bool) {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}
