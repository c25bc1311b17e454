package domain

// Domain errors
var (
	ErrNoEligibleRequest  = &DomainError{Message: "no eligible stock request"}
	ErrRequestNotFound    = &DomainError{Message: "stock request not found"}
	ErrClaimConflict      = &DomainError{Message: "stock request already claimed"}
	ErrPermissionDenied   = &DomainError{Message: "operator lacks the required capability"}
	ErrCompletionFailed   = &DomainError{Message: "downstream completion failed"}
	ErrClaimantNotFound   = &DomainError{Message: "stock request is not claimed"}
	ErrOperatorUnknown    = &DomainError{Message: "no active profile for chat"}
	ErrInvalidRequest     = &DomainError{Message: "invalid stock request"}
	ErrMissingDestination = &DomainError{Message: "move request requires a destination profile"}
)

// DomainError represents a domain-level error
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}
