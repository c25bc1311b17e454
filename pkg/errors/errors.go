package errors

import (
	"fmt"
	"net/http"
)

// StandardError represents a standardized error response
type StandardError struct {
	Code    string `json:"error"`   // Error code/type (e.g., "InvalidRequest", "RequestNotFound")
	Message string `json:"message"` // Human-readable error message
	Details string `json:"details"` // Additional details (field name, identifiers, etc.)
}

// Error implements the error interface
func (e *StandardError) Error() string {
	return e.Message
}

// HTTPStatus returns the appropriate HTTP status code for the error
func (e *StandardError) HTTPStatus() int {
	switch e.Code {
	case "InvalidRequest", "ValidationError":
		return http.StatusBadRequest
	case "Unauthorized":
		return http.StatusUnauthorized
	case "Forbidden":
		return http.StatusForbidden
	case "RequestNotFound", "ClaimantNotFound", "ResourceNotFound":
		return http.StatusNotFound
	case "ClaimConflict", "Conflict":
		return http.StatusConflict
	case "BrokerConnectionError", "ServiceUnavailable", "TransportError":
		return http.StatusServiceUnavailable
	case "SerializationError", "DatabaseError", "InternalError":
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NewStandardError creates a new StandardError
func NewStandardError(errorCode, message, details string) *StandardError {
	return &StandardError{
		Code:    errorCode,
		Message: message,
		Details: details,
	}
}

// Common error constructors
func NewInvalidRequest(message, details string) *StandardError {
	return NewStandardError("InvalidRequest", message, details)
}

func NewValidationError(message, field string) *StandardError {
	return NewStandardError("ValidationError", message, fmt.Sprintf("Field: %s", field))
}

func NewUnauthorized(message, details string) *StandardError {
	return NewStandardError("Unauthorized", message, details)
}

func NewRequestNotFound(requestID string) *StandardError {
	return NewStandardError("RequestNotFound", "stock request not found", fmt.Sprintf("Request ID: %s", requestID))
}

func NewClaimantNotFound(requestID string) *StandardError {
	return NewStandardError("ClaimantNotFound", "stock request is not claimed", fmt.Sprintf("Request ID: %s", requestID))
}

func NewDatabaseError(operation string, err error) *StandardError {
	return NewStandardError("DatabaseError", fmt.Sprintf("database operation failed: %s", operation), err.Error())
}

func NewTransportError(err error) *StandardError {
	return NewStandardError("TransportError", "failed to deliver chat notification", err.Error())
}

func NewInternalError(message string, err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return NewStandardError("InternalError", message, details)
}
