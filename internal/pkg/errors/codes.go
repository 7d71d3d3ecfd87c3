package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrUnauthorized    = 1003
	ErrForbidden       = 1004
	ErrConflict        = 1005
	ErrTooManyRequests = 1006
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008

	// Telegram session errors (2000-2999)
	ErrNotAuthenticated = 2000
	ErrSessionBusy      = 2001
	ErrConnectTimeout   = 2002

	// Remote storage errors (3000-3999)
	ErrFloodWait              = 3000
	ErrReferenceExpired       = 3001
	ErrReferenceUnrecoverable = 3002
	ErrRemoteNotFound         = 3003
	ErrTransientNetwork       = 3004
	ErrRemoteUnavailable      = 3005

	// Catalog errors (4000-4999)
	ErrFileNotFound       = 4000
	ErrFolderNotFound     = 4001
	ErrFolderNotEmpty     = 4002
	ErrIntegrityViolation = 4003

	// Share errors (5000-5999)
	ErrShareNotFound         = 5000
	ErrShareDenied           = 5001
	ErrSharePasswordRequired = 5002

	// Scan errors (6000-6999)
	ErrScanBusy     = 6000
	ErrScanNotFound = 6001
)

// codeMap maps error codes to their details
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	// Common errors
	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrUnauthorized:    {ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	ErrForbidden:       {ErrForbidden, http.StatusForbidden, "Forbidden"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	// Telegram session errors
	ErrNotAuthenticated: {ErrNotAuthenticated, http.StatusUnauthorized, "Telegram session not authorized"},
	ErrSessionBusy:      {ErrSessionBusy, http.StatusConflict, "Telegram session busy"},
	ErrConnectTimeout:   {ErrConnectTimeout, http.StatusGatewayTimeout, "Telegram connect timeout"},

	// Remote storage errors
	ErrFloodWait:              {ErrFloodWait, http.StatusTooManyRequests, "Rate limited by Telegram"},
	ErrReferenceExpired:       {ErrReferenceExpired, http.StatusConflict, "File reference expired"},
	ErrReferenceUnrecoverable: {ErrReferenceUnrecoverable, http.StatusBadGateway, "File reference could not be refreshed"},
	ErrRemoteNotFound:         {ErrRemoteNotFound, http.StatusNotFound, "Remote message not found"},
	ErrTransientNetwork:       {ErrTransientNetwork, http.StatusBadGateway, "Transient network failure"},
	ErrRemoteUnavailable:      {ErrRemoteUnavailable, http.StatusBadGateway, "Remote storage unavailable"},

	// Catalog errors
	ErrFileNotFound:       {ErrFileNotFound, http.StatusNotFound, "File not found"},
	ErrFolderNotFound:     {ErrFolderNotFound, http.StatusNotFound, "Folder not found"},
	ErrFolderNotEmpty:     {ErrFolderNotEmpty, http.StatusConflict, "Folder is not empty"},
	ErrIntegrityViolation: {ErrIntegrityViolation, http.StatusConflict, "Catalog integrity violation"},

	// Share errors
	ErrShareNotFound:         {ErrShareNotFound, http.StatusNotFound, "Share link not found"},
	ErrShareDenied:           {ErrShareDenied, http.StatusForbidden, "Share link access denied"},
	ErrSharePasswordRequired: {ErrSharePasswordRequired, http.StatusForbidden, "Share link password required"},

	// Scan errors
	ErrScanBusy:     {ErrScanBusy, http.StatusConflict, "A scan is already running"},
	ErrScanNotFound: {ErrScanNotFound, http.StatusNotFound, "Scan job not found"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsClientError checks if the code represents a client error (4xx)
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// IsServerError checks if the code represents a server error (5xx)
func IsServerError(code int) bool {
	return GetHTTPStatus(code) >= 500
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
