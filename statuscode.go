package mailauth

import (
	"strconv"
)

// StatusCode is a raw reply code as sent by the server.
//
// The named values are the SMTP reply codes defined in RFC 5321 section 4.2,
// RFC 4954 and RFC 3207.
type StatusCode int

const (
	StatusSystemStatus            StatusCode = 211
	StatusHelpMessage             StatusCode = 214
	StatusServiceReady            StatusCode = 220
	StatusServiceClosing          StatusCode = 221
	StatusAuthenticationSucceeded StatusCode = 235
	StatusOK                      StatusCode = 250
	StatusUserNotLocalWillForward StatusCode = 251
	StatusCannotVerifyUser        StatusCode = 252

	StatusAuthenticationChallenge StatusCode = 334 // RFC 4954
	StatusStartMailInput          StatusCode = 354

	StatusServiceNotAvailable          StatusCode = 421
	StatusPasswordTransitionNeeded     StatusCode = 432 // RFC 4954
	StatusMailboxBusy                  StatusCode = 450
	StatusErrorInProcessing            StatusCode = 451
	StatusInsufficientStorage          StatusCode = 452
	StatusTemporaryAuthenticationError StatusCode = 454 // RFC 4954
	StatusParametersNotAccommodated    StatusCode = 455

	StatusCommandUnrecognized          StatusCode = 500
	StatusSyntaxError                  StatusCode = 501
	StatusCommandNotImplemented        StatusCode = 502
	StatusBadCommandSequence           StatusCode = 503
	StatusParameterNotImplemented      StatusCode = 504
	StatusAuthenticationRequired       StatusCode = 530 // RFC 4954
	StatusAuthenticationMechanismWeak  StatusCode = 534 // RFC 4954
	StatusAuthenticationInvalid        StatusCode = 535 // RFC 4954
	StatusEncryptionRequiredForAuth    StatusCode = 538 // RFC 4954
	StatusMailboxUnavailable           StatusCode = 550
	StatusUserNotLocalTryAlternatePath StatusCode = 551
	StatusExceededStorageAllocation    StatusCode = 552
	StatusMailboxNameNotAllowed        StatusCode = 553
	StatusTransactionFailed            StatusCode = 554
	StatusParametersNotRecognized      StatusCode = 555
)

var statusCodeNames = map[StatusCode]string{
	StatusSystemStatus:                 "system status",
	StatusHelpMessage:                  "help message",
	StatusServiceReady:                 "service ready",
	StatusServiceClosing:               "service closing transmission channel",
	StatusAuthenticationSucceeded:      "authentication succeeded",
	StatusOK:                           "ok",
	StatusUserNotLocalWillForward:      "user not local, will forward",
	StatusCannotVerifyUser:             "cannot verify user, will attempt delivery",
	StatusAuthenticationChallenge:      "authentication challenge",
	StatusStartMailInput:               "start mail input",
	StatusServiceNotAvailable:          "service not available",
	StatusPasswordTransitionNeeded:     "password transition needed",
	StatusMailboxBusy:                  "mailbox busy",
	StatusErrorInProcessing:            "error in processing",
	StatusInsufficientStorage:          "insufficient storage",
	StatusTemporaryAuthenticationError: "temporary authentication failure",
	StatusParametersNotAccommodated:    "parameters cannot be accommodated",
	StatusCommandUnrecognized:          "command unrecognized",
	StatusSyntaxError:                  "syntax error",
	StatusCommandNotImplemented:        "command not implemented",
	StatusBadCommandSequence:           "bad command sequence",
	StatusParameterNotImplemented:      "command parameter not implemented",
	StatusAuthenticationRequired:       "authentication required",
	StatusAuthenticationMechanismWeak:  "authentication mechanism too weak",
	StatusAuthenticationInvalid:        "authentication credentials invalid",
	StatusEncryptionRequiredForAuth:    "encryption required for authentication mechanism",
	StatusMailboxUnavailable:           "mailbox unavailable",
	StatusUserNotLocalTryAlternatePath: "user not local, try alternate path",
	StatusExceededStorageAllocation:    "exceeded storage allocation",
	StatusMailboxNameNotAllowed:        "mailbox name not allowed",
	StatusTransactionFailed:            "transaction failed",
	StatusParametersNotRecognized:      "MAIL FROM/RCPT TO parameters not recognized",
}

func (code StatusCode) String() string {
	if s, ok := statusCodeNames[code]; ok {
		return s
	}
	return strconv.Itoa(int(code))
}

// IsPositive reports whether the code denotes a positive completion (2xx).
func (code StatusCode) IsPositive() bool {
	return code >= 200 && code < 300
}

// IsIntermediate reports whether the code denotes a positive intermediate
// reply (3xx), e.g. an authentication challenge.
func (code StatusCode) IsIntermediate() bool {
	return code >= 300 && code < 400
}

// IsTransient reports whether the code denotes a transient negative
// completion (4xx).
func (code StatusCode) IsTransient() bool {
	return code >= 400 && code < 500
}

// IsPermanent reports whether the code denotes a permanent negative
// completion (5xx).
func (code StatusCode) IsPermanent() bool {
	return code >= 500 && code < 600
}
