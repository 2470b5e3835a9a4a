// Package agenterr defines the single result/error taxonomy shared by every
// layer of the device agent, mirroring the closed set of outcomes a
// constrained device firmware would return from a fallible call.
package agenterr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of outcomes a device-agent operation can report.
type Kind int

const (
	// Ok is never returned as an error value; it exists so Kind has a
	// documented zero-equivalent for logging and metrics.
	Ok Kind = iota
	InvalidParam
	OutOfMemory
	InterfaceAlreadyPresent
	InterfaceNotFound
	MappingNotFound
	MappingPathMismatch
	MappingIncompatible
	BsonError
	HTTPRequest
	SocketError
	Crypto
	MqttError
	MqttClientAlreadyConnecting
	MqttClientAlreadyConnected
	DeviceNotReady
	CachingError
	OutdatedIntrospection
	Timeout
	NotFound
	Internal
)

var kindNames = map[Kind]string{
	Ok:                          "Ok",
	InvalidParam:                "InvalidParam",
	OutOfMemory:                 "OutOfMemory",
	InterfaceAlreadyPresent:     "InterfaceAlreadyPresent",
	InterfaceNotFound:           "InterfaceNotFound",
	MappingNotFound:             "MappingNotFound",
	MappingPathMismatch:         "MappingPathMismatch",
	MappingIncompatible:         "MappingIncompatible",
	BsonError:                   "BsonError",
	HTTPRequest:                 "HttpRequest",
	SocketError:                 "SocketError",
	Crypto:                      "Crypto",
	MqttError:                   "MqttError",
	MqttClientAlreadyConnecting: "MqttClientAlreadyConnecting",
	MqttClientAlreadyConnected:  "MqttClientAlreadyConnected",
	DeviceNotReady:              "DeviceNotReady",
	CachingError:                "CachingError",
	OutdatedIntrospection:       "OutdatedIntrospection",
	Timeout:                     "Timeout",
	NotFound:                    "NotFound",
	Internal:                    "Internal",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the concrete error type every fallible operation in this module
// returns. It always carries a Kind so callers can switch on outcome class
// without string matching, and an Op identifying the failing operation for
// logs, plus an optional wrapped cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, letting callers
// write `errors.Is(err, agenterr.New(agenterr.NotFound, ...))`-free checks via
// errors.Is(err, agenterr.KindError(agenterr.NotFound)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap builds an *Error that wraps cause, used when a lower layer (redis,
// the MQTT client, net/http) already returned a Go error and this layer just
// needs to classify it.
func Wrap(kind Kind, op string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Op: op, Message: msg, Cause: cause}
}

// KindError is a sentinel carrying only a Kind, suitable as the target of
// errors.Is(err, agenterr.KindError(agenterr.NotFound)).
func KindError(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Is reports whether err is an *agenterr.Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
