// Package service holds the marketplace business rules: the listing and
// conversation lifecycles, message delivery, moderation and reviews.
// Every exported operation returns either nil or a *Error whose Kind tells
// the HTTP layer how to render it.
package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/secondhand-market/internal/repository"
)

// Kind classifies a service failure.
type Kind int

const (
	KindUnauthenticated Kind = iota + 1
	KindUnauthorized
	KindValidation
	KindConflict
	KindNotFound
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindStore:
		return "store"
	}
	return "unknown"
}

// Error is the structured failure returned by every service operation.
// Msg is safe to show to the caller; Err is the underlying cause, if any.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, KindStore for foreign errors and 0 for nil.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindStore
}

// User-visible messages shared by several operations.
const (
	MsgNotAuthorized    = "Not authorized"
	MsgSignInRequired   = "Sign in required"
	MsgSuspended        = "Your account is suspended"
	MsgReasonTooShort   = "Reason must be at least 10 characters"
	MsgAlreadyReviewed  = "Item already reviewed"
	MsgActiveConvos     = "Listing has active conversations"
	MsgListingNotFound  = "Listing not found"
	MsgConvNotFound     = "Conversation not found"
	MsgAccountNotFound  = "Account not found"
	MsgStoreUnavailable = "Something went wrong, please try again"
)

func unauthenticated() error { return &Error{Kind: KindUnauthenticated, Msg: MsgSignInRequired} }

func unauthorized(msg string) error {
	if msg == "" {
		msg = MsgNotAuthorized
	}
	return &Error{Kind: KindUnauthorized, Msg: msg}
}

func invalid(msg string) error  { return &Error{Kind: KindValidation, Msg: msg} }
func conflict(msg string) error { return &Error{Kind: KindConflict, Msg: msg} }
func notFound(msg string) error { return &Error{Kind: KindNotFound, Msg: msg} }

func storeFailure(err error) error {
	return &Error{Kind: KindStore, Msg: MsgStoreUnavailable, Err: err}
}

// fromStore maps a repository error: ErrNotFound becomes NotFound with
// msg, anything else a store failure.
func fromStore(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return &Error{Kind: KindNotFound, Msg: msg, Err: err}
	}
	return storeFailure(err)
}
