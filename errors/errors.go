package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrUserNotFound      = fmt.Errorf("user not found")
	ErrUserAlreadyExists = fmt.Errorf("user already exists")
	ErrUserDeactivated   = fmt.Errorf("user is deactivated")

	ErrGroupNotFound        = fmt.Errorf("group not found")
	ErrDuplicateGroupName   = fmt.Errorf("group name already in use")
	ErrGroupFull            = fmt.Errorf("group cannot accept more members")
	ErrAlreadyMember        = fmt.Errorf("user is already a member of the group")
	ErrNotMember            = fmt.Errorf("user is not a member of the group")
	ErrOwnerCannotLeave     = fmt.Errorf("owner cannot leave the group without transferring ownership")
	ErrCapacityBelowMembers = fmt.Errorf("cannot reduce capacity below current member count")

	ErrMessageNotFound = fmt.Errorf("message not found")
	ErrForbidden       = fmt.Errorf("operation not allowed for this user")

	ErrInvalidArgument    = fmt.Errorf("invalid argument")
	ErrEmptyContent       = fmt.Errorf("message content is empty")
	ErrContentTooLong     = fmt.Errorf("message content exceeds maximum length")
	ErrMissingRecipient   = fmt.Errorf("private message requires a recipient")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity requirements")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
)

// Kind buckets sentinel errors the way the external HTTP layer consumes them:
// conflicts and validation failures map to 400-class responses, the rest to 500.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
	KindInvalidArgument
	KindOwnerConstraint
)

func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case stderrors.Is(err, ErrUserNotFound),
		stderrors.Is(err, ErrGroupNotFound),
		stderrors.Is(err, ErrMessageNotFound):
		return KindNotFound
	case stderrors.Is(err, ErrForbidden),
		stderrors.Is(err, ErrInvalidCredentials):
		return KindForbidden
	case stderrors.Is(err, ErrDuplicateGroupName),
		stderrors.Is(err, ErrGroupFull),
		stderrors.Is(err, ErrAlreadyMember),
		stderrors.Is(err, ErrNotMember),
		stderrors.Is(err, ErrCapacityBelowMembers),
		stderrors.Is(err, ErrUserAlreadyExists):
		return KindConflict
	case stderrors.Is(err, ErrOwnerCannotLeave):
		return KindOwnerConstraint
	case stderrors.Is(err, ErrInvalidArgument),
		stderrors.Is(err, ErrEmptyContent),
		stderrors.Is(err, ErrContentTooLong),
		stderrors.Is(err, ErrMissingRecipient),
		stderrors.Is(err, ErrInvalidPassword):
		return KindInvalidArgument
	default:
		return KindUnknown
	}
}
