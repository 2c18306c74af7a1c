package services

import (
	"errors"

	"gorm.io/gorm"

	"github.com/DarshiBhavsar/chat-app-sub000/pkg/apperr"
)

var (
	ErrUserNotFound      = apperr.NotFound("user not found")
	ErrStatusNotFound    = apperr.NotFound("status not found")
	ErrMessageNotFound   = apperr.NotFound("message not found")
	ErrGroupNotFound     = apperr.NotFound("group not found")
	ErrRequestNotFound   = apperr.NotFound("friend request not found")
	ErrNotFriends        = apperr.NotFound("not friends with this user")
	ErrNotBlocked        = apperr.NotFound("user is not blocked")
	ErrNotGroupMember    = apperr.NotFound("user is not a member of this group")
	ErrReceiptNotFound   = apperr.NotFound("no delivery record for this message")
	ErrStatusForbidden   = apperr.Forbidden("you cannot view this status")
	ErrNotStatusOwner    = apperr.Forbidden("only the owner can do this")
	ErrBlocked           = apperr.Forbidden("user is blocked")
	ErrNotAdmin          = apperr.Forbidden("only the group admin can do this")
	ErrNotMember         = apperr.Forbidden("you are not a member of this group")
	ErrNotSender         = apperr.Forbidden("only the sender can do this")
	ErrNotRecipient      = apperr.Forbidden("only the recipient can do this")
	ErrAlreadyFriends    = apperr.Conflict("already friends")
	ErrRequestExists     = apperr.Conflict("friend request already sent")
	ErrRequestIncoming   = apperr.Conflict("this user already sent you a friend request")
	ErrAlreadyBlocked    = apperr.Conflict("user is already blocked")
	ErrAlreadyMember     = apperr.Conflict("user is already a member")
	ErrUserNameTaken     = apperr.Conflict("username already exists")
	ErrEmailTaken        = apperr.Conflict("email already exists")
	ErrInvalidCredential = apperr.Unauthorized("invalid credentials")
	ErrSelfAction        = apperr.Validation("cannot do this to yourself")
	ErrEmptyUpdate       = apperr.Validation("nothing to update")
)

// lookup maps gorm.ErrRecordNotFound to notFound and any other failure to an
// upstream error.
func lookup(err, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return apperr.Upstream("database error", err)
}

func upstream(err error) error {
	if err == nil {
		return nil
	}
	return apperr.Upstream("database error", err)
}
