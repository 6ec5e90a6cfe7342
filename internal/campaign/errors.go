package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrContactNotFound   = errors.New("contact not found")
	ErrInvalidTargeting  = errors.New("campaign must target exactly one of audience or segment")
	ErrAlreadySending    = errors.New("campaign is already sending or sent")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotDraft          = errors.New("only draft campaigns may be modified")
	ErrNotFailed         = errors.New("delivery record is not in failed state")
	ErrEnqueueFailed     = errors.New("no recipient could be enqueued")
	ErrPastSchedule      = errors.New("scheduled time must be in the future")
)
