package service

import "errors"

// Error is a user-facing failure of a game command.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches errors by code so that detailed copies match their sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details}
}

func (e *Error) WithMessage(message string) *Error {
	return &Error{Code: e.Code, Message: message, Details: e.Details}
}

var (
	ErrInvalidInput     = &Error{Code: "invalid_input", Message: "invalid request"}
	ErrUsernameRequired = &Error{Code: "username_required", Message: "username required"}
	ErrAvatarTooLarge   = &Error{Code: "avatar_too_large", Message: "avatar image is too large"}
	ErrRoomNotFound     = &Error{Code: "room_not_found", Message: "room not found"}
	ErrNotInRoom        = &Error{Code: "not_in_room", Message: "not in room"}
	ErrAlreadyInRoom    = &Error{Code: "already_in_room", Message: "already in room"}
	ErrAlreadyConnected = &Error{Code: "already_connected", Message: "already connected"}
	ErrNotHost          = &Error{Code: "not_host", Message: "only host can do that"}
	ErrGameInProgress   = &Error{Code: "game_in_progress", Message: "game already started"}
	ErrNoGame           = &Error{Code: "no_game", Message: "no game in progress"}
	ErrNoEligible       = &Error{Code: "no_eligible", Message: "no eligible videos"}
	ErrNoLinks          = &Error{Code: "no_links", Message: "no video links found"}
	ErrInvalidToken     = &Error{Code: "invalid_token", Message: "import link expired or invalid"}
	ErrTryAgain         = &Error{Code: "try_again", Message: "try again"}
)
