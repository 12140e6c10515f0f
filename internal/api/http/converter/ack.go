package converter

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/clipguess/internal/service"
)

// AckFrame answers one client command.
type AckFrame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	OK      bool   `json:"ok"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

const internalError = "internal error"

func Ack(id string, data any) AckFrame {
	return AckFrame{Type: "ack", ID: id, OK: true, Data: data}
}

// AckError renders err for the client. Only game errors expose their message.
func AckError(id string, err error) AckFrame {
	frame := AckFrame{Type: "ack", ID: id, Error: internalError}
	var gameErr *service.Error
	if errors.As(err, &gameErr) {
		frame.Code = gameErr.Code
		frame.Error = gameErr.Message
		frame.Details = gameErr.Details
	}
	return frame
}

var statusByCode = map[string]int{
	service.ErrInvalidInput.Code:     http.StatusBadRequest,
	service.ErrUsernameRequired.Code: http.StatusBadRequest,
	service.ErrAvatarTooLarge.Code:   http.StatusRequestEntityTooLarge,
	service.ErrNoLinks.Code:          http.StatusBadRequest,
	service.ErrRoomNotFound.Code:     http.StatusNotFound,
	service.ErrInvalidToken.Code:     http.StatusNotFound,
	service.ErrNotInRoom.Code:        http.StatusForbidden,
	service.ErrNotHost.Code:          http.StatusForbidden,
	service.ErrGameInProgress.Code:   http.StatusConflict,
	service.ErrTryAgain.Code:         http.StatusServiceUnavailable,
}

// HTTPError maps err to a status code and JSON body.
func HTTPError(err error) (int, gin.H) {
	var gameErr *service.Error
	if !errors.As(err, &gameErr) {
		return http.StatusInternalServerError, gin.H{"error": internalError}
	}
	status, ok := statusByCode[gameErr.Code]
	if !ok {
		status = http.StatusUnprocessableEntity
	}
	body := gin.H{"error": gameErr.Message, "code": gameErr.Code}
	if gameErr.Details != nil {
		body["details"] = gameErr.Details
	}
	return status, body
}
