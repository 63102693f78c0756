package errors

import "errors"

var ErrInvalidRoomID = errors.New("invalid room id")
