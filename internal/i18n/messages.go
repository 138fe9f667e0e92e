package i18n

import (
	"errors"

	"github.com/pavelanni/learnpath/internal/model"
)

// MessageID names an entry of the locale catalog.
type MessageID string

const (
	MsgErrUnauthenticated MessageID = "ErrUnauthenticated"
	MsgErrInvalidInput    MessageID = "ErrInvalidInput"
	MsgErrNotFound        MessageID = "ErrNotFound"
	MsgErrInternal        MessageID = "ErrInternal"

	MsgRemedialTitle    MessageID = "RemedialTitle"
	MsgRemedialInfo     MessageID = "RemedialInfo"
	MsgRemedialScenario MessageID = "RemedialScenario"
	MsgRemedialTip      MessageID = "RemedialTip"
	// MsgMissedConcepts labels a remedial stub whose tags carried no usable text.
	MsgMissedConcepts MessageID = "MissedConcepts"
)

// catalog lists the ids every locale file must define.
var catalog = []MessageID{
	MsgErrUnauthenticated,
	MsgErrInvalidInput,
	MsgErrNotFound,
	MsgErrInternal,
	MsgRemedialTitle,
	MsgRemedialInfo,
	MsgRemedialScenario,
	MsgRemedialTip,
	MsgMissedConcepts,
}

// ErrorMessage returns the user-facing message for a domain error.
// Unclassified errors map to MsgErrInternal.
func ErrorMessage(err error) MessageID {
	switch {
	case errors.Is(err, model.ErrUnauthenticated):
		return MsgErrUnauthenticated
	case errors.Is(err, model.ErrInvalidInput):
		return MsgErrInvalidInput
	case errors.Is(err, model.ErrNotFound):
		return MsgErrNotFound
	}
	return MsgErrInternal
}
