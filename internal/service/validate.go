package service

import (
	"strings"

	"github.com/fathima-sithara/messaging-core/internal/apperrors"
	"github.com/fathima-sithara/messaging-core/internal/utils"
)

type reactCommand struct {
	MessageID int64  `validate:"gt=0"`
	UserID    int64  `validate:"gt=0"`
	Emoji     string `validate:"required,max=64"`
}

type pairCommand struct {
	Me    int64 `validate:"gt=0"`
	Other int64 `validate:"gt=0,nefield=Me"`
}

// checkCommand runs cmd's validate tags and reports failures as the domain
// error callers match on.
func checkCommand(cmd any) error {
	errs := utils.ValidateStruct(cmd)
	if len(errs) == 0 {
		return nil
	}
	for _, e := range errs {
		switch {
		case strings.Contains(e.Namespace, ".Envelope."):
			return apperrors.ErrInvalidEnvelope
		case e.Tag == "nefield":
			return apperrors.ErrInvalidPair
		case strings.HasSuffix(e.Namespace, ".Emoji"):
			return apperrors.ErrInvalidEmoji
		}
	}
	return apperrors.InvalidArg(utils.Join(errs))
}
