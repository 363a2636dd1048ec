package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/dmitrijs2005/vaultsync/internal/client/api"
	"github.com/dmitrijs2005/vaultsync/internal/common"
)

// Report prints err for a human.
func Report(w io.Writer, err error) {
	var ce *common.Error
	switch {
	case errors.Is(err, common.ErrInvalidPasswordOrKey):
		fmt.Fprintln(w, color.RedString("incorrect password"))
	case errors.Is(err, api.ErrUnavailable):
		fmt.Fprintln(w, color.YellowString("server unavailable")+", local changes are kept until the next sync")
	case errors.As(err, &ce):
		fmt.Fprintln(w, color.RedString("✗")+" "+describe(ce))
	default:
		fmt.Fprintln(w, color.RedString("✗")+" "+err.Error())
	}
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, color.GreenString("✓")+" "+fmt.Sprintf(format, args...))
}

// describe is the message of e followed by any plain cause it wraps.
func describe(e *common.Error) string {
	msg := e.Message
	for _, cause := range e.Unwrap() {
		var inner *common.Error
		if errors.As(cause, &inner) {
			continue
		}
		msg += ": " + cause.Error()
	}
	return msg
}
