package sink

import (
	"io"

	"github.com/charmbracelet/log"
)

func discardIfNil(logger *log.Logger) *log.Logger {
	if logger != nil {
		return logger
	}
	return log.NewWithOptions(io.Discard, log.Options{})
}
