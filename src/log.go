package t30

/*------------------------------------------------------------------
 *
 * Purpose:	Thin structured-logging wrapper, replacing the original
 *		project's text_color_set()/dw_printf() console reporting
 *		with github.com/charmbracelet/log key/value logging.
 *
 *------------------------------------------------------------------*/

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	defaultLoggerOnce sync.Once
	defaultLoggerInst *log.Logger
)

func defaultLogger() *log.Logger {
	defaultLoggerOnce.Do(func() {
		defaultLoggerInst = log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "t30",
			Level:  log.WarnLevel,
		})
	})
	return defaultLoggerInst
}

// loggerFor returns l if non-nil, otherwise the package default.
func loggerFor(l *log.Logger) *log.Logger {
	if l != nil {
		return l
	}
	return defaultLogger()
}
