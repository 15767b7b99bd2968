package main

import (
	"fmt"
	"io"

	"github.com/jeandeaual/go-locale"
	"github.com/logrusorgru/aurora/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/message"

	"github.com/S-YOU/nsemu/cache"
	"github.com/S-YOU/nsemu/emu"
)

// reporter prints errors and run summaries for people.
type reporter struct {
	w      io.Writer
	au     *aurora.Aurora
	logger logrus.FieldLogger
}

func newReporter(w io.Writer, color bool, logger logrus.FieldLogger) *reporter {
	return &reporter{
		w:      w,
		au:     aurora.New(aurora.WithColors(color)),
		logger: logger,
	}
}

// localePrinter formats numbers for the user's locale, falling back to
// en-US.
func localePrinter(logger logrus.FieldLogger) *message.Printer {
	return newLocalePrinter(logger, locale.GetLocales)
}

func newLocalePrinter(logger logrus.FieldLogger, getLocales func() ([]string, error)) *message.Printer {
	locales, err := getLocales()
	if err != nil {
		logger.Warnf("locale: %v", err)
	}

	if len(locales) == 0 {
		locales = []string{"en-US"}
	}

	return message.NewPrinter(message.MatchLanguage(locales...))
}

func (r *reporter) printError(err error) {
	msg := r.au.Colorize("error: "+err.Error(), aurora.RedFg|aurora.BrightFg|aurora.BoldFm)
	fmt.Fprintln(r.w, msg)
}

func (r *reporter) summary(programPath string, e *emu.Emulator, icache *cache.Cache) {
	printer := localePrinter(r.logger)

	fmt.Fprintf(r.w, "\nProgram: %s\n", programPath)
	printer.Fprintf(r.w, "Instructions executed: %d\n", e.InstructionCount())
	fmt.Fprintf(r.w, "Final PC: %s\n", r.au.Colorize(fmt.Sprintf("0x%X", e.RegFile().PC), aurora.YellowFg|aurora.BrightFg))

	if icache == nil {
		return
	}
	stats := icache.Stats()
	printer.Fprintf(r.w, "I-cache: %d hits, %d misses, %d evictions (%.1f%% hit rate)\n",
		stats.Hits, stats.Misses, stats.Evictions, 100*stats.HitRate())
}
