package main

import (
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogging installs the root logger, mirroring the teacher's terminal
// color detection and rotating-file sink conventions: a color-capable
// terminal gets an ANSI handler, --log.file redirects to a lumberjack
// rotating writer instead, and anything else falls back to a plain
// uncolored stream.
func setupLogging(ctx *cli.Context) error {
	var handler log.Handler

	if file := ctx.String(logFileFlag.Name); file != "" {
		writer := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
		}
		handler = log.NewTerminalHandler(writer, false)
	} else if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = log.NewTerminalHandler(colorable.NewColorableStderr(), true)
	} else {
		handler = log.NewTerminalHandler(os.Stderr, false)
	}

	log.SetDefault(log.NewLogger(handler))
	return nil
}
