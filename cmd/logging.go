package cmd

import (
	"fmt"
	"io"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/logfmt"
	"github.com/apex/log/handlers/text"
)

// setupLogging installs the apex handler for format on w.
func setupLogging(format string, verbose bool, w io.Writer) error {
	switch format {
	case "text":
		log.SetHandler(text.New(w))
	case "logfmt":
		log.SetHandler(logfmt.New(w))
	case "json":
		log.SetHandler(json.New(w))
	case "cli":
		log.SetHandler(cli.New(w))
	default:
		return fmt.Errorf("unknown log format %q (text, logfmt, json, cli)", format)
	}
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	return nil
}
