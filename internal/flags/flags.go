// Package flags provides the urfave/cli scaffolding shared by Mnemosyne's
// command-line tools, mirroring the go-ethereum internal/flags idiom
// cmd/mive/main.go builds its app from: a categorized app skeleton plus a
// directory-valued flag type for path options.
package flags

import (
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

// Flag categories, grouping related options together in --help output.
const (
	LoggerCategory    = "LOGGER"
	TransportCategory = "TRANSPORT"
	StorageCategory   = "STORAGE"
	LoggingCategory   = "LOGGING"
	APICategory       = "API"
	MiscCategory      = "MISC"
)

// NewApp creates an app with the defaults every Mnemosyne CLI shares.
func NewApp(usage string) *cli.App {
	app := cli.NewApp()
	app.EnableBashCompletion = true
	app.Usage = usage
	return app
}

// DirectoryString is a flag.Value that expands a leading "~" to the
// user's home directory, for path-valued flags like database_path.
type DirectoryString string

func (d *DirectoryString) String() string { return string(*d) }

func (d *DirectoryString) Set(value string) error {
	*d = DirectoryString(expandHome(value))
	return nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	return home + path[1:]
}

// DirectoryFlag is a cli.Flag for directory-valued options, built on top
// of cli.GenericFlag the way geth's cmd/utils flags wrap DirectoryString.
func DirectoryFlag(name, value, usage, category string) *cli.GenericFlag {
	d := DirectoryString(expandHome(value))
	return &cli.GenericFlag{
		Name:     name,
		Usage:    usage,
		Category: category,
		Value:    &d,
	}
}
