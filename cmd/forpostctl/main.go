package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/forpostctl/cmd/forpostctl/commands"
	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
	"git.home.luguber.info/inful/forpostctl/internal/version"
)

func main() {
	var cli commands.CLI
	parser := kong.Parse(&cli,
		kong.Name("forpostctl"),
		kong.Description("Configuration and artifact lifecycle manager for the forpost streaming appliance."),
		kong.UsageOnError(),
		commands.Vars(version.Get().String()),
	)
	err := parser.Run(&commands.Global{Ctx: context.Background(), Out: os.Stdout}, &cli)
	errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
