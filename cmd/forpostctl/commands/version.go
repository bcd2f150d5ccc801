package commands

import (
	"fmt"
	"io"

	"git.home.luguber.info/inful/forpostctl/internal/version"
)

// VersionCmd implements 'version'.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Global, root *CLI) error {
	info := version.Get()
	return emit(g, root, info, func(w io.Writer) {
		fmt.Fprintln(w, info.String())
	})
}
