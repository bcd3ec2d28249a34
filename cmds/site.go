package cmds

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"
)

var SiteCmds = &cli.Command{
	Name:        "site",
	Usage:       "manage authorized sites",
	Subcommands: []*cli.Command{listSitesCmd, revokeSiteCmd},
}

var listSitesCmd = &cli.Command{
	Name:  "list",
	Flags: []cli.Flag{},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGatewayClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		sites, err := api.ListSites(cctx.Context)
		if err != nil {
			return err
		}
		siteBytes, err := json.MarshalIndent(sites, " ", "\t")
		if err != nil {
			return err
		}
		fmt.Println(string(siteBytes))
		return nil
	},
}

var revokeSiteCmd = &cli.Command{
	Name:      "revoke",
	Usage:     "withdraw a site's authorization",
	ArgsUsage: "origin",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGatewayClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		origin := cctx.Args().Get(0)
		if origin == "" {
			return fmt.Errorf("origin is required")
		}
		if err := api.RevokeSite(cctx.Context, origin); err != nil {
			return err
		}
		fmt.Printf("revoked %s\n", origin)
		return nil
	},
}
