package cmds

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"
)

var ChainCmds = &cli.Command{
	Name:        "chain",
	Usage:       "manage the chain allow list",
	Subcommands: []*cli.Command{listChainsCmd, switchChainCmd, setChainProxyCmd},
}

var listChainsCmd = &cli.Command{
	Name:  "list",
	Flags: []cli.Flag{},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGatewayClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		chains, err := api.ListChains(cctx.Context)
		if err != nil {
			return err
		}
		chainBytes, err := json.MarshalIndent(chains, " ", "\t")
		if err != nil {
			return err
		}
		fmt.Println(string(chainBytes))
		return nil
	},
}

var switchChainCmd = &cli.Command{
	Name:      "switch",
	Usage:     "switch the wallet's selected chain",
	ArgsUsage: "chain-id",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGatewayClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		chainID := cctx.Args().Get(0)
		if chainID == "" {
			return fmt.Errorf("chain-id is required")
		}
		if err := api.SwitchChain(cctx.Context, chainID); err != nil {
			return err
		}
		fmt.Printf("switched to %s\n", chainID)
		return nil
	},
}

var setChainProxyCmd = &cli.Command{
	Name:  "set-proxy",
	Usage: "set the reverse proxy for a chain (or unset with an empty url)",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "chain-id",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "the url will redirect to",
		},
	},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGatewayClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		chainID := cctx.String("chain-id")
		u := cctx.String("url")
		if err := api.RegisterReverse(cctx.Context, chainID, u); err != nil {
			return err
		}

		if u == "" {
			fmt.Printf("unset proxy for %s\n", chainID)
			return nil
		}
		fmt.Printf("set proxy for %s to %s\n", chainID, u)
		return nil
	},
}
