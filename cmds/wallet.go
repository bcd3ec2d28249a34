package cmds

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"
)

var WalletCmds = &cli.Command{
	Name:        "wallet",
	Usage:       "wallet cmds",
	Subcommands: []*cli.Command{getStateCmd, addAccountCmd, closeSessionCmd},
}

var getStateCmd = &cli.Command{
	Name:  "state",
	Flags: []cli.Flag{},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGatewayClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		state, err := api.GetState(cctx.Context)
		if err != nil {
			return err
		}
		stateBytes, err := json.MarshalIndent(state, " ", "\t")
		if err != nil {
			return err
		}
		fmt.Println(string(stateBytes))
		return nil
	},
}

var addAccountCmd = &cli.Command{
	Name:  "add-account",
	Usage: "create a fresh account in the signing service",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGatewayClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		addr, err := api.AddAccount(cctx.Context)
		if err != nil {
			return err
		}
		fmt.Println(addr)
		return nil
	},
}

var closeSessionCmd = &cli.Command{
	Name:      "close-session",
	Usage:     "tear down a connected session",
	ArgsUsage: "session-id",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGatewayClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		id := cctx.Args().Get(0)
		if id == "" {
			return fmt.Errorf("session-id is required")
		}
		if err := api.CloseSession(cctx.Context, id); err != nil {
			return err
		}
		fmt.Printf("closed %s\n", id)
		return nil
	},
}
