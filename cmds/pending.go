package cmds

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/web3-force/dapp-gateway/types"
)

var PendingCmds = &cli.Command{
	Name:        "pending",
	Usage:       "inspect and decide requests awaiting approval",
	Subcommands: []*cli.Command{listPendingCmd, approvePendingCmd, rejectPendingCmd},
}

var listPendingCmd = &cli.Command{
	Name:  "list",
	Flags: []cli.Flag{},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGatewayClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		pending, err := api.ListPending(cctx.Context)
		if err != nil {
			return err
		}
		pendingBytes, err := json.MarshalIndent(pending, " ", "\t")
		if err != nil {
			return err
		}
		fmt.Println(string(pendingBytes))
		return nil
	},
}

var approvePendingCmd = &cli.Command{
	Name:      "approve",
	Usage:     "approve one pending request",
	ArgsUsage: "request-id",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "account",
			Usage: "share only these accounts when approving a connect request",
		},
	},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGatewayClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		id := cctx.Args().Get(0)
		if id == "" {
			return fmt.Errorf("request-id is required")
		}
		var extra *types.DecideExtra
		if accounts := cctx.StringSlice("account"); len(accounts) > 0 {
			extra = &types.DecideExtra{SelectedAccounts: accounts}
		}
		if err := api.Decide(cctx.Context, id, types.OutcomeApprove, extra); err != nil {
			return err
		}
		fmt.Printf("approved %s\n", id)
		return nil
	},
}

var rejectPendingCmd = &cli.Command{
	Name:      "reject",
	Usage:     "reject one pending request",
	ArgsUsage: "request-id",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewGatewayClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		id := cctx.Args().Get(0)
		if id == "" {
			return fmt.Errorf("request-id is required")
		}
		if err := api.Decide(cctx.Context, id, types.OutcomeReject, nil); err != nil {
			return err
		}
		fmt.Printf("rejected %s\n", id)
		return nil
	},
}
