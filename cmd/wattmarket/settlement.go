package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/jackiewangjingchun-cpu/wattcoin/models"
)

var settlementCmd = &cli.Command{
	Name:  "settlement",
	Usage: "Inspect and retry payout receipts",
	Subcommands: []*cli.Command{
		settlementInfo,
		settlementRetry,
	},
}

var settlementInfo = &cli.Command{
	Name:      "info",
	Usage:     "Show the receipt for a job",
	ArgsUsage: "[job_id]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("missing job_id argument")
		}
		mc, err := setupClient(cctx)
		if err != nil {
			return err
		}

		var receipt models.SettlementReceipt
		if err := mc.get("/settlements/"+cctx.Args().First(), &receipt); err != nil {
			return err
		}
		printReceipt(&receipt)
		return nil
	},
}

var settlementRetry = &cli.Command{
	Name:      "retry",
	Usage:     "Re-drive the payout for a job that is not yet paid",
	ArgsUsage: "[job_id]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("missing job_id argument")
		}
		mc, err := setupClient(cctx)
		if err != nil {
			return err
		}

		var receipt models.SettlementReceipt
		if err := mc.post("/settlements/"+cctx.Args().First()+"/retry", nil, &receipt); err != nil {
			return err
		}
		printReceipt(&receipt)
		return nil
	},
}

func printReceipt(receipt *models.SettlementReceipt) {
	outcome := color.New(color.Bold, color.FgRed)
	switch receipt.Outcome {
	case models.SettlementPaid:
		outcome = color.New(color.Bold, color.FgGreen)
	case models.SettlementQueuedManual:
		outcome = color.New(color.Bold, color.FgYellow)
	}

	fmt.Printf("Receipt:   %s\n", receipt.ReceiptId)
	fmt.Printf("Job:       %s\n", receipt.JobId)
	fmt.Printf("Recipient: %s\n", receipt.Recipient)
	fmt.Printf("Amount:    %d\n", receipt.Amount)
	fmt.Printf("Outcome:   %s\n", outcome.Sprint(string(receipt.Outcome)))
	fmt.Printf("Attempts:  %d\n", receipt.Attempts)
	if receipt.ExternalRef != nil {
		fmt.Printf("Ref:       %s\n", *receipt.ExternalRef)
	}
	if receipt.Error != nil {
		fmt.Printf("Error:     %s\n", *receipt.Error)
	}
}
