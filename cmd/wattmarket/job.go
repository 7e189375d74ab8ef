package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/jackiewangjingchun-cpu/wattcoin/models"
)

var jobCmd = &cli.Command{
	Name:  "job",
	Usage: "Inspect routed jobs",
	Subcommands: []*cli.Command{
		jobList,
		jobInfo,
		jobCancel,
	},
}

var jobList = &cli.Command{
	Name:  "list",
	Usage: "List jobs",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "status",
			Usage: "filter by status (pending, claimed, completed, expired, cancelled)",
		},
	},
	Action: func(cctx *cli.Context) error {
		mc, err := setupClient(cctx)
		if err != nil {
			return err
		}

		path := "/jobs"
		if status := cctx.String("status"); status != "" {
			path += "?status=" + status
		}

		var data struct {
			Count int          `json:"count"`
			Jobs  []models.Job `json:"jobs"`
		}
		if err := mc.get(path, &data); err != nil {
			return err
		}

		var jobData [][]string
		var rowColorList []RowColor
		for i, job := range data.Jobs {
			claimant := ""
			if job.ClaimantNodeId != nil {
				claimant = *job.ClaimantNodeId
			}
			jobData = append(jobData, []string{
				job.JobId,
				job.Capability,
				string(job.Status),
				claimant,
				strconv.FormatInt(job.TotalPayment, 10),
				strconv.FormatInt(job.NodeReward, 10),
				job.Deadline.Format("2006-01-02 15:04:05"),
			})

			var rowColor []tablewriter.Colors
			switch job.Status {
			case models.JobCompleted:
				rowColor = []tablewriter.Colors{{tablewriter.Bold, tablewriter.FgGreenColor}}
			case models.JobPending, models.JobClaimed:
				rowColor = []tablewriter.Colors{{tablewriter.Bold, tablewriter.FgYellowColor}}
			default:
				rowColor = []tablewriter.Colors{{tablewriter.Bold, tablewriter.FgRedColor}}
			}
			rowColorList = append(rowColorList, RowColor{
				row:    i,
				column: []int{2},
				color:  rowColor,
			})
		}

		header := []string{"JOB ID", "CAPABILITY", "STATUS", "CLAIMANT", "PAYMENT", "NODE REWARD", "DEADLINE"}
		NewVisualTable(header, jobData, rowColorList).Generate()
		fmt.Printf("\nTotal: %d\n", data.Count)
		return nil
	},
}

var jobInfo = &cli.Command{
	Name:      "info",
	Usage:     "Show one job",
	ArgsUsage: "[job_id]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("missing job_id argument")
		}
		mc, err := setupClient(cctx)
		if err != nil {
			return err
		}

		var job models.Job
		if err := mc.get("/jobs/"+cctx.Args().First(), &job); err != nil {
			return err
		}

		out, err := json.MarshalIndent(job, "", "  ")
		if err != nil {
			return err
		}
		os.Stdout.Write(append(out, '\n'))
		return nil
	},
}

var jobCancel = &cli.Command{
	Name:      "cancel",
	Usage:     "Cancel a pending job",
	ArgsUsage: "[job_id]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("missing job_id argument")
		}
		mc, err := setupClient(cctx)
		if err != nil {
			return err
		}

		jobId := cctx.Args().First()
		var data struct {
			JobId  string `json:"job_id"`
			Status string `json:"status"`
		}
		if err := mc.post("/jobs/"+jobId+"/cancel", nil, &data); err != nil {
			return err
		}
		fmt.Printf("job %s is now %s\n", data.JobId, data.Status)
		return nil
	},
}
