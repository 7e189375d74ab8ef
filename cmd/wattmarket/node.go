package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/jackiewangjingchun-cpu/wattcoin/models"
)

var nodeCmd = &cli.Command{
	Name:  "node",
	Usage: "Manage worker nodes",
	Subcommands: []*cli.Command{
		nodeList,
		nodeInfo,
		nodeSuspend,
		nodeReinstate,
	},
}

var nodeList = &cli.Command{
	Name:  "list",
	Usage: "List registered nodes",
	Action: func(cctx *cli.Context) error {
		mc, err := setupClient(cctx)
		if err != nil {
			return err
		}

		var data struct {
			Count int               `json:"count"`
			Live  int               `json:"live"`
			Nodes []models.NodeView `json:"nodes"`
		}
		if err := mc.get("/nodes", &data); err != nil {
			return err
		}

		var nodeData [][]string
		var rowColorList []RowColor
		for i, node := range data.Nodes {
			liveness := "OFFLINE"
			if node.Live {
				liveness = "LIVE"
			}
			nodeData = append(nodeData, []string{
				node.NodeId,
				node.Name,
				strings.Join(node.Capabilities, ","),
				string(node.Status),
				liveness,
				strconv.FormatInt(node.JobsCompleted, 10),
				strconv.FormatInt(node.JobsFailed, 10),
				strconv.FormatInt(node.TotalEarned, 10),
			})

			var rowColor []tablewriter.Colors
			if node.Live {
				rowColor = []tablewriter.Colors{{tablewriter.Bold, tablewriter.FgGreenColor}}
			} else {
				rowColor = []tablewriter.Colors{{tablewriter.Bold, tablewriter.FgRedColor}}
			}
			rowColorList = append(rowColorList, RowColor{
				row:    i,
				column: []int{4},
				color:  rowColor,
			})
		}

		header := []string{"NODE ID", "NAME", "CAPABILITIES", "STATUS", "LIVENESS", "COMPLETED", "FAILED", "EARNED"}
		NewVisualTable(header, nodeData, rowColorList).Generate()
		fmt.Printf("\nTotal: %d, live: %d\n", data.Count, data.Live)
		return nil
	},
}

var nodeSuspend = &cli.Command{
	Name:      "suspend",
	Usage:     "Take a node out of job eligibility",
	ArgsUsage: "[node_id]",
	Action: func(cctx *cli.Context) error {
		return setNodeStatus(cctx, "suspend")
	},
}

var nodeReinstate = &cli.Command{
	Name:      "reinstate",
	Usage:     "Return a suspended node to eligibility",
	ArgsUsage: "[node_id]",
	Action: func(cctx *cli.Context) error {
		return setNodeStatus(cctx, "reinstate")
	},
}

func setNodeStatus(cctx *cli.Context, action string) error {
	if cctx.NArg() != 1 {
		return fmt.Errorf("missing node_id argument")
	}
	mc, err := setupClient(cctx)
	if err != nil {
		return err
	}

	var data struct {
		NodeId string `json:"node_id"`
		Status string `json:"status"`
	}
	if err := mc.post("/nodes/"+cctx.Args().First()+"/"+action, nil, &data); err != nil {
		return err
	}
	fmt.Printf("node %s is now %s\n", data.NodeId, data.Status)
	return nil
}

var nodeInfo = &cli.Command{
	Name:      "info",
	Usage:     "Show one node",
	ArgsUsage: "[node_id]",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("missing node_id argument")
		}
		mc, err := setupClient(cctx)
		if err != nil {
			return err
		}

		var node models.NodeView
		if err := mc.get("/nodes/"+cctx.Args().First(), &node); err != nil {
			return err
		}

		out, err := json.MarshalIndent(node, "", "  ")
		if err != nil {
			return err
		}
		os.Stdout.Write(append(out, '\n'))
		return nil
	},
}
