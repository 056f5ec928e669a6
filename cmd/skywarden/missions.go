package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zypherlabs/skywarden/internal/model"
)

var missionsFlags struct {
	status string
}

var missionsCmd = &cobra.Command{
	Use:   "missions",
	Short: "List missions with status and finding counts",
	RunE:  runMissions,
}

func init() {
	rootCmd.AddCommand(missionsCmd)

	missionsCmd.Flags().StringVar(&missionsFlags.status, "status", "", "filter by status (draft|active|paused|completed|aborted)")
}

func runMissions(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	status := model.MissionStatus(missionsFlags.status)
	if missionsFlags.status != "" && !status.Valid() {
		return fmt.Errorf("unknown status %q", missionsFlags.status)
	}
	missions, err := a.store.ListMissions(status)
	if err != nil {
		return err
	}
	if len(missions) == 0 {
		fmt.Println("No missions found.")
		return nil
	}

	fmt.Printf("%-36s  %-9s  %-19s  %-9s  %s\n", "ID", "STATUS", "CREATED", "WAYPOINTS", "FINDINGS")
	for _, m := range missions {
		createdStr := m.CreatedAt
		if t, err := time.Parse(time.RFC3339Nano, m.CreatedAt); err == nil {
			createdStr = t.Format("2006-01-02 15:04:05")
		}
		count, err := a.store.FindingCount(m.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%-36s  %-9s  %-19s  %-9d  %d\n", m.ID, m.Status, createdStr, len(m.Waypoints), count)
	}
	return nil
}
