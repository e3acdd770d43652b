package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kaedeos/kos/internal/manifest"
	"github.com/kaedeos/kos/internal/runtime"
	"github.com/kaedeos/kos/pkg/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a KOS Service or Job manifest",
	Long: `Apply a YAML manifest declaring one Service or one Job.

Examples:
  kos apply -f web.service.yaml
  kos apply -f nightly-backup.job.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML manifest file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	resource, err := manifest.Load(filename)
	if err != nil {
		return err
	}

	rt, err := runtime.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to construct runtime: %w", err)
	}

	switch resource.Kind {
	case "Service":
		svc, err := resource.ToService()
		if err != nil {
			return err
		}
		result := rt.Dispatcher.Invoke(context.Background(), "service.create_service", map[string]any{
			"name": svc.Name, "exec_start": svc.ExecStart, "type": string(svc.Type),
			"restart_policy": string(svc.Restart), "working_directory": svc.WorkingDirectory,
			"environment": svc.Environment, "dependencies": svc.Dependencies, "conflicts": svc.Conflicts,
		})
		return printResult(result)
	case "Job":
		job, err := resource.ToJob()
		if err != nil {
			return err
		}
		result := rt.Dispatcher.Invoke(context.Background(), "scheduler.create_job", map[string]any{
			"name": job.Name, "command": job.Command, "schedule": job.Schedule, "enabled": job.Enabled,
			"working_directory": job.WorkingDirectory, "environment": job.Environment,
			"user": job.User, "description": job.Description,
		})
		return printResult(result)
	default:
		return fmt.Errorf("unsupported manifest kind: %s", resource.Kind)
	}
}

func printResult(result types.SyscallResult) error {
	if !result.Success {
		return fmt.Errorf("%s: %s", result.ErrorCode, result.Message)
	}
	fmt.Printf("applied: %v\n", result.Data)
	return nil
}
