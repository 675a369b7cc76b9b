package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ahmedshikashaker/automaker/pkg/utils"
)

func newRunCommand() *cobra.Command {
	var (
		featureID string
		prompt    string
		model     string
		mode      string
		branch    string
		maxTurns  int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit a feature run",
		Long:  "Submits a feature to the daemon. Runs start immediately when under the concurrency ceiling and queue otherwise.",
		RunE: func(_ *cobra.Command, _ []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt is required")
			}
			if featureID == "" {
				featureID = deriveFeatureID(prompt)
			}
			data, err := newAPIClient().post("/api/runs", map[string]any{
				"featureId":  featureID,
				"prompt":     prompt,
				"model":      model,
				"mode":       mode,
				"branchName": branch,
				"maxTurns":   maxTurns,
			})
			if err != nil {
				return err
			}
			resp := map[string]any{}
			_ = json.Unmarshal(data, &resp)
			fmt.Printf("submitted feature %s\n", utils.GetMapFieldOr(resp, "featureId", featureID))
			return nil
		},
	}
	cmd.Flags().StringVar(&featureID, "id", "", "feature ID (derived from the prompt when empty)")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "feature prompt")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model name (daemon default when empty)")
	cmd.Flags().StringVar(&mode, "mode", "plan", "run mode: plan, auto, direct")
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "work in the worktree holding this branch")
	cmd.Flags().IntVar(&maxTurns, "max-turns", 0, "agent turn ceiling (daemon default when 0)")
	return cmd
}

// deriveFeatureID builds a short identifier from the first words of the
// prompt when the user does not name the feature.
func deriveFeatureID(prompt string) string {
	words := strings.Fields(strings.ToLower(prompt))
	if len(words) > 6 {
		words = words[:6]
	}
	return utils.SanitizeIdentifier(strings.Join(words, "-"))
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(_ *cobra.Command, _ []string) error {
			data, err := newAPIClient().get("/api/status", nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
}

func newApprovalsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "approvals",
		Short: "List pending plan approvals",
		RunE: func(_ *cobra.Command, _ []string) error {
			data, err := newAPIClient().get("/api/approvals", nil)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
}

func newApproveCommand() *cobra.Command {
	var planFile string

	cmd := &cobra.Command{
		Use:   "approve <feature-id>",
		Short: "Approve a pending plan",
		Long:  "Approves the plan for a feature awaiting approval. With --plan-file the edited plan replaces the generated one.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			body := map[string]any{"approved": true}
			if planFile != "" {
				edited, err := os.ReadFile(planFile)
				if err != nil {
					return fmt.Errorf("read plan file: %w", err)
				}
				body["editedPlan"] = string(edited)
			}
			data, err := newAPIClient().post("/api/approvals/"+args[0]+"/resolve", body)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	cmd.Flags().StringVar(&planFile, "plan-file", "", "file holding an edited plan to execute instead")
	return cmd
}

func newRejectCommand() *cobra.Command {
	var feedback string

	cmd := &cobra.Command{
		Use:   "reject <feature-id>",
		Short: "Reject a pending plan",
		Long:  "Rejects the plan for a feature awaiting approval. With --feedback the run regenerates the plan; without it the run ends rejected.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := newAPIClient().post("/api/approvals/"+args[0]+"/resolve", map[string]any{
				"approved": false,
				"feedback": feedback,
			})
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	cmd.Flags().StringVarP(&feedback, "feedback", "f", "", "revision feedback for the next plan version")
	return cmd
}

func newCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <feature-id>",
		Short: "Cancel a running or queued feature",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := newAPIClient().post("/api/runs/"+args[0]+"/cancel", nil)
			if err != nil {
				return err
			}
			resp := map[string]any{}
			_ = json.Unmarshal(data, &resp)
			fmt.Printf("feature %s: %s\n", args[0], utils.GetMapFieldOr(resp, "status", "cancelling"))
			return nil
		},
	}
}

func newFeaturesCommand() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "features",
		Short: "List feature run history",
		RunE: func(_ *cobra.Command, _ []string) error {
			params := url.Values{}
			if status != "" {
				params.Set("status", status)
			}
			data, err := newAPIClient().get("/api/features", params)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (queued, running, awaiting_approval, completed, failed, cancelled, rejected)")
	return cmd
}
