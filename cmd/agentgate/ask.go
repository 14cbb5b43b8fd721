package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"agentgate/internal/brain"
	"agentgate/internal/domain"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func askCmd() *cobra.Command {
	var userID, imagePath string
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Run one message through the brain pipeline and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logClose, err := setupLogger(cfg.General)
			if err != nil {
				return err
			}
			defer logClose.Close()

			req := domain.BrainRequest{Message: strings.Join(args, " "), UserID: userID}
			if imagePath != "" {
				img, err := os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("read image: %w", err)
				}
				req.Image = base64.StdEncoding.EncodeToString(img)
			}

			ctx := context.Background()
			b, err := brain.FromConfig(ctx, cfg, nil, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			printResponse(cmd, b.Process(ctx, req))
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "user id sent with the request")
	cmd.Flags().StringVar(&imagePath, "image", "", "attach an image file")
	return cmd
}

func printResponse(cmd *cobra.Command, resp domain.BrainResponse) {
	out := cmd.OutOrStdout()
	label := color.New(color.FgCyan, color.Bold).SprintFunc()
	if resp.HasAction(domain.ActionError) {
		label = color.New(color.FgRed, color.Bold).SprintFunc()
	}
	fmt.Fprintf(out, "%s %s\n", label("agent:"), resp.Text)
	if len(resp.Actions) > 0 {
		fmt.Fprintf(out, "%s %s\n", color.HiBlackString("actions:"), strings.Join(resp.Actions, ", "))
	}
}
