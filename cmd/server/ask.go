package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/garnizeh/medequip/internal/service"
	"github.com/garnizeh/medequip/internal/session"
	"github.com/garnizeh/medequip/pkg/ollama"
)

func (c *cli) askCmd() *cobra.Command {
	var equipmentID string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the maintenance assistant a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			h, err := openStore(ctx, c.cfg.Store, c.logger)
			if err != nil {
				return err
			}
			defer h.close(context.Background())

			deps, err := c.serviceDeps(h.store, nil)
			if err != nil {
				return err
			}
			model, err := ollama.NewDefaultClient(c.cfg.Ollama, ollama.WithLogger(c.logger))
			if err != nil {
				return err
			}
			defer model.Close()

			assistant := service.NewAssistantService(deps, model, session.NewMemoryStore(), c.cfg.Assistant)
			sess, err := assistant.OpenSession(ctx, service.OpenSessionInput{EquipmentID: equipmentID})
			if err != nil {
				return err
			}
			reply, err := assistant.SendMessage(ctx, sess.SessionID, service.SendMessageInput{Content: strings.Join(args, " ")})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), reply.Message.Content)
			return nil
		},
	}
	cmd.Flags().StringVar(&equipmentID, "equipment", "", "equipment id to give the assistant as context")
	return cmd
}
