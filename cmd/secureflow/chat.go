package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hed1ad/secureflow/pkg/session"
)

func newChatCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Ask the IT support assistant",
		Long:  "Answer a single prompt given as arguments, or read prompts line by line from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			sess := session.New(session.WithLogger(a.logger))
			defer sess.Close()

			ask := func(prompt string) error {
				reply, err := sess.Ask(ctx, prompt)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, reply.Text)
				return nil
			}

			if len(args) > 0 {
				return ask(strings.Join(args, " "))
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				prompt := strings.TrimSpace(scanner.Text())
				if prompt == "" {
					continue
				}
				if prompt == "exit" || prompt == "quit" {
					break
				}
				if err := ask(prompt); err != nil {
					return err
				}
			}
			return scanner.Err()
		},
	}
}
