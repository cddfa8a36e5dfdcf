package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/ashureev/persona-relay/internal/client"
	"github.com/ashureev/persona-relay/internal/config"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation with a character.

Commands inside the session:
  /character <id>  switch to another character
  /quit            leave`,
	RunE: runChat,
}

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSend,
}

func newClient(cfg *config.ClientConfig) *client.Client {
	return client.New(client.Config{
		URL:                  cfg.ServerURL,
		Credential:           cfg.Token,
		RequestTimeout:       cfg.RequestTimeout,
		ReconnectBackoff:     cfg.ReconnectBackoff,
		MaxReconnectAttempts: cfg.MaxReconnects,
		HandshakeTimeout:     cfg.HandshakeTimeout,
		Logger:               newLogger(),
	})
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	c := newClient(cfg)
	defer c.Close()

	reply, err := c.Send(ctx, strings.Join(args, " "), cfg.Character)
	if err != nil {
		return errors.New(client.FallbackMessage(err))
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply)
	return nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	c := newClient(cfg)
	defer c.Close()

	if err := c.Connect(ctx, cfg.Token); err != nil {
		return errors.New(client.FallbackMessage(err))
	}

	out := cmd.OutOrStdout()
	d := client.NewDialogue(c, cfg.Character)
	fmt.Fprintf(out, "Connected. Talking to %s. Type /quit to leave.\n", d.Character())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case strings.HasPrefix(line, "/character"):
			id := strings.TrimSpace(strings.TrimPrefix(line, "/character"))
			if id == "" {
				fmt.Fprintf(out, "Current character: %s\n", d.Character())
				continue
			}
			d.SetCharacter(id)
			fmt.Fprintf(out, "Now talking to %s.\n", id)
			continue
		}

		reply, err := d.Ask(ctx, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(out, "! %s\n", client.FallbackMessage(err))
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", d.Character(), reply)
	}
}
