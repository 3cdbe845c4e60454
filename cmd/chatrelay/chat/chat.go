// Package chatcmder provides the chat command for interactive LLM chat
// through a running chatrelay server.
package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatrelay/pkg/client"
	"github.com/papercomputeco/chatrelay/pkg/cliui"
	"github.com/papercomputeco/chatrelay/pkg/config"
	"github.com/papercomputeco/chatrelay/pkg/llm"
	"github.com/papercomputeco/chatrelay/pkg/logger"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
	stopStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

type chatCommander struct {
	target   string
	model    string
	render   bool
	simulate bool
	debug    bool

	in         io.Reader
	out        io.Writer
	terminal   *os.File
	interrupts <-chan os.Signal
	logger     *slog.Logger
}

const chatLongDesc string = `Start an interactive chat session through a running chatrelay server.

Replies are printed as they stream in. Press Ctrl+C while a reply is
streaming to stop the generation; the partial reply is kept and marked as
stopped. Press Ctrl+C at the prompt, type /exit or send EOF (Ctrl+D) to quit.

With --render the finished reply is re-rendered as Markdown when stdout is
a terminal. With --simulate an offline simulator answers when the relay
cannot be reached.

Examples:
  chatrelay chat
  chatrelay chat --model glm-4-flash
  chatrelay chat --target http://relay.internal:3001 --render`

const chatShortDesc string = "Interactive LLM chat through the chatrelay server"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cmder.debug, _ = cmd.Flags().GetBool("debug")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagTarget, config.FlagModel})

			cmder.target = v.GetString("client.target")
			cmder.model = v.GetString("provider.model")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			if f, ok := cmder.out.(*os.File); ok {
				cmder.terminal = f
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt)
			defer signal.Stop(sigChan)
			cmder.interrupts = sigChan

			cmder.logger = logger.New(
				logger.WithDebug(cmder.debug),
				logger.WithSource(cmder.debug),
				logger.WithPretty(true),
				logger.WithWriter(cmd.ErrOrStderr()),
			)

			return cmder.run(cmd.Context(), cmder.conversation())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagTarget, &cmder.target)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &cmder.model)
	cmd.Flags().BoolVar(&cmder.render, "render", false, "Re-render finished replies as Markdown")
	cmd.Flags().BoolVar(&cmder.simulate, "simulate", false, "Answer with an offline simulator when the relay is unreachable")

	return cmd
}

func (c *chatCommander) conversation() *client.Conversation {
	opts := []client.ConversationOption{client.WithConversationLogger(c.logger)}
	if c.simulate {
		opts = append(opts, client.WithFallback(&client.Simulator{}))
	}
	return client.NewConversation(client.New(c.target, client.WithLogger(c.logger)), opts...)
}

func (c *chatCommander) run(ctx context.Context, conv *client.Conversation) error {
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render("Relay:"), cliui.NameStyle.Render(c.target))
	model := c.model
	if model == "" {
		model = "relay default"
	}
	fmt.Fprintf(c.out, "  %s %s\n\n", cliui.KeyStyle.Render("Model:"), cliui.NameStyle.Render(model))
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. Ctrl+C stops a reply. /exit or Ctrl+D to quit."))

	lines := readLines(c.in)

	for {
		fmt.Fprint(c.out, userPrompt)

		var (
			line string
			ok   bool
		)
		select {
		case line, ok = <-lines:
		case <-c.interrupts:
			ok = false
		}
		if !ok {
			break
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		if err := c.exchange(ctx, conv, input); err != nil {
			fmt.Fprintf(c.out, "  %s %v\n\n", cliui.FailMark, err)
		}
	}

	conv.Stop()
	fmt.Fprintln(c.out)
	return nil
}

// exchange streams one reply, stopping it on interrupt.
func (c *chatCommander) exchange(ctx context.Context, conv *client.Conversation, input string) error {
	s, err := conv.Send(ctx, &llm.Prompt{Message: input, Model: c.model})
	if err != nil {
		return err
	}

	fmt.Fprint(c.out, assistantPrompt)

	events := s.Events()
	for events != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.printEvent(ev)
		case <-c.interrupts:
			conv.Stop()
		}
	}

	result := s.Wait()
	switch result.Outcome {
	case client.OutcomeCanceled:
		fmt.Fprintf(c.out, "\n\n%s", stopStyle.Render(strings.TrimSpace(client.StopMarker)))
	case client.OutcomeError:
		fmt.Fprintf(c.out, "\n  %s %s", cliui.FailMark, result.Err)
	case client.OutcomeDone:
		c.renderReply(result.Text)
	}

	fmt.Fprint(c.out, "\n\n")
	return nil
}

func (c *chatCommander) printEvent(ev llm.Event) {
	switch ev.Type {
	case llm.EventModelInfo:
		info := fmt.Sprintf("%s · %s · %s context", ev.Model, ev.Strength, ev.Context)
		fmt.Fprintf(c.out, "%s\n", cliui.Truncate(cliui.DimStyle.Render(info), c.width()))
	case llm.EventChunk:
		fmt.Fprint(c.out, ev.Content)
	}
}

// renderReply prints the Markdown rendering of a finished reply below the
// streamed text when --render is set and stdout is a terminal.
func (c *chatCommander) renderReply(text string) {
	if !c.render || c.terminal == nil || !cliui.IsTerminal(c.terminal) || text == "" {
		return
	}

	rendered, err := cliui.RenderMarkdown(text, c.width())
	if err != nil {
		c.logger.Debug("markdown rendering failed", "error", err)
		return
	}
	fmt.Fprintf(c.out, "\n%s", rendered)
}

func (c *chatCommander) width() int {
	if c.terminal == nil {
		return 80
	}
	return cliui.Width(c.terminal)
}

// readLines feeds input lines to a channel that is closed on EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
