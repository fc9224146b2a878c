// ABOUTME: Interactive chat REPL over the conversation service
// ABOUTME: Slash commands manage threads; any other line is sent as a turn on the current thread

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/agentchat/internal/conversation"
	"github.com/2389/agentchat/internal/store"
	"github.com/2389/agentchat/internal/warehouse"
)

var (
	chatThread string
	chatPlain  bool
	chatWidth  int
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent in the terminal",
	Long: `Start an interactive chat session.

Type a message and press Enter to send it on the current thread. A thread is
created on the first message when none is selected. /help lists commands.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatThread, "thread", "t", "", "Resume an existing thread")
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "Print replies without markdown rendering")
	chatCmd.Flags().IntVar(&chatWidth, "width", 100, "Word wrap width for rendered replies")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.identity.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("resolving current user: %w", err)
	}

	r := newREPL(a.svc, a.store, user, cmd.InOrStdin(), cmd.OutOrStdout())
	r.sql = a.sqlRunner()
	if !chatPlain {
		tr, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(chatWidth),
		)
		if err != nil {
			return fmt.Errorf("creating markdown renderer: %w", err)
		}
		r.render = tr.Render
	}

	fmt.Fprintf(r.out, "agentchat connected to %s as %s\n", a.cfg.Agent.BaseURL, user)
	fmt.Fprintln(r.out, "Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Fprintln(r.out)

	if chatThread != "" {
		r.switchThread(ctx, chatThread)
	}

	if err := r.run(ctx); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "\nGoodbye!")
	return nil
}

// auditReader lists audit records for the /audit command.
type auditReader interface {
	ListAudit(ctx context.Context, f store.AuditFilter) ([]*store.AuditRecord, error)
}

// repl holds one terminal session. The cursor is the only conversation state.
type repl struct {
	svc    *conversation.Service
	audit  auditReader
	user   string
	in     io.Reader
	out    io.Writer
	render func(string) (string, error)
	sql    warehouse.Runner // nil leaves generated SQL unexecuted
	cur    conversation.Cursor
}

func newREPL(svc *conversation.Service, audit auditReader, user string, in io.Reader, out io.Writer) *repl {
	return &repl{
		svc:    svc,
		audit:  audit,
		user:   user,
		in:     in,
		out:    out,
		render: func(s string) (string, error) { return s + "\n", nil },
	}
}

// parseCommand splits a slash command into its name and argument.
func parseCommand(line string) (name, arg string, ok bool) {
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	name, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg), true
}

func (r *repl) prompt() string {
	if r.cur.Active() {
		return fmt.Sprintf("[%s]> ", r.cur.ThreadID)
	}
	return "> "
}

func (r *repl) run(ctx context.Context) error {
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(r.out, r.prompt())

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)
		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
				return
			}
			if err := scanner.Err(); err != nil {
				errCh <- err
				return
			}
			errCh <- io.EOF
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if quit := r.handle(ctx, input); quit {
			return nil
		}
		fmt.Fprintln(r.out)
	}
}

// handle processes one input line and reports whether the session should end.
func (r *repl) handle(ctx context.Context, input string) bool {
	name, arg, isCmd := parseCommand(input)
	if !isCmd {
		r.send(ctx, input)
		return false
	}

	switch name {
	case "quit", "exit", "q":
		return true
	case "new":
		r.newThread(ctx)
	case "threads":
		r.listThreads(ctx)
	case "switch":
		if arg == "" {
			fmt.Fprintln(r.out, "Usage: /switch <thread_id>")
			break
		}
		r.switchThread(ctx, arg)
	case "history":
		if !r.cur.Active() {
			fmt.Fprintln(r.out, "No thread selected. Use /new or /switch <id> first.")
			break
		}
		r.switchThread(ctx, r.cur.ThreadID)
	case "audit":
		r.listAudit(ctx)
	case "help":
		r.printHelp()
	default:
		fmt.Fprintf(r.out, "Unknown command /%s. Type /help for commands.\n", name)
	}
	return false
}

func (r *repl) printHelp() {
	fmt.Fprintln(r.out, "Commands:")
	fmt.Fprintln(r.out, "  /new           Start a new thread")
	fmt.Fprintln(r.out, "  /threads       List your threads")
	fmt.Fprintln(r.out, "  /switch <id>   Resume a thread and show its history")
	fmt.Fprintln(r.out, "  /history       Show the current thread's history")
	fmt.Fprintln(r.out, "  /audit         Show recent agent calls for the current thread")
	fmt.Fprintln(r.out, "  /help          Show this help")
	fmt.Fprintln(r.out, "  /quit          Exit")
}

func (r *repl) errorf(format string, args ...any) {
	color.New(color.FgRed).Fprintf(r.out, "[error] "+format+"\n", args...)
}

func (r *repl) newThread(ctx context.Context) bool {
	cur, err := r.svc.StartThread(ctx, r.user)
	if err != nil {
		r.errorf("creating thread: %v", err)
		return false
	}
	r.cur = cur
	color.New(color.FgGreen).Fprintf(r.out, "Started thread %s\n", cur.ThreadID)
	return true
}

func (r *repl) listThreads(ctx context.Context) {
	threads, err := r.svc.ListThreads(ctx, r.user)
	if err != nil {
		r.errorf("%v", err)
		return
	}
	if len(threads) == 0 {
		fmt.Fprintln(r.out, "No threads yet. Send a message or /new to start one.")
		return
	}
	for _, t := range threads {
		marker := " "
		if t.ID == r.cur.ThreadID {
			marker = "*"
		}
		title := t.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(r.out, "%s %s - %s\n", marker, t.ID, title)
	}
}

func (r *repl) switchThread(ctx context.Context, threadID string) {
	msgs, cur, err := r.svc.SwitchThread(ctx, threadID)
	if err != nil {
		r.errorf("%v", err)
		return
	}
	r.cur = cur
	color.New(color.FgGreen).Fprintf(r.out, "Thread %s (%d messages)\n", threadID, len(msgs))
	for _, m := range msgs {
		r.printMessage(m)
	}
}

func (r *repl) printMessage(m *store.Message) {
	if m.Role == store.RoleUser {
		color.New(color.FgHiBlack).Fprintf(r.out, "you #%d\n", m.MessageID)
		fmt.Fprintln(r.out, m.Content)
		return
	}
	color.New(color.FgCyan).Fprintf(r.out, "agent #%d\n", m.MessageID)
	r.printMarkdown(m.Content)
}

func (r *repl) printMarkdown(text string) {
	out, err := r.render(text)
	if err != nil {
		fmt.Fprintln(r.out, text)
		return
	}
	fmt.Fprint(r.out, out)
}

func (r *repl) send(ctx context.Context, prompt string) {
	if !r.cur.Active() && !r.newThread(ctx) {
		return
	}

	outcome, next, err := r.svc.Send(ctx, r.cur, prompt)
	r.cur = next
	if err != nil {
		r.errorf("%v", err)
		if outcome != nil && outcome.UserMessage != nil {
			fmt.Fprintln(r.out, "Your message was saved; the thread position is unchanged.")
		}
		return
	}

	if outcome.Text == "" {
		color.New(color.FgHiBlack).Fprintln(r.out, conversation.NoTextNotice)
	} else {
		r.printMarkdown(outcome.Text)
	}
	if outcome.Query != "" {
		color.New(color.FgYellow).Fprintln(r.out, "SQL generated:")
		fmt.Fprintln(r.out, outcome.Query)
		r.runQuery(ctx, outcome.Query)
	}
}

// runQuery executes a generated query and prints its result table.
func (r *repl) runQuery(ctx context.Context, query string) {
	if r.sql == nil {
		return
	}
	res, err := r.sql.Run(ctx, query)
	if err != nil {
		color.New(color.FgRed).Fprintf(r.out, "SQL run failed: %v\n", err)
		return
	}
	printResult(r.out, res)
}

func (r *repl) listAudit(ctx context.Context) {
	if !r.cur.Active() {
		fmt.Fprintln(r.out, "No thread selected. Use /new or /switch <id> first.")
		return
	}
	threadID := r.cur.ThreadID
	recs, err := r.audit.ListAudit(ctx, store.AuditFilter{ThreadID: &threadID, Limit: 10})
	if err != nil {
		r.errorf("%v", err)
		return
	}
	printAudit(r.out, recs)
}
