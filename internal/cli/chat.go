// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command for gemchat.
//
// Command: chat (default)
//
// The REPL talks to a running gateway (gemchat serve) over the streaming
// transport. Conversations live in the store and are written through to the
// configured storage backend, so a later session picks them up again.
//
// Examples:
//
//	gemchat                          Chat with the configured model
//	gemchat chat --model gemini-1.5-pro
//	gemchat --ephemeral              Nothing is written to disk
//
// Interactive commands are listed by /help.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/export"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/orchestrator"
	"github.com/jeranaias/gemchat/internal/storage"
	"github.com/jeranaias/gemchat/internal/store"
	"github.com/jeranaias/gemchat/internal/transport"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides line editing and persistent input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI with history loaded from the config dir.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	c := &ChatCLI{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
	return c
}

// SetCompleter installs tab completion for slash commands.
func (c *ChatCLI) SetCompleter(commands []string) {
	c.line.SetCompleter(func(line string) []string {
		if !strings.HasPrefix(line, "/") {
			return nil
		}
		var out []string
		for _, cmd := range commands {
			if strings.HasPrefix(cmd, line) {
				out = append(out, cmd)
			}
		}
		return out
	})
}

// ReadInput reads one line. Non-empty lines are added to the history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with 0600 permissions and restores the terminal.
func (c *ChatCLI) Close() {
	if err := config.EnsureConfigDir(); err == nil {
		if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = c.line.WriteHistory(f)
			f.Close()
		}
	}
	c.line.Close()
}

// =============================================================================
// SESSION
// =============================================================================

// slashCommands lists the commands offered for tab completion.
var slashCommands = []string{
	"/help", "/new", "/list", "/switch", "/rename", "/delete", "/clear",
	"/history", "/model", "/temp", "/stream", "/theme", "/retry", "/export", "/quit",
}

// ChatSession wires the store, persistence and orchestrator for one REPL.
type ChatSession struct {
	cfg       *config.Config
	kv        storage.KV
	store     *store.Store
	persister *storage.Persister
	reporter  *store.ErrorReporter
	orch      *orchestrator.Orchestrator
	client    *transport.Client
	renderer  *MarkdownRenderer
	out       io.Writer
	quiet     bool

	printer *replyPrinter
	cleanup []func()
}

// NewChatSession opens storage, hydrates the store and connects the
// orchestrator to the gateway at cfg.Client.GatewayURL.
func NewChatSession(ctx context.Context, cfg *config.Config, args Args, out io.Writer) (*ChatSession, error) {
	kv, err := storage.Open(ctx, cfg.StorageOptions())
	if err != nil {
		return nil, &CommandError{Command: "chat", Action: "open storage", Reason: cfg.Storage.Backend, Err: err}
	}

	st := store.New(store.DefaultState())
	persister := storage.NewPersister(kv)
	res := persister.Hydrate(ctx, st)

	if res.Preferences != storage.StatusFound {
		st.Dispatch(store.SetTheme{Theme: DetectTheme()})
	}
	if res.Settings != storage.StatusFound {
		st.Dispatch(store.UpdateSettings{Patch: store.SettingsPatch{
			Model:       store.String(cfg.Client.Model),
			Temperature: store.Float(cfg.Client.Temperature),
			MaxTokens:   store.Int(cfg.Client.MaxTokens),
			Stream:      store.Bool(cfg.Client.Stream),
		}})
	}
	if args.Model != "" {
		st.Dispatch(store.UpdateSettings{Patch: store.SettingsPatch{Model: store.String(args.Model)}})
	}

	client := transport.NewClient(cfg.Client.GatewayURL)
	reporter := store.NewErrorReporter(st)
	s := &ChatSession{
		cfg:       cfg,
		kv:        kv,
		store:     st,
		persister: persister,
		reporter:  reporter,
		orch:      orchestrator.New(st, client, reporter),
		client:    client,
		renderer:  NewMarkdownRenderer(GetTerminalWidth() - 4),
		out:       out,
		quiet:     args.Quiet,
	}

	s.cleanup = append(s.cleanup, persister.Attach(st))
	s.printer = newReplyPrinter(out)
	s.cleanup = append(s.cleanup, st.Subscribe(s.printer.observe))

	if cfg.Storage.Watch {
		watchCtx, cancel := context.WithCancel(ctx)
		s.cleanup = append(s.cleanup, cancel)
		if err := persister.Watch(watchCtx, st); err != nil {
			fmt.Fprintln(out, WarningStyle.Render("storage watch disabled: "+err.Error()))
		}
	}
	return s, nil
}

// Store exposes the session store.
func (s *ChatSession) Store() *store.Store {
	return s.store
}

// Close detaches listeners and closes storage.
func (s *ChatSession) Close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.reporter.Close()
	if err := s.kv.Close(); err != nil {
		fmt.Fprintln(s.out, WarningStyle.Render("closing storage: "+err.Error()))
	}
}

// HandleChatCommand runs the interactive chat REPL.
func HandleChatCommand(args Args) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	restoreLogs := redirectLogs(args.Verbose)
	defer restoreLogs()

	ctx := context.Background()
	session, err := NewChatSession(ctx, cfg, args, os.Stdout)
	if err != nil {
		return err
	}
	defer session.Close()

	session.printWelcome(ctx)

	input := NewChatCLI()
	input.SetCompleter(slashCommands)
	defer input.Close()

	for {
		line, err := input.ReadInput(PromptStyle.Render("you> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(session.out, DimStyle.Render("(use /quit or Ctrl+D to exit)"))
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(session.out)
				return nil
			}
			return err
		}

		sendCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		quit, err := session.HandleLine(sendCtx, line)
		stop()
		if err != nil {
			session.showError(err)
		}
		if quit {
			return nil
		}
	}
}

// HandleLine processes one line of input: a slash command or a message.
func (s *ChatSession) HandleLine(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if strings.HasPrefix(line, "/") {
		return s.handleSlashCommand(ctx, line)
	}
	return false, s.send(ctx, line)
}

// send forwards text to the orchestrator and prints the reply.
func (s *ChatSession) send(ctx context.Context, text string) error {
	st := s.store.State()
	live := st.Settings.Stream
	s.printer.arm(live)
	start := time.Now()

	err := s.orch.Send(ctx, "", text)
	s.printer.disarm()

	if errors.Is(err, orchestrator.ErrEmptyMessage) || errors.Is(err, orchestrator.ErrSendInFlight) {
		return err
	}

	after := s.store.State()
	if !live {
		if cur, ok := after.Current(); ok {
			if last, ok := cur.LastMessage(); ok && last.Role == model.RoleAssistant {
				fmt.Fprintln(s.out, AssistantStyle.Render("gemini>"))
				fmt.Fprintln(s.out, s.renderer.Render(last.Content, after.Theme))
			}
		}
	}
	if err == nil && !s.quiet {
		fmt.Fprintln(s.out, DimStyle.Render(fmt.Sprintf("[%s, %.1fs]", after.Settings.Model, time.Since(start).Seconds())))
	}
	// A failed send is already recorded in the store; showError reads it.
	return err
}

// showError prints the store's error record, or err when the store has
// none (validation failures never reach the store).
func (s *ChatSession) showError(err error) {
	if rec := s.store.State().Error; rec != nil {
		fmt.Fprintln(s.out, RenderErrorToast(*rec))
		return
	}
	fmt.Fprintln(s.out, ErrorStyle.Render("error: ")+err.Error())
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func (s *ChatSession) handleSlashCommand(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	switch cmd {
	case "/quit", "/q", "/exit":
		return true, nil

	case "/help", "/h", "/?":
		s.printHelp()

	case "/new", "/n":
		id := s.orch.NewConversation(rest)
		conv, _ := s.store.State().Conversation(id)
		fmt.Fprintln(s.out, SuccessStyle.Render("Started ")+conv.DisplayTitle())

	case "/list", "/ls":
		s.store.Dispatch(store.SetUIFlags{Patch: store.UIPatch{SearchQuery: store.String(rest)}})
		s.printList()

	case "/switch", "/s":
		conv, err := s.pick(rest)
		if err != nil {
			return false, err
		}
		s.store.Dispatch(store.SetCurrent{ConversationID: conv.ID})
		fmt.Fprintln(s.out, SuccessStyle.Render("Switched to ")+conv.DisplayTitle())
		s.printHistory()

	case "/rename":
		cur, ok := s.store.State().Current()
		if !ok {
			return false, NewValidationError("conversation", "", "no conversation selected")
		}
		if rest == "" {
			return false, ErrMissingArgument("title", "/rename Trip planning")
		}
		s.store.Dispatch(store.RenameConversation{ConversationID: cur.ID, Title: rest})
		fmt.Fprintln(s.out, SuccessStyle.Render("Renamed to ")+rest)

	case "/delete", "/del":
		var conv model.Conversation
		if rest == "" {
			cur, ok := s.store.State().Current()
			if !ok {
				return false, NewValidationError("conversation", "", "no conversation selected")
			}
			conv = cur
		} else {
			c, err := s.pick(rest)
			if err != nil {
				return false, err
			}
			conv = c
		}
		s.store.Dispatch(store.DeleteConversation{ConversationID: conv.ID})
		fmt.Fprintln(s.out, SuccessStyle.Render("Deleted ")+conv.DisplayTitle())

	case "/clear":
		n := len(s.store.State().Conversations)
		s.store.Dispatch(store.ClearAll{})
		fmt.Fprintln(s.out, SuccessStyle.Render(fmt.Sprintf("Deleted %d conversations", n)))

	case "/history", "/hist":
		s.printHistory()

	case "/model", "/m":
		return false, s.handleModel(rest)

	case "/temp", "/temperature":
		t, err := strconv.ParseFloat(rest, 64)
		if err != nil || t < 0 || t > 2 {
			return false, NewValidationError("temperature", rest, "must be a number between 0 and 2")
		}
		s.store.Dispatch(store.UpdateSettings{Patch: store.SettingsPatch{Temperature: store.Float(t)}})
		fmt.Fprintln(s.out, SuccessStyle.Render("Temperature set to ")+rest)

	case "/stream":
		on, err := ParseBoolString(rest)
		if err != nil {
			return false, NewValidationError("stream", rest, "use on or off")
		}
		s.store.Dispatch(store.UpdateSettings{Patch: store.SettingsPatch{Stream: store.Bool(on)}})
		fmt.Fprintln(s.out, SuccessStyle.Render("Streaming ")+map[bool]string{true: "on", false: "off"}[on])

	case "/theme":
		s.store.Dispatch(store.ToggleTheme{})
		fmt.Fprintln(s.out, SuccessStyle.Render("Theme: ")+string(s.store.State().Theme))

	case "/retry", "/r":
		if !s.orch.Retry() {
			return false, NewValidationError("retry", "", "nothing to retry")
		}
		if cur, ok := s.store.State().Current(); ok {
			if last, ok := cur.LastMessage(); ok {
				fmt.Fprintln(s.out, AssistantStyle.Render("gemini>"))
				fmt.Fprintln(s.out, s.renderer.Render(last.Content, s.store.State().Theme))
			}
		}
		if rec := s.store.State().Error; rec != nil {
			fmt.Fprintln(s.out, RenderErrorToast(*rec))
		}

	case "/export":
		return false, s.handleExport(rest)

	default:
		return false, NewValidationError("command", cmd, "unknown command, try /help")
	}
	return false, nil
}

// pick resolves a 1-based list index or a conversation ID.
func (s *ChatSession) pick(ref string) (model.Conversation, error) {
	st := s.store.State()
	if ref == "" {
		return model.Conversation{}, ErrMissingArgument("conversation", "/switch 2")
	}
	if n, err := strconv.Atoi(ref); err == nil {
		list := st.Filtered()
		if n < 1 || n > len(list) {
			return model.Conversation{}, &NotFoundError{Resource: "conversation", ID: ref}
		}
		return list[n-1], nil
	}
	if conv, ok := st.Conversation(ref); ok {
		return conv, nil
	}
	return model.Conversation{}, &NotFoundError{Resource: "conversation", ID: ref}
}

func (s *ChatSession) handleModel(name string) error {
	st := s.store.State()
	if name == "" {
		fmt.Fprintln(s.out, RenderLabel("Current:")+st.Settings.Model)
		for _, m := range model.Models {
			marker := "  "
			if m.ID == st.Settings.Model {
				marker = SuccessStyle.Render("* ")
			}
			fmt.Fprintf(s.out, "%s%s %s\n", marker, m.ID, DimStyle.Render("- "+m.Description))
		}
		return nil
	}
	info, ok := model.GetModelInfo(name)
	if !ok {
		return NewValidationError("model", name, "unknown model, see /model")
	}
	s.store.Dispatch(store.UpdateSettings{Patch: store.SettingsPatch{Model: store.String(info.ID)}})
	fmt.Fprintln(s.out, SuccessStyle.Render("Model set to ")+info.ID)
	return nil
}

func (s *ChatSession) handleExport(format string) error {
	cur, ok := s.store.State().Current()
	if !ok {
		return NewValidationError("conversation", "", "no conversation selected")
	}
	opts := export.DefaultOptions()

	var (
		path string
		err  error
	)
	switch strings.ToLower(format) {
	case "", "md", "markdown":
		path, err = export.ExportMarkdown(cur, opts)
	case "json":
		path, err = export.ExportToFile(cur, export.NewJSONExporter(), opts)
	default:
		return ErrUnsupportedFormat(format, []string{"md", "json"})
	}
	if err != nil {
		return &CommandError{Command: "export", Action: "write", Reason: "could not write file", Err: err}
	}
	fmt.Fprintln(s.out, SuccessStyle.Render("Exported to ")+path)
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func (s *ChatSession) printWelcome(ctx context.Context) {
	if s.quiet {
		return
	}
	st := s.store.State()
	fmt.Fprintln(s.out, TitleStyle.Render("gemchat "+Version))
	fmt.Fprintln(s.out, RenderLabel("Gateway:")+s.client.BaseURL())
	fmt.Fprintln(s.out, RenderLabel("Model:")+st.Settings.Model)
	fmt.Fprintln(s.out, RenderLabel("Storage:")+s.cfg.Storage.Backend)
	fmt.Fprintln(s.out, RenderLabel("Chats:")+strconv.Itoa(len(st.Conversations)))

	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if probe, err := s.client.Probe(probeCtx); err != nil {
		fmt.Fprintln(s.out, WarningStyle.Render("Gateway not reachable: "+err.Error()))
	} else {
		ids := make([]string, len(probe.Models))
		for i, m := range probe.Models {
			ids[i] = m.ID
		}
		fmt.Fprintln(s.out, RenderLabel("Models:")+strings.Join(ids, ", "))
	}
	fmt.Fprintln(s.out, DimStyle.Render("Type /help for commands."))
	fmt.Fprintln(s.out, RenderSeparator())
}

func (s *ChatSession) printHelp() {
	fmt.Fprintln(s.out, TitleStyle.Render("Commands"))
	help := [][2]string{
		{"/new [title]", "start a new conversation"},
		{"/list [query]", "list conversations"},
		{"/switch N|ID", "switch conversation"},
		{"/rename TITLE", "rename the current conversation"},
		{"/delete [N|ID]", "delete a conversation"},
		{"/clear", "delete all conversations"},
		{"/history", "show the current conversation"},
		{"/model [name]", "show or switch model"},
		{"/temp VALUE", "set temperature (0-2)"},
		{"/stream on|off", "toggle streaming"},
		{"/theme", "toggle light/dark"},
		{"/retry", "retry the last failed send"},
		{"/export [md|json]", "export the current conversation"},
		{"/quit", "exit"},
	}
	for _, h := range help {
		fmt.Fprintf(s.out, "  %-20s %s\n", h[0], DimStyle.Render(h[1]))
	}
}

func (s *ChatSession) printList() {
	st := s.store.State()
	list := st.Filtered()
	if len(list) == 0 {
		fmt.Fprintln(s.out, DimStyle.Render("No conversations."))
		return
	}
	for i, c := range list {
		fmt.Fprintln(s.out, RenderConversationLine(i, c, c.ID == st.CurrentID))
	}
}

func (s *ChatSession) printHistory() {
	st := s.store.State()
	cur, ok := st.Current()
	if !ok || cur.IsEmpty() {
		fmt.Fprintln(s.out, DimStyle.Render("No messages yet."))
		return
	}
	for _, m := range cur.Messages {
		switch m.Role {
		case model.RoleUser:
			fmt.Fprintln(s.out, PromptStyle.Render("you> ")+m.Content)
		default:
			fmt.Fprintln(s.out, AssistantStyle.Render("gemini>"))
			fmt.Fprintln(s.out, s.renderer.Render(m.Content, st.Theme))
		}
	}
}

// =============================================================================
// LIVE REPLY PRINTER
// =============================================================================

// replyPrinter writes streamed assistant text as it arrives. It watches
// store transitions and prints only the new suffix of the reply.
type replyPrinter struct {
	out io.Writer

	mu      sync.Mutex
	live    bool
	started bool
	msgID   string
}

func newReplyPrinter(out io.Writer) *replyPrinter {
	return &replyPrinter{out: out}
}

// arm enables printing for the next reply. With live false nothing is
// printed and the caller renders the reply itself.
func (p *replyPrinter) arm(live bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live, p.started, p.msgID = live, false, ""
}

func (p *replyPrinter) disarm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.live && p.started {
		fmt.Fprintln(p.out)
	}
	p.live = false
}

func (p *replyPrinter) observe(prev, next store.State, a store.Action) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.live {
		return
	}

	switch a := a.(type) {
	case store.AddMessage:
		if a.Message.Role == model.RoleAssistant && a.Message.IsStreaming {
			p.msgID = a.Message.ID
		}
	case store.UpdateMessage:
		if a.MessageID != p.msgID {
			return
		}
		before := messageContent(prev, a.ConversationID, a.MessageID)
		after := messageContent(next, a.ConversationID, a.MessageID)
		if !p.started {
			fmt.Fprintln(p.out, AssistantStyle.Render("gemini>"))
			p.started = true
		}
		if strings.HasPrefix(after, before) {
			fmt.Fprint(p.out, after[len(before):])
			return
		}
		// Replaced rather than extended (the apology after a failure).
		if before != "" {
			fmt.Fprintln(p.out)
		}
		fmt.Fprint(p.out, after)
	}
}

func messageContent(st store.State, convID, msgID string) string {
	conv, ok := st.Conversation(convID)
	if !ok {
		return ""
	}
	m, _ := conv.FindMessage(msgID)
	return m.Content
}
