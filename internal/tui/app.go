package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/notehub/nhchat/internal/api"
	"github.com/notehub/nhchat/internal/chat"
	connstate "github.com/notehub/nhchat/internal/status"
	"github.com/notehub/nhchat/internal/tui/client"
	"github.com/notehub/nhchat/internal/tui/keys"
	"github.com/notehub/nhchat/internal/tui/model"
	"github.com/notehub/nhchat/internal/tui/ui"
	"github.com/notehub/nhchat/internal/tui/views"
)

const (
	callTimeout    = 10 * time.Second
	statusInterval = 5 * time.Second
	watchRetry     = 2 * time.Second
)

// Options configures the TUI.
type Options struct {
	Profile  string
	Username string // pre-filled on the login page
	PageSize int
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	vm       *model.ViewModel
	grpc     *client.Client
	registry *keys.Registry
	flash    *ui.FlashModel

	root     *tview.Flex
	pages    *ui.Pages
	info     *ui.SessionInfo
	menu     *ui.Menu
	crumbs   *ui.Crumbs
	flashBar *ui.FlashBar
	prompt   *ui.Prompt
	promptOn bool
	loginV   *views.LoginView
	roomList *views.RoomList
	chatV    *views.ChatView
	searchV  *views.SearchView
	roomInfo *views.RoomInfo
	helpV    *views.HelpView
	infoRoom string
	profile  string
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		vm:       model.NewViewModel(c.Chat, c.Session, opts.PageSize),
		grpc:     c,
		registry: keys.NewRegistry(),
		flash:    ui.NewFlashModel(),
		pages:    ui.NewPages(),
		info:     ui.NewSessionInfo(theme),
		menu:     ui.NewMenu(theme, 6),
		crumbs:   ui.NewCrumbs(theme),
		flashBar: ui.NewFlashBar(theme),
		prompt:   ui.NewPrompt(theme),
		loginV:   views.NewLoginView(theme),
		roomList: views.NewRoomList(theme),
		chatV:    views.NewChatView(theme),
		searchV:  views.NewSearchView(theme),
		roomInfo: views.NewRoomInfo(theme),
		helpV:    views.NewHelpView(theme),
		profile:  opts.Profile,
		ctx:      ctx,
		cancel:   cancel,
	}
	if opts.Username != "" {
		a.loginV.SetUsername(opts.Username)
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Visible: true,
		Handler: a.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '/', Description: "Search", Visible: true,
		Handler: func() { a.show(a.searchV) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':', Description: "Command", Visible: true,
		Handler: func() { a.openPrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'x', Description: "Dismiss error", Visible: true,
		Handler: func() { a.do("dismiss", a.vm.DismissBanner) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?', Description: "Help", Visible: true,
		Handler: func() { a.show(a.helpV) },
	})

	rooms := a.roomList.Name()
	a.registry.AddView(rooms, &keys.Action{
		Key: tcell.KeyEnter, Label: "Enter", Description: "Open", Visible: true,
		Handler: func() { a.openRoom(a.roomList.SelectedRoom()) },
	})
	a.registry.AddView(rooms, &keys.Action{
		Key: tcell.KeyRune, Rune: 'n', Description: "Next page", Visible: true,
		Handler: func() { a.vm.NextPage(); a.render() },
	})
	a.registry.AddView(rooms, &keys.Action{
		Key: tcell.KeyRune, Rune: 'p', Description: "Prev page", Visible: true,
		Handler: func() { a.vm.PrevPage(); a.render() },
	})
	a.registry.AddView(rooms, &keys.Action{
		Key: tcell.KeyRune, Rune: 'D', Description: "Delete room", Visible: true,
		Handler: func() { a.deleteRoom(a.roomList.SelectedRoom()) },
	})
	a.registry.AddView(rooms, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Description: "Room info", Visible: true,
		Handler: func() { a.showInfo(a.roomList.SelectedRoom()) },
	})
	a.registry.AddView(rooms, &keys.Action{
		Key: tcell.KeyCtrlR, Label: "Ctrl-R", Description: "Refresh", Visible: true,
		Handler: func() { a.do("refresh", a.vm.Refresh) },
	})
	for n := 1; n <= 9; n++ {
		a.registry.AddView(rooms, &keys.Action{
			Key: tcell.KeyRune, Rune: rune('0' + n),
			Handler: func() { a.openRoom(a.roomList.RoomAt(n)) },
		})
	}

	chatPage := a.chatV.Name()
	a.registry.AddView(chatPage, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i', Description: "Compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.chatV.Composer()) },
	})
	a.registry.AddView(chatPage, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r', Description: "React " + model.DefaultReaction, Visible: true,
		Handler: func() { a.react(model.DefaultReaction) },
	})
	a.registry.AddView(chatPage, &keys.Action{
		Key: tcell.KeyRune, Rune: 'R', Description: "React…", Visible: true,
		Handler: func() { a.openPrompt(ui.PromptReact) },
	})
	a.registry.AddView(chatPage, &keys.Action{
		Key: tcell.KeyRune, Rune: 'P', Description: "Pin/unpin", Visible: true,
		Handler: func() {
			msg := a.chatV.SelectedMessage()
			a.do("pin", func(ctx context.Context) error { return a.vm.TogglePin(ctx, msg) })
		},
	})
	a.registry.AddView(chatPage, &keys.Action{
		Key: tcell.KeyRune, Rune: 'd', Description: "Delete message", Visible: true,
		Handler: func() {
			msg := a.chatV.SelectedMessage()
			a.do("delete message", func(ctx context.Context) error { return a.vm.DeleteMessage(ctx, msg) })
		},
	})
	a.registry.AddView(chatPage, &keys.Action{
		Key: tcell.KeyRune, Rune: 'D', Description: "Delete room", Visible: true,
		Handler: func() { a.deleteRoom(a.vm.View().SelectedRoom) },
	})
	a.registry.AddView(chatPage, &keys.Action{
		Key: tcell.KeyRune, Rune: 'I', Description: "Room info", Visible: true,
		Handler: func() { a.showInfo(a.vm.View().SelectedRoom) },
	})

	a.registry.AddView(a.searchV.Name(), &keys.Action{
		Key: tcell.KeyTab, Label: "Tab", Description: "Query/results", Visible: true,
		Handler: func() {
			if a.app.GetFocus() == a.searchV.Results() {
				a.app.SetFocus(a.searchV.Input())
			} else {
				a.app.SetFocus(a.searchV.Results())
			}
		},
	})
}

func (a *App) setupCallbacks() {
	a.loginV.SetOnQuit(a.Stop)
	a.loginV.SetOnSubmit(func(c views.Credentials) {
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
			defer cancel()
			err := a.vm.Login(ctx, c.Username, c.Password, c.DisplayName, c.Register)
			a.app.QueueUpdateDraw(func() {
				if err != nil {
					a.loginV.ShowError(errors.New(errMessage(err)))
					return
				}
				a.loginV.ShowMessage("")
				a.pages.Reset(a.roomList.Name())
				a.render()
			})
		}()
	})

	a.chatV.SetOnKeystroke(a.vm.Typist().Keystroke)
	a.chatV.SetOnSend(func(text string) {
		a.do("send", func(ctx context.Context) error { return a.vm.Send(ctx, text, "") })
	})

	a.searchV.SetOnQuery(func(query string) {
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
			defer cancel()
			err := a.vm.Search(ctx, query)
			a.app.QueueUpdateDraw(func() {
				if err != nil {
					a.flash.Err(fmt.Errorf("search: %s", errMessage(err)))
				} else {
					a.app.SetFocus(a.searchV.Results())
				}
				a.render()
			})
		}()
	})
	a.searchV.Results().SetSelectedFunc(func(int, int) {
		if roomID, _ := a.searchV.SelectedResult(); roomID != "" {
			a.openRoom(roomID)
		}
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.closePrompt()
		switch mode {
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		case ui.PromptReact:
			a.react(strings.TrimSpace(text))
		}
	})
	a.prompt.SetOnCancel(a.closePrompt)

	a.pages.SetOnChange(func(top ui.Component, stack []string) {
		a.crumbs.Update(stack)
		a.menu.Update(a.registry.Hints(top.Name()))
		a.app.SetFocus(top.FocusTarget())
	})
}

func (a *App) setupLayout() {
	for _, c := range []ui.Component{a.loginV, a.roomList, a.chatV, a.searchV, a.roomInfo, a.helpV} {
		a.pages.Add(c)
	}

	header := tview.NewFlex().
		AddItem(a.info, 40, 0, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(ui.NewLogo(a.theme), 16, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 6, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.flashBar, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.app.SetInputCapture(a.handleKey)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if a.promptOn {
		return event
	}
	current := a.pages.Current()
	focused := a.app.GetFocus()

	if event.Key() == tcell.KeyEscape {
		switch {
		case focused == a.chatV.Composer():
			a.vm.Typist().Stop()
			a.app.SetFocus(a.chatV.Messages())
		case current == a.searchV.Name():
			a.do("clear search", a.vm.ClearSearch)
			a.pages.Pop()
		case current != a.loginV.Name():
			a.pages.Pop()
		}
		return nil
	}

	// Text inputs and the login form get every other key.
	if current == a.loginV.Name() {
		return event
	}
	if _, ok := focused.(*tview.InputField); ok {
		if current == a.searchV.Name() && event.Key() == tcell.KeyTab {
			a.app.SetFocus(a.searchV.Results())
			return nil
		}
		return event
	}

	if a.registry.HandleEvent(current, event) {
		return nil
	}
	return event
}

func (a *App) show(c ui.Component) {
	if a.pages.Current() == a.loginV.Name() {
		return
	}
	if c == a.helpV {
		a.helpV.Update(a.helpSections())
	}
	a.pages.Push(c.Name())
}

func (a *App) helpSections() []views.HelpSection {
	sections := []views.HelpSection{{Title: "Global", Hints: a.registry.Hints("")}}
	for _, c := range []ui.Component{a.roomList, a.chatV, a.searchV} {
		all := a.registry.Hints(c.Name())
		own := all[:len(all)-len(sections[0].Hints)]
		sections = append(sections, views.HelpSection{Title: c.Name(), Hints: own})
	}
	return sections
}

func (a *App) openPrompt(mode ui.PromptMode) {
	if mode == ui.PromptReact && a.chatV.SelectedMessage().ID == "" {
		return
	}
	a.prompt.Activate(mode)
	a.promptOn = true
	a.root.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) closePrompt() {
	a.promptOn = false
	a.root.ResizeItem(a.prompt, 0, 0)
	if top := a.pages.Top(); top != nil {
		a.app.SetFocus(top.FocusTarget())
	}
}

// do runs a daemon call off the UI goroutine and flashes its error.
func (a *App) do(op string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			if status.Code(err) == codes.Aborted || a.ctx.Err() != nil {
				return
			}
			a.flash.Err(fmt.Errorf("%s: %s", op, errMessage(err)))
			a.app.QueueUpdateDraw(a.render)
		}
	}()
}

func (a *App) openRoom(roomID string) {
	if roomID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		err := a.vm.Open(ctx, roomID)
		a.app.QueueUpdateDraw(func() {
			switch {
			case status.Code(err) == codes.Aborted:
				return
			case err != nil:
				a.flash.Err(fmt.Errorf("open room: %s", errMessage(err)))
			default:
				if a.pages.Current() != a.chatV.Name() {
					a.pages.Reset(a.roomList.Name())
					a.pages.Push(a.chatV.Name())
				}
			}
			a.render()
		})
	}()
}

func (a *App) deleteRoom(roomID string) {
	if roomID == "" {
		return
	}
	if a.pages.Current() == a.chatV.Name() {
		a.pages.Pop()
	}
	a.do("delete room", func(ctx context.Context) error { return a.vm.DeleteRoom(ctx, roomID) })
}

func (a *App) react(emoji string) {
	msg := a.chatV.SelectedMessage()
	a.do("react", func(ctx context.Context) error { return a.vm.ToggleReaction(ctx, msg, emoji) })
}

func (a *App) showInfo(roomID string) {
	if roomID == "" {
		return
	}
	a.infoRoom = roomID
	a.roomInfo.Update(a.vm.View(), roomID)
	a.pages.Push(a.roomInfo.Name())
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "quit":
		a.Stop()
	case "help":
		a.show(a.helpV)
	case "search":
		a.show(a.searchV)
		if cmd.Args != "" {
			a.searchV.Input().SetText(cmd.Args)
			a.do("search", func(ctx context.Context) error { return a.vm.Search(ctx, cmd.Args) })
		}
	case "room":
		if id := a.findRoom(cmd.Args); id != "" {
			a.openRoom(id)
		} else {
			a.flash.Warn(fmt.Sprintf("no room matching %q", cmd.Args))
		}
	case "react":
		a.react(cmd.Args)
	case "photo":
		url, text := cmd.SplitFirst()
		if url == "" {
			a.flash.Warn("usage: photo <url> [text]")
			break
		}
		a.do("send photo", func(ctx context.Context) error { return a.vm.Send(ctx, text, url) })
	case "presence":
		p := chat.Presence(strings.ToLower(cmd.Args))
		if !p.Valid() {
			a.flash.Warn("presence must be online, away, busy or offline")
			break
		}
		a.do("presence", func(ctx context.Context) error {
			return a.grpc.Chat.SetPresence(ctx, &api.PresenceRequest{Presence: p})
		})
	case "refresh":
		a.do("refresh", a.vm.Refresh)
	case "logout":
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
			defer cancel()
			err := a.vm.Logout(ctx)
			a.app.QueueUpdateDraw(func() {
				if err != nil {
					a.flash.Err(fmt.Errorf("logout: %s", errMessage(err)))
				}
				a.render()
			})
		}()
	case "":
	default:
		a.flash.Warn(fmt.Sprintf("unknown command %q", cmd.Name))
	}
	a.render()
}

// findRoom matches a room by id, by 1-based position on the current page,
// or by case-insensitive name prefix.
func (a *App) findRoom(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}
	if n, err := strconv.Atoi(query); err == nil {
		return a.roomList.RoomAt(n)
	}
	v := a.vm.View()
	lower := strings.ToLower(query)
	for _, r := range v.Rooms {
		if r.ID == query || strings.HasPrefix(strings.ToLower(r.DisplayName(v.Self.ID)), lower) {
			return r.ID
		}
	}
	return ""
}

// render redraws every view from the latest snapshot. Must run on the UI goroutine.
func (a *App) render() {
	v := a.vm.View()
	state := a.vm.State()
	authRequired := state == string(connstate.AuthRequired)

	switch current := a.pages.Current(); {
	case authRequired && current != a.loginV.Name():
		a.pages.Reset(a.loginV.Name())
	case state != "" && !authRequired && current == a.loginV.Name() && a.vm.LoggedIn():
		a.pages.Reset(a.roomList.Name())
	}

	rooms, pager := a.vm.RoomPage()
	a.roomList.Update(rooms, pager, v)
	a.chatV.Update(v)
	a.searchV.Update(v)
	if a.pages.Current() == a.roomInfo.Name() {
		a.roomInfo.Update(v, a.infoRoom)
	}

	if st := a.vm.Status(); st != nil {
		cp := *st
		cp.PendingWrites = v.PendingWrites
		cp.User = v.Self
		if cp.Profile == "" {
			cp.Profile = a.profile
		}
		a.info.Update(&cp, state)
	}
	a.flashBar.Update(a.flash.Current(), v.Banner)
}

// Run starts the TUI application.
func (a *App) Run() error {
	go a.vm.RunTyping(a.ctx)
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		_, err := a.vm.LoadStatus(ctx)
		cancel()

		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.flash.Err(fmt.Errorf("daemon status: %s", errMessage(err)))
			}
			if a.vm.LoggedIn() {
				a.pages.Reset(a.roomList.Name())
			} else {
				a.pages.Reset(a.loginV.Name())
			}
			a.render()
		})

		go a.watchLoop()
		a.statusLoop()
	}()

	return a.app.Run()
}

// watchLoop keeps the view stream open, reopening it after a drop.
func (a *App) watchLoop() {
	for {
		err := a.vm.Watch(a.ctx, func() { a.app.QueueUpdateDraw(a.render) })
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.flash.Warn("lost connection to daemon: " + errMessage(err))
			a.app.QueueUpdateDraw(a.render)
		}
		select {
		case <-time.After(watchRetry):
		case <-a.ctx.Done():
			return
		}
	}
}

// statusLoop refreshes uptime and login state, and expires flash messages.
func (a *App) statusLoop() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
			_, _ = a.vm.LoadStatus(ctx)
			cancel()
			a.app.QueueUpdateDraw(a.render)
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func errMessage(err error) string {
	if s, ok := status.FromError(err); ok {
		return s.Message()
	}
	return err.Error()
}
