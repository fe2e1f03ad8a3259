package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/notehub/nhchat/internal/tui/ui"
)

// Credentials is what the login form submits.
type Credentials struct {
	Username    string
	Password    string
	DisplayName string
	Register    bool
}

// LoginView asks for relay credentials.
type LoginView struct {
	*tview.Flex
	theme    *ui.Theme
	form     *tview.Form
	message  *tview.TextView
	onSubmit func(Credentials)
	onQuit   func()
}

// NewLoginView creates the login page.
func NewLoginView(theme *ui.Theme) *LoginView {
	lv := &LoginView{theme: theme}

	form := tview.NewForm().
		AddInputField("Username", "", 32, nil, nil).
		AddPasswordField("Password", "", 32, '*', nil).
		AddInputField("Display name", "", 32, nil, nil).
		AddCheckbox("Create account", false, nil).
		AddButton("Sign in", lv.submit).
		AddButton("Quit", func() {
			if lv.onQuit != nil {
				lv.onQuit()
			}
		})
	form.SetBorder(true)
	form.SetBorderColor(theme.BorderColor)
	form.SetBackgroundColor(theme.BgColor)
	form.SetFieldBackgroundColor(theme.BgColor)
	form.SetFieldTextColor(theme.FgColor)
	form.SetLabelColor(theme.MenuKeyColor)
	form.SetButtonBackgroundColor(theme.TableCursorBg)
	form.SetButtonTextColor(theme.TableCursorFg)
	form.SetTitle(" Sign in to the relay ")
	form.SetTitleColor(theme.TitleColor)

	message := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	message.SetBackgroundColor(theme.BgColor)

	lv.form = form
	lv.message = message

	center := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(form, 13, 0, true).
		AddItem(message, 2, 0, false).
		AddItem(nil, 0, 1, false)
	lv.Flex = tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(center, 56, 0, true).
		AddItem(nil, 0, 1, false)
	return lv
}

// Name implements ui.Component.
func (lv *LoginView) Name() string { return "Login" }

// FocusTarget implements ui.Component.
func (lv *LoginView) FocusTarget() tview.Primitive { return lv.form }

// SetOnSubmit sets the callback for the sign in button.
func (lv *LoginView) SetOnSubmit(fn func(Credentials)) { lv.onSubmit = fn }

// SetOnQuit sets the callback for the quit button.
func (lv *LoginView) SetOnQuit(fn func()) { lv.onQuit = fn }

// SetUsername pre-fills the username field.
func (lv *LoginView) SetUsername(name string) {
	lv.form.GetFormItemByLabel("Username").(*tview.InputField).SetText(name)
}

// ShowMessage displays a status line under the form.
func (lv *LoginView) ShowMessage(msg string) {
	lv.message.Clear()
	_, _ = fmt.Fprintf(lv.message, "[%s]%s[-]", ui.ColorName(lv.theme.FgColor), tview.Escape(msg))
}

// ShowError displays an error under the form and clears the password.
func (lv *LoginView) ShowError(err error) {
	lv.form.GetFormItemByLabel("Password").(*tview.InputField).SetText("")
	lv.message.Clear()
	_, _ = fmt.Fprintf(lv.message, "[%s]%s[-]", ui.ColorName(lv.theme.FlashErrColor), tview.Escape(err.Error()))
}

// Values returns the current form contents.
func (lv *LoginView) Values() Credentials {
	text := func(label string) string {
		return lv.form.GetFormItemByLabel(label).(*tview.InputField).GetText()
	}
	return Credentials{
		Username:    text("Username"),
		Password:    text("Password"),
		DisplayName: text("Display name"),
		Register:    lv.form.GetFormItemByLabel("Create account").(*tview.Checkbox).IsChecked(),
	}
}

func (lv *LoginView) submit() {
	if lv.onSubmit == nil {
		return
	}
	lv.ShowMessage("Signing in…")
	lv.onSubmit(lv.Values())
}
