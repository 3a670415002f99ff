package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/eldtechnologies/abxy/internal/chat"
	"github.com/eldtechnologies/abxy/internal/models"
)

const title = "ABXY CHAT"

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.room.View() == chat.ViewChat {
		return m.chatView()
	}
	return m.authView()
}

func (m Model) authView() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render(title))
	b.WriteString("\n")

	login, signup := m.styles.TabInactive, m.styles.TabInactive
	if m.mode == modeLogin {
		login = m.styles.TabActive
	} else {
		signup = m.styles.TabActive
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, login.Render(modeLogin.String()), " ", signup.Render(modeSignUp.String())))
	b.WriteString("\n\n")

	b.WriteString(m.styles.Label.Render("Email") + m.email.View() + "\n")
	b.WriteString(m.styles.Label.Render("Password") + m.password.View() + "\n")

	action := m.mode.String()
	if m.busy {
		action += "..."
	}
	b.WriteString(m.styles.Help.Render("enter: " + strings.ToLower(action) + " • tab: switch login/sign up • ctrl+c: quit"))

	if e := m.room.Err(); e != "" {
		b.WriteString("\n" + m.styles.Error.Render(e))
	}
	return b.String()
}

func (m Model) chatView() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render(title))
	b.WriteString("\n")

	email := ""
	if u := m.room.User(); u != nil {
		email = u.Email
	}
	b.WriteString(m.styles.Welcome.Render("Welcome, " + email + "!"))
	b.WriteString("\n")

	b.WriteString(m.styles.MessagesBox.Render(m.messages.View()))
	b.WriteString("\n")
	b.WriteString(m.compose.View())

	help := "enter: send • pgup/pgdn: scroll • ctrl+o: sign out • ctrl+c: quit"
	if m.room.Pending() {
		help = "sending... • " + help
	}
	b.WriteString("\n" + m.styles.Help.Render(help))

	if e := m.room.Err(); e != "" {
		b.WriteString("\n" + m.styles.Error.Render(e))
	}
	return b.String()
}

// renderMessages lays the list out in the order given.
func renderMessages(s Styles, msgs []models.Message) string {
	if len(msgs) == 0 {
		return s.Empty.Render("No messages yet. Say something!")
	}

	lines := make([]string, 0, len(msgs)*2)
	for _, msg := range msgs {
		lines = append(lines, s.MessageMeta.Render(messageMeta(msg)))
		lines = append(lines, s.MessageBody.Render(msg.Content))
	}
	return strings.Join(lines, "\n")
}

// messageMeta is the "author • time" line above a message.
func messageMeta(msg models.Message) string {
	author := msg.AuthorEmail()
	if author == "" {
		author = "Unknown"
	}
	return author + " • " + msg.CreatedAt.Display("15:04:05")
}
