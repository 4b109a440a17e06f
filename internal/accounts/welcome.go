package accounts

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/nhle/taskflow/internal/mailer"
	"github.com/nhle/taskflow/internal/model"
)

const welcomeSubject = "Your TaskFlow Account Has Been Created"

var welcomeHTML = template.Must(template.New("welcome").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #4F46E5;">Welcome to TaskFlow!</h2>
  <p>Hello <strong>{{.FullName}}</strong>,</p>
  <p>Your account has been created by an administrator. Here are your login credentials:</p>
  <div style="background-color: #F3F4F6; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <p style="margin: 5px 0;"><strong>Email:</strong> {{.Email}}</p>
    <p style="margin: 5px 0;"><strong>Username:</strong> {{.Username}}</p>
    <p style="margin: 5px 0;"><strong>Password:</strong> <code>{{.Password}}</code></p>
    <p style="margin: 5px 0;"><strong>Role:</strong> {{.Role}}</p>
  </div>
  {{if .LoginURL}}<p>You can log in at: <a href="{{.LoginURL}}" style="color: #4F46E5;">{{.LoginURL}}</a></p>{{end}}
  <p style="color: #EF4444; font-weight: bold;">Please change your password after your first login.</p>
  <p>If you have any questions, please contact your administrator.</p>
  <p>Best regards,<br>TaskFlow Team</p>
</div>
`))

type welcomeData struct {
	FullName string
	Email    string
	Username string
	Password string
	Role     model.Role
	LoginURL string
}

// welcomeMessage renders the credentials email for a provisioned account.
func welcomeMessage(user model.User, password, loginURL string) (mailer.Message, error) {
	data := welcomeData{
		FullName: user.FullName,
		Email:    user.Email,
		Username: user.Username,
		Password: password,
		Role:     user.Role,
		LoginURL: loginURL,
	}

	var html bytes.Buffer
	if err := welcomeHTML.Execute(&html, data); err != nil {
		return mailer.Message{}, fmt.Errorf("rendering welcome email: %w", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Hello %s,\n\n", user.FullName)
	text.WriteString("Your account has been created by an administrator. Here are your login credentials:\n\n")
	fmt.Fprintf(&text, "  Email:    %s\n", user.Email)
	fmt.Fprintf(&text, "  Username: %s\n", user.Username)
	fmt.Fprintf(&text, "  Password: %s\n", password)
	fmt.Fprintf(&text, "  Role:     %s\n\n", user.Role)
	if loginURL != "" {
		fmt.Fprintf(&text, "You can log in at: %s\n\n", loginURL)
	}
	text.WriteString("Please change your password after your first login.\n\nTaskFlow Team\n")

	return mailer.Message{
		To:      user.Email,
		Subject: welcomeSubject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
