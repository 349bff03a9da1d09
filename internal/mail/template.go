package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

// confirmationHTML is the HTML body of the email confirmation mail.
// html/template escapes user controlled fields like the display name.
var confirmationHTML = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2>{{.AppName}}</h2>
  <p>Hello {{.Name}},</p>
  <p>please confirm your email address by entering the following code:</p>
  <p style="font-size: 24px; font-weight: bold; letter-spacing: 2px;">{{.Code}}</p>
{{- if .Link}}
  <p>Or follow this link: <a href="{{.Link}}">{{.Link}}</a></p>
{{- end}}
  <p>If you did not request this, you can ignore this mail.</p>
</body>
</html>
`))

type confirmationData struct {
	AppName string
	Name    string
	Code    string
	Link    string
}

// NewConfirmationMessage builds the mail carrying an email confirmation code.
// The link is optional; when empty only the code is shown.
func NewConfirmationMessage(to, name, code, link, appName string) (Message, error) {
	var buf bytes.Buffer

	err := confirmationHTML.Execute(&buf, confirmationData{AppName: appName, Name: name, Code: code, Link: link})
	if err != nil {
		return Message{}, fmt.Errorf("failed to render confirmation mail: %w", err)
	}

	text := fmt.Sprintf(
		"Hello %s,\r\n\r\nplease confirm your email address by entering the following code:\r\n\r\n%s\r\n\r\n"+
			"If you did not request this, you can ignore this mail.\r\n", name, code)

	if link != "" {
		text = fmt.Sprintf(
			"Hello %s,\r\n\r\nplease confirm your email address by entering the following code:\r\n\r\n%s\r\n\r\n"+
				"Or follow this link: %s\r\n\r\nIf you did not request this, you can ignore this mail.\r\n",
			name, code, link)
	}

	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s: confirm your email address", appName),
		Text:    text,
		HTML:    buf.String(),
	}, nil
}
