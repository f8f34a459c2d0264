package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/nkiryanov/kaizen/internal/apperrors"
)

// Template names
const (
	TemplateVerification = "verification"
)

//go:embed templates
var templatesFS embed.FS

// Every template has html and plain text variants: <name>.html and <name>.txt
type Service struct {
	sender Sender
	html   *htmltemplate.Template
	text   *texttemplate.Template
}

func NewService(sender Sender) (*Service, error) {
	html, err := htmltemplate.New("").Funcs(sprig.HtmlFuncMap()).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("error while parsing html templates. Err: %w", err)
	}

	text, err := texttemplate.New("").Funcs(sprig.TxtFuncMap()).ParseFS(templatesFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("error while parsing text templates. Err: %w", err)
	}

	return &Service{sender: sender, html: html, text: text}, nil
}

// Render template and send it to the recipient
func (s *Service) SendTemplate(ctx context.Context, to Recipient, subject string, name string, data any) error {
	var html, text bytes.Buffer

	if err := s.html.ExecuteTemplate(&html, name+".html", data); err != nil {
		return fmt.Errorf("error while rendering %s html. Err: %w", name, err)
	}
	if err := s.text.ExecuteTemplate(&text, name+".txt", data); err != nil {
		return fmt.Errorf("error while rendering %s text. Err: %w", name, err)
	}

	msg := Message{
		To:      []Recipient{to},
		Subject: strings.TrimSpace(subject),
		HTML:    html.String(),
		Text:    strings.TrimSpace(text.String()),
	}
	if msg.Subject == "" || msg.Text == "" {
		return apperrors.Unprocessable("Provide both a subject and text to send email.")
	}

	return s.sender.Send(ctx, msg)
}
