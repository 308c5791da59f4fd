// Package email delivers activation codes to users. The service layer only
// sees the Sender interface; the production implementation talks to the
// Resend HTTP API.
package email

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"time"
)

//go:embed templates/activation_email.html
var templates embed.FS

const (
	resendEndpoint = "https://api.resend.com/emails"
	subject        = "Ihr CuraDesk Aktivierungscode"
)

// Sender delivers an activation code to an address. Implementations must
// treat the code as a secret: it is logged nowhere and shown to the user
// exactly once.
type Sender interface {
	SendActivationCode(ctx context.Context, to, code string) error
}

// Resend sends activation emails through the Resend transactional API.
type Resend struct {
	apiKey string
	from   string
	tmpl   *template.Template
	client *http.Client
}

// NewResend builds a Resend sender. templatePath overrides the embedded
// activation template when non-empty.
func NewResend(apiKey, from, templatePath string) (*Resend, error) {
	var (
		tmpl *template.Template
		err  error
	)
	if templatePath != "" {
		raw, readErr := os.ReadFile(templatePath)
		if readErr != nil {
			return nil, fmt.Errorf("read email template: %w", readErr)
		}
		tmpl, err = template.New("activation").Parse(string(raw))
	} else {
		tmpl, err = template.ParseFS(templates, "templates/activation_email.html")
	}
	if err != nil {
		return nil, fmt.Errorf("parse email template: %w", err)
	}

	return &Resend{
		apiKey: apiKey,
		from:   from,
		tmpl:   tmpl,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendActivationCode renders the activation template and posts it to the
// Resend API.
func (r *Resend) SendActivationCode(ctx context.Context, to, code string) error {
	var body bytes.Buffer
	if err := r.tmpl.Execute(&body, struct{ Code string }{Code: code}); err != nil {
		return fmt.Errorf("render activation email: %w", err)
	}

	payload, err := json.Marshal(sendRequest{
		From:    r.from,
		To:      []string{to},
		Subject: subject,
		HTML:    body.String(),
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resendEndpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send email: resend returned %s", resp.Status)
	}
	return nil
}
