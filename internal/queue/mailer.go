package queue

import (
    "bytes"
    "context"
    "fmt"
    "html/template"
    "net/smtp"
    "strings"
    texttemplate "text/template"
)

// SMTPConfig holds the outgoing mail settings.  Mail is disabled unless
// Host, Port and From are set; Username may stay empty for relays that
// do not authenticate.
type SMTPConfig struct {
    Host     string
    Port     string
    Username string
    Password string
    From     string
}

// Enabled reports whether enough settings are present to send mail.
func (c SMTPConfig) Enabled() bool {
    return c.Host != "" && c.Port != "" && c.From != ""
}

type mailTemplate struct {
    subject *texttemplate.Template
    body    *template.Template
}

var mailTemplates = map[string]mailTemplate{
    "reservation_confirmed": {
        subject: texttemplate.Must(texttemplate.New("s").Parse(`Your seat for {{.session_title}} is confirmed`)),
        body: template.Must(template.New("b").Parse(`<p>Hi {{.guest_name}},</p>
<p>You have a seat at <strong>{{.session_title}}</strong> ({{.game_name}}), hosted by {{.host_name}}.</p>
<p>When: {{.starts_at}}<br>Where: {{.location_name}}, {{.location_address}}</p>
<p>Reservation #{{.reservation_id}}</p>`)),
    },
    "reservation_received": {
        subject: texttemplate.Must(texttemplate.New("s").Parse(`{{.guest_name}} joined {{.session_title}}`)),
        body: template.Must(template.New("b").Parse(`<p>Hi {{.host_name}},</p>
<p>{{.guest_name}} reserved a seat at <strong>{{.session_title}}</strong> ({{.game_name}}) on {{.starts_at}}.</p>
{{if .message}}<p>Their note: {{.message}}</p>{{end}}
<p>Reservation #{{.reservation_id}}</p>`)),
    },
}

// Mailer delivers notifications as HTML e-mail over SMTP.
type Mailer struct {
    Config SMTPConfig

    // send is smtp.SendMail unless replaced in tests.
    send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer returns a Mailer for cfg.
func NewMailer(cfg SMTPConfig) *Mailer {
    return &Mailer{Config: cfg, send: smtp.SendMail}
}

// Deliver renders the template for ev.Kind and sends it to ev.Recipient.
func (m *Mailer) Deliver(_ context.Context, ev NotificationEvent) error {
    msg, err := m.render(ev)
    if err != nil {
        return err
    }
    var auth smtp.Auth
    if m.Config.Username != "" {
        auth = smtp.PlainAuth("", m.Config.Username, m.Config.Password, m.Config.Host)
    }
    addr := m.Config.Host + ":" + m.Config.Port
    if err := m.send(addr, auth, m.Config.From, []string{ev.Recipient}, msg); err != nil {
        return fmt.Errorf("send mail to %s: %w", ev.Recipient, err)
    }
    return nil
}

func (m *Mailer) render(ev NotificationEvent) ([]byte, error) {
    tpl, ok := mailTemplates[ev.Kind]
    if !ok {
        return nil, fmt.Errorf("no mail template for %q", ev.Kind)
    }
    var subject, body bytes.Buffer
    if err := tpl.subject.Execute(&subject, ev.Data); err != nil {
        return nil, fmt.Errorf("render subject: %w", err)
    }
    if err := tpl.body.Execute(&body, ev.Data); err != nil {
        return nil, fmt.Errorf("render body: %w", err)
    }
    // Header injection guard: the subject comes from user-supplied titles.
    subj := strings.NewReplacer("\r", " ", "\n", " ").Replace(subject.String())

    var msg bytes.Buffer
    fmt.Fprintf(&msg, "To: %s\r\n", ev.Recipient)
    fmt.Fprintf(&msg, "From: Meetup <%s>\r\n", m.Config.From)
    fmt.Fprintf(&msg, "Subject: %s\r\n", subj)
    msg.WriteString("MIME-Version: 1.0\r\n")
    msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
    msg.Write(body.Bytes())
    return msg.Bytes(), nil
}
