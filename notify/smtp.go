package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	UseSSL   bool // implicit TLS (465) instead of STARTTLS (587)
}

type smtpMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) Mailer {
	return &smtpMailer{cfg}
}

func (m *smtpMailer) Send(ctx context.Context, msg Message) error {
	body := buildMessage(m.fromHeader(), msg, time.Now())
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprint(m.cfg.Port))

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	var conn net.Conn
	var err error
	if m.cfg.UseSSL {
		conn, err = (&tls.Dialer{
			NetDialer: dialer,
			Config:    &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12},
		}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return errors.Wrap(err, "smtp.dial")
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return errors.Wrap(err, "smtp.client")
	}
	defer c.Close()

	if !m.cfg.UseSSL {
		if ok, _ := c.Extension("STARTTLS"); ok {
			err = c.StartTLS(&tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12})
			if err != nil {
				return errors.Wrap(err, "smtp.starttls")
			}
		}
	}

	if m.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			err = c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host))
			if err != nil {
				return errors.Wrap(err, "smtp.auth")
			}
		}
	}

	if err = c.Mail(m.cfg.From); err != nil {
		return errors.Wrap(err, "smtp.mail")
	}
	if err = c.Rcpt(msg.To); err != nil {
		return errors.Wrap(err, "smtp.rcpt")
	}
	w, err := c.Data()
	if err != nil {
		return errors.Wrap(err, "smtp.data")
	}
	if _, err = w.Write(body); err != nil {
		return errors.Wrap(err, "smtp.write")
	}
	if err = w.Close(); err != nil {
		return errors.Wrap(err, "smtp.write")
	}
	return c.Quit()
}

func (m *smtpMailer) fromHeader() string {
	name := strings.TrimSpace(m.cfg.FromName)
	if name == "" {
		return m.cfg.From
	}
	return fmt.Sprintf("%s <%s>", encodeWord(name), m.cfg.From)
}

func buildMessage(from string, msg Message, date time.Time) []byte {
	var b bytes.Buffer
	write := func(format string, a ...any) { fmt.Fprintf(&b, format, a...) }

	write("From: %s\r\n", from)
	write("To: %s\r\n", msg.To)
	write("Subject: %s\r\n", encodeWord(msg.Subject))
	write("Date: %s\r\n", date.Format(time.RFC1123Z))
	write("MIME-Version: 1.0\r\n")
	write("Content-Type: text/html; charset=UTF-8\r\n")
	write("Content-Transfer-Encoding: base64\r\n")
	write("\r\n")

	enc := base64.StdEncoding.EncodeToString([]byte(msg.HTML))
	for len(enc) > 76 {
		write("%s\r\n", enc[:76])
		enc = enc[76:]
	}
	write("%s\r\n", enc)
	return b.Bytes()
}

// encodeWord applies RFC 2047 encoding to non-ASCII header text.
func encodeWord(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 || s[i] < 32 {
			return "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte(s)) + "?="
		}
	}
	return s
}
