package mailer

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
)

// Protocol selects the wire protocol for the SMTP connection.
type Protocol uint8

const (
	// ProtocolSMTP is an exported constant or variable used by the email authentication engine.
	ProtocolSMTP Protocol = iota + 1
	// ProtocolStartTLS is an exported constant or variable used by the email authentication engine.
	ProtocolStartTLS
	// ProtocolSMTPS is an exported constant or variable used by the email authentication engine.
	ProtocolSMTPS
)

// String describes the string operation and its observable behavior.
//
// String does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p Protocol) String() string {
	switch p {
	case ProtocolSMTP:
		return "SMTP"
	case ProtocolStartTLS:
		return "STARTTLS"
	case ProtocolSMTPS:
		return "SMTPS"
	default:
		return "unknown"
	}
}

// ProtocolForPort derives the protocol from the SMTP port: 25 is plain SMTP,
// 587 is STARTTLS, 465 and every other port is implicit-TLS SMTPS.
func ProtocolForPort(port int) Protocol {
	switch port {
	case 25:
		return ProtocolSMTP
	case 587:
		return ProtocolStartTLS
	default:
		return ProtocolSMTPS
	}
}

// SMTPConfig defines a public type used by emailauth APIs.
//
// SMTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SMTPConfig struct {
	UseDefaultMailServer bool

	Host     string
	Port     int
	Sender   string
	Account  string
	Password string
}

// Protocol describes the protocol operation and its observable behavior.
//
// Protocol does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c SMTPConfig) Protocol() Protocol {
	return ProtocolForPort(c.Port)
}

// SMTPFactory opens authenticated SMTP connections per the configured
// protocol. It implements [TransportFactory].
type SMTPFactory struct {
	cfg SMTPConfig
}

// NewSMTPFactory describes the newsmtpfactory operation and its observable behavior.
//
// NewSMTPFactory does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewSMTPFactory(cfg SMTPConfig) *SMTPFactory {
	return &SMTPFactory{cfg: cfg}
}

// Connect describes the connect operation and its observable behavior.
//
// Connect may return an error when input validation, dependency calls, or security checks fail.
// Connect does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (f *SMTPFactory) Connect() (Transport, error) {
	addr := net.JoinHostPort(f.cfg.Host, strconv.Itoa(f.cfg.Port))

	var client *smtp.Client
	var err error

	switch f.cfg.Protocol() {
	case ProtocolSMTP:
		client, err = smtp.Dial(addr)
	case ProtocolStartTLS:
		client, err = smtp.Dial(addr)
		if err == nil {
			err = client.StartTLS(&tls.Config{ServerName: f.cfg.Host})
		}
	default:
		var conn *tls.Conn
		conn, err = tls.Dial("tcp", addr, &tls.Config{ServerName: f.cfg.Host})
		if err == nil {
			client, err = smtp.NewClient(conn, f.cfg.Host)
		}
	}
	if err != nil {
		if client != nil {
			_ = client.Close()
		}
		return nil, fmt.Errorf("smtp connect %s: %w", addr, err)
	}

	if f.cfg.Password != "" {
		account := f.cfg.Account
		if account == "" {
			account = f.cfg.Sender
		}
		auth := smtp.PlainAuth("", account, f.cfg.Password, f.cfg.Host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp auth: %w", err)
		}
	}

	return &smtpTransport{client: client, from: f.cfg.Sender}, nil
}

type smtpTransport struct {
	client *smtp.Client
	from   string
}

func (t *smtpTransport) Send(msg Message) error {
	if err := t.client.Mail(t.from); err != nil {
		return err
	}
	if err := t.client.Rcpt(msg.To); err != nil {
		return err
	}

	w, err := t.client.Data()
	if err != nil {
		return err
	}

	payload := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		t.from, msg.To, msg.Subject, msg.Body,
	)
	if _, err := w.Write([]byte(payload)); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (t *smtpTransport) Close() error {
	if err := t.client.Quit(); err != nil {
		return t.client.Close()
	}
	return nil
}
