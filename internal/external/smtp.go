package external

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"valor/internal/types"

	"github.com/google/uuid"
)

type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	Logger      *slog.Logger
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender implements EmailSender over authenticated SMTP with STARTTLS
// negotiated by net/smtp.
type SMTPSender struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
	logger   *slog.Logger
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FromAddress == "" {
		cfg.FromAddress = cfg.Username
	}
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail, logger: logger}
}

// Send delivers msg and returns the generated Message-ID. net/smtp has no
// context support, so cancellation abandons the wait but not the dial.
func (s *SMTPSender) Send(ctx context.Context, msg Email) (string, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	host := s.cfg.Host
	if at := strings.LastIndex(s.cfg.FromAddress, "@"); at >= 0 {
		host = s.cfg.FromAddress[at+1:]
	}
	msgID := fmt.Sprintf("<%s@%s>", uuid.NewString(), host)
	raw := buildMIMEMessage(s.cfg.FromName, s.cfg.FromAddress, msgID, msg)

	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(addr, auth, s.cfg.FromAddress, []string{msg.To}, raw)
	}()

	select {
	case <-ctx.Done():
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider, "smtp send abandoned", ctx.Err())
	case err := <-done:
		if err != nil {
			return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider, "smtp send failed", err)
		}
	}
	return msgID, nil
}

func buildMIMEMessage(fromName, fromAddr, msgID string, msg Email) []byte {
	from := fromAddr
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", fromName), fromAddr)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", msgID)
	b.WriteString("MIME-Version: 1.0\r\n")

	if msg.TextBody == "" {
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.HTMLBody)
		return []byte(b.String())
	}

	boundary := "valor-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n", boundary, msg.TextBody)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n", boundary, msg.HTMLBody)
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}

var _ EmailSender = (*SMTPSender)(nil)
