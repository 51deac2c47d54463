package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"
)

var errHeaderInjection = errors.New("address contains a line break")

var failureBody = template.Must(template.New("failure").Parse(
	"Hello,\r\n\r\n" +
		"Frames could not be extracted from your video.\r\n\r\n" +
		"Job ID: {{.JobID}}\r\n" +
		"Video: {{.VideoName}}\r\n" +
		"Error: {{.Error}}\r\n\r\n" +
		"Extraction is not retried automatically. Please submit the video again.\r\n\r\n" +
		"-- Frame Extractor\r\n",
))

type SMTPConfig struct {
	Host string
	Port int
	From string
	// Username enables PLAIN auth when set.
	Username string
	Password string
}

// SMTPNotifier mails the requester when a queue-driven extraction fails.
type SMTPNotifier struct {
	addr   string
	from   string
	auth   smtp.Auth
	logger *zap.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now    func() time.Time
}

func NewSMTPNotifier(cfg SMTPConfig, logger *zap.Logger) *SMTPNotifier {
	n := &SMTPNotifier{
		addr:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from:   cfg.From,
		logger: logger,
		send:   smtp.SendMail,
		now:    time.Now,
	}
	if cfg.Username != "" {
		n.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return n
}

func (n *SMTPNotifier) NotifyFailure(ctx context.Context, email, jobID, videoName, errorMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(email, "\r\n") {
		return fmt.Errorf("recipient %q: %w", email, errHeaderInjection)
	}

	msg, err := n.compose(email, jobID, videoName, errorMsg)
	if err != nil {
		return err
	}

	log := n.logger.With(zap.String("to", email), zap.String("job_id", jobID))
	if err := n.send(n.addr, n.auth, n.from, []string{email}, msg); err != nil {
		log.Error("failed to send failure notification email", zap.Error(err))
		return fmt.Errorf("send email: %w", err)
	}

	log.Info("failure notification email sent")
	return nil
}

func (n *SMTPNotifier) compose(to, jobID, videoName, errorMsg string) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", n.from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: Frame extraction failed [Job %s]\r\n", jobID)
	fmt.Fprintf(&buf, "Date: %s\r\n", n.now().UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")

	err := failureBody.Execute(&buf, struct {
		JobID, VideoName, Error string
	}{jobID, videoName, errorMsg})
	if err != nil {
		return nil, fmt.Errorf("render email: %w", err)
	}
	return buf.Bytes(), nil
}
