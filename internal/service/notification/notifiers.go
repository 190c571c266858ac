package notification

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/pathology-report-api/internal/config"
	"github.com/jwalitptl/pathology-report-api/internal/model"
	"github.com/jwalitptl/pathology-report-api/internal/service/artifact"
	"github.com/jwalitptl/pathology-report-api/pkg/messaging"
)

const EventReportSigned = "report.signed"

type eventNotifier struct {
	broker  messaging.Broker
	channel string
}

// NewEventNotifier publishes a report.signed event on channel.
func NewEventNotifier(broker messaging.Broker, channel string) Notifier {
	return &eventNotifier{broker: broker, channel: channel}
}

func (n *eventNotifier) Name() string { return "event" }

func (n *eventNotifier) Notify(ctx context.Context, report *SignedReport) error {
	return n.broker.Publish(ctx, n.channel, messaging.Message{
		Type: EventReportSigned,
		Payload: model.ReportSignedEvent{
			PatientID:     report.PatientID,
			AttentionCode: report.AttentionCode,
			PDFPath:       report.Path,
			SignedAt:      report.SignedAt,
		},
	})
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type emailNotifier struct {
	sender sender
	from   string
	to     string
}

// NewEmailNotifier mails the rendered PDF to the configured recipient.
func NewEmailNotifier(cfg config.SMTPConfig) Notifier {
	return &emailNotifier{
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:   cfg.From,
		to:     cfg.To,
	}
}

func (n *emailNotifier) Name() string { return "email" }

func (n *emailNotifier) Notify(ctx context.Context, report *SignedReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", n.to)
	m.SetHeader("Subject", fmt.Sprintf("Informe %s firmado", report.AttentionCode))
	m.SetBody("text/plain", fmt.Sprintf(
		"Se adjunta el informe %s de %s, firmado el %s.",
		report.AttentionCode, report.PatientName, report.SignedAt.Format("02/01/2006 15:04"),
	))

	doc := report.Document
	m.Attach(filepath.Base(report.Path), gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(doc)
		return err
	}))

	if err := n.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send report email: %w", err)
	}
	return nil
}

type mirrorNotifier struct {
	mirror artifact.Mirror
}

// NewMirrorNotifier uploads each signed report to the off-site mirror.
func NewMirrorNotifier(mirror artifact.Mirror) Notifier {
	return &mirrorNotifier{mirror: mirror}
}

func (n *mirrorNotifier) Name() string { return "mirror" }

func (n *mirrorNotifier) Notify(ctx context.Context, report *SignedReport) error {
	return n.mirror.Upload(ctx, report.Path, report.Document)
}
