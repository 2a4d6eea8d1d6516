package service

import (
	"context"
	"fmt"
	"log/slog"

	sendgridgo "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailService abstrai o transporte de e-mail do Notifier.
type EmailService interface {
	SendEmail(ctx context.Context, destinatario, assunto, corpoHTML string) error
}

// sendGridService envia via SendGrid.
type sendGridService struct {
	client        *sendgridgo.Client
	remetente     string
	nomeRemetente string
}

func NewSendGridService(apiKey, remetente, nomeRemetente string) EmailService {
	return &sendGridService{
		client:        sendgridgo.NewSendClient(apiKey),
		remetente:     remetente,
		nomeRemetente: nomeRemetente,
	}
}

func (s *sendGridService) SendEmail(_ context.Context, destinatario, assunto, corpoHTML string) error {
	de := mail.NewEmail(s.nomeRemetente, s.remetente)
	para := mail.NewEmail(destinatario, destinatario)
	msg := mail.NewSingleEmail(de, assunto, para, "", corpoHTML)

	resp, err := s.client.Send(msg)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid respondeu %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// noopEmailService é usado quando o SendGrid não está configurado.
type noopEmailService struct{}

func NewNoopEmailService() EmailService {
	return noopEmailService{}
}

func (noopEmailService) SendEmail(_ context.Context, destinatario, assunto, _ string) error {
	slog.Debug("E-mail suprimido (transporte não configurado)",
		"destinatario", destinatario, "assunto", assunto)
	return nil
}
