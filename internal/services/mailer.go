// internal/services/mailer.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"sync"
	texttemplate "text/template"

	"github.com/sirupsen/logrus"

	"github.com/javajoker/storefront-backend/internal/config"
	"github.com/javajoker/storefront-backend/internal/models"
)

// Email template names.
const (
	EmailWelcome           = "welcome"
	EmailOrderConfirmation = "order_confirmation"
	EmailOrderShipped      = "order_shipped"
	EmailOrderCancelled    = "order_cancelled"
	EmailRefundProcessed   = "refund_processed"
	EmailReturnStatus      = "return_status"
)

// EmailSender delivers a rendered HTML email.
type EmailSender interface {
	Send(to, subject, htmlBody string) error
}

// SMTPSender sends through the configured SMTP relay, or logs the message
// when no host is configured.
type SMTPSender struct {
	cfg config.EmailConfig
}

func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(to, subject, htmlBody string) error {
	if s.cfg.SMTPHost == "" {
		logrus.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Info("SMTP not configured, email logged instead of sent")
		return nil
	}

	var auth smtp.Auth
	if s.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	}

	from := s.cfg.FromEmail
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromEmail)
	}

	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		from, to, subject, htmlBody))

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	return smtp.SendMail(addr, auth, s.cfg.FromEmail, []string{to}, msg)
}

type emailTemplate struct {
	subject *texttemplate.Template
	body    *template.Template
}

var emailTemplates = map[string]emailTemplate{
	EmailWelcome: parseEmail("Welcome to {{.StoreName}}", `
<!DOCTYPE html>
<html>
<body>
	<h2>Welcome, {{.Name}}!</h2>
	<p>Your {{.StoreName}} account is ready. Start shopping at <a href="{{.StoreURL}}">{{.StoreURL}}</a>.</p>
</body>
</html>`),
	EmailOrderConfirmation: parseEmail("Order {{.Order.OrderNumber}} confirmed", `
<!DOCTYPE html>
<html>
<body>
	<h2>Thank you for your order</h2>
	<p>Order <strong>{{.Order.OrderNumber}}</strong> has been received.</p>
	<table>
		{{range .Order.Items}}<tr><td>{{.ProductName}}</td><td>× {{.Quantity}}</td><td>{{.LineTotal.StringFixed 2}}</td></tr>{{end}}
	</table>
	<p>Subtotal: {{.Order.Subtotal.StringFixed 2}}<br>
	{{if .Order.DiscountTotal.IsPositive}}Discount: -{{.Order.DiscountTotal.StringFixed 2}}<br>{{end}}
	Shipping: {{.Order.ShippingTotal.StringFixed 2}}<br>
	Tax: {{.Order.TaxTotal.StringFixed 2}}<br>
	<strong>Total: {{.Order.Total.StringFixed 2}} {{.Order.Currency}}</strong></p>
	<p><a href="{{.OrderURL}}">View your order</a></p>
</body>
</html>`),
	EmailOrderShipped: parseEmail("Order {{.Order.OrderNumber}} has shipped", `
<!DOCTYPE html>
<html>
<body>
	<h2>Your order is on its way</h2>
	<p>Order <strong>{{.Order.OrderNumber}}</strong> shipped{{if .Shipment.Carrier}} with {{.Shipment.Carrier}}{{end}}.</p>
	{{if .Shipment.TrackingNumber}}<p>Tracking number: {{.Shipment.TrackingNumber}}</p>{{end}}
</body>
</html>`),
	EmailOrderCancelled: parseEmail("Order {{.Order.OrderNumber}} cancelled", `
<!DOCTYPE html>
<html>
<body>
	<h2>Your order was cancelled</h2>
	<p>Order <strong>{{.Order.OrderNumber}}</strong> has been cancelled. Any payment taken will be refunded.</p>
</body>
</html>`),
	EmailRefundProcessed: parseEmail("Refund for order {{.Order.OrderNumber}}", `
<!DOCTYPE html>
<html>
<body>
	<h2>Refund processed</h2>
	<p>We refunded {{.Refund.Amount.StringFixed 2}} {{.Order.Currency}} for order <strong>{{.Order.OrderNumber}}</strong>.</p>
	{{if .Refund.Reason}}<p>Reason: {{.Refund.Reason}}</p>{{end}}
</body>
</html>`),
	EmailReturnStatus: parseEmail("Return for order {{.Order.OrderNumber}}: {{.Return.Status}}", `
<!DOCTYPE html>
<html>
<body>
	<h2>Return update</h2>
	<p>Your return for order <strong>{{.Order.OrderNumber}}</strong> is now <strong>{{.Return.Status}}</strong>.</p>
	{{if .Return.AdminNotes}}<p>{{.Return.AdminNotes}}</p>{{end}}
</body>
</html>`),
}

func parseEmail(subject, body string) emailTemplate {
	return emailTemplate{
		subject: texttemplate.Must(texttemplate.New("subject").Parse(subject)),
		body:    template.Must(template.New("body").Parse(body)),
	}
}

// Mailer renders transactional emails and hands them to an EmailSender.
type Mailer struct {
	sender EmailSender
	cfg    *config.Config
	async  bool
	wg     sync.WaitGroup
}

// NewMailer sends in background goroutines; call Wait before exit.
func NewMailer(cfg *config.Config, sender EmailSender) *Mailer {
	if sender == nil {
		sender = NewSMTPSender(cfg.Email)
	}
	return &Mailer{sender: sender, cfg: cfg, async: true}
}

// NewSyncMailer sends on the calling goroutine.
func NewSyncMailer(cfg *config.Config, sender EmailSender) *Mailer {
	m := NewMailer(cfg, sender)
	m.async = false
	return m
}

// Wait blocks until queued emails have been handed to the sender.
func (m *Mailer) Wait() {
	m.wg.Wait()
}

// Render returns the subject and HTML body for name.
func (m *Mailer) Render(name string, data map[string]interface{}) (string, string, error) {
	tmpl, ok := emailTemplates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}

	if _, ok := data["StoreName"]; !ok {
		data["StoreName"] = m.cfg.Store.Name
	}
	if _, ok := data["StoreURL"]; !ok {
		data["StoreURL"] = m.cfg.Frontend.BaseURL
	}

	var subject bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("failed to render email subject: %w", err)
	}
	var body bytes.Buffer
	if err := tmpl.body.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("failed to render email body: %w", err)
	}
	return strings.TrimSpace(subject.String()), body.String(), nil
}

func (m *Mailer) send(name, to string, data map[string]interface{}) {
	deliver := func() {
		subject, body, err := m.Render(name, data)
		if err == nil {
			err = m.sender.Send(to, subject, body)
		}
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"template": name,
				"to":       to,
			}).Error("Failed to send email")
		}
	}

	if !m.async {
		deliver()
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		deliver()
	}()
}

func (m *Mailer) orderURL(order *models.Order) string {
	return fmt.Sprintf("%s/orders/%s", m.cfg.Frontend.BaseURL, order.ID)
}

func (m *Mailer) SendWelcome(user *models.User) {
	name := user.FullName()
	if name == "" {
		name = user.Email
	}
	m.send(EmailWelcome, user.Email, map[string]interface{}{"Name": name})
}

func (m *Mailer) SendOrderConfirmation(order *models.Order) {
	m.send(EmailOrderConfirmation, order.Email, map[string]interface{}{
		"Order":    order,
		"OrderURL": m.orderURL(order),
	})
}

func (m *Mailer) SendOrderShipped(order *models.Order, shipment *models.Shipment) {
	m.send(EmailOrderShipped, order.Email, map[string]interface{}{
		"Order":    order,
		"Shipment": shipment,
	})
}

func (m *Mailer) SendOrderCancelled(order *models.Order) {
	m.send(EmailOrderCancelled, order.Email, map[string]interface{}{"Order": order})
}

func (m *Mailer) SendRefundProcessed(order *models.Order, refund *models.Refund) {
	m.send(EmailRefundProcessed, order.Email, map[string]interface{}{
		"Order":  order,
		"Refund": refund,
	})
}

func (m *Mailer) SendReturnStatus(order *models.Order, ret *models.ReturnRequest) {
	m.send(EmailReturnStatus, order.Email, map[string]interface{}{
		"Order":  order,
		"Return": ret,
	})
}
