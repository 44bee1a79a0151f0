package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/maxnotes/storefront/internal/common"
	"github.com/maxnotes/storefront/internal/events"
)

// TypePurchaseConfirmation is the asynq task type carrying a purchase confirmation email.
const TypePurchaseConfirmation = "email:purchase_confirmation"

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EmailNotifier turns completed checkouts into purchase confirmation emails. With Tasks set the
// email is queued for the worker; otherwise it is sent inline through Mail.
type EmailNotifier struct {
	Tasks    TaskEnqueuer
	Mail     common.EmailSender
	Enabled  bool
	MaxRetry int
}

// Notify implements the events.Notifier interface.
func (n EmailNotifier) Notify(ctx context.Context, event events.Event) error {
	if !n.Enabled || event.Topic != events.TopicCheckoutCompleted {
		return nil
	}
	var payload events.CheckoutPayload
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("email notify: %w", err)
	}
	if strings.TrimSpace(payload.Email) == "" {
		return nil
	}

	if n.Tasks != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("email notify: encode task: %w", err)
		}
		retries := n.MaxRetry
		if retries <= 0 {
			retries = 8
		}
		_, err = n.Tasks.EnqueueContext(ctx, asynq.NewTask(TypePurchaseConfirmation, raw),
			asynq.TaskID("purchase:"+payload.Reference),
			asynq.MaxRetry(retries),
			asynq.Timeout(30*time.Second),
		)
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			return fmt.Errorf("email notify: enqueue: %w", err)
		}
		return nil
	}
	if n.Mail == nil {
		return nil
	}
	msg := RenderPurchaseConfirmation(payload)
	return n.Mail.Send(payload.Email, msg.Subject, msg.HTML)
}

// Message is a rendered email.
type Message struct {
	Subject string
	HTML    string
}

// DriveFolderURL links to a Google Drive folder.
func DriveFolderURL(id string) string {
	return "https://drive.google.com/drive/folders/" + id
}

// RenderPurchaseConfirmation builds the Drive delivery notice for a paid checkout.
func RenderPurchaseConfirmation(p events.CheckoutPayload) Message {
	var b strings.Builder
	b.WriteString("<p>Thanks for your purchase! Your payment of ")
	fmt.Fprintf(&b, "%s %.2f", html.EscapeString(strings.ToUpper(p.Currency)), p.Amount)
	b.WriteString(" has been received.</p>")
	if p.Message != "" {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(p.Message))
	}
	b.WriteString("<p>Google Drive access has been granted to this address for:</p><ul>")
	for _, prod := range p.Products {
		name := html.EscapeString(prod.Name)
		if prod.GoogleDriveID != "" {
			fmt.Fprintf(&b, `<li><a href="%s">%s</a></li>`, html.EscapeString(DriveFolderURL(prod.GoogleDriveID)), name)
			continue
		}
		fmt.Fprintf(&b, "<li>%s</li>", name)
	}
	b.WriteString("</ul>")
	fmt.Fprintf(&b, "<p>Order reference: %s</p>", html.EscapeString(p.Reference))
	return Message{
		Subject: fmt.Sprintf("Your MAXNotes order %s", p.Reference),
		HTML:    b.String(),
	}
}
