// Package notification renders templated emails, hands them to a Sender and
// keeps a record of every delivery attempt.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/myhomebp/myhomebp/internal/platform/auth"
	"github.com/myhomebp/myhomebp/internal/platform/response"
)

// Delivery statuses.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// TemplateBPReport is the email a clinic receives with a patient's report.
const TemplateBPReport = "bp-report"

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// Attachment is a file sent along with a message.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
	// Ref identifies where Content can be loaded from again, e.g. a report id.
	Ref string `json:"ref,omitempty"`
}

// Message is a single outbound email.
type Message struct {
	From        string       `json:"from"`
	To          string       `json:"to"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Notification records one delivery attempt.
type Notification struct {
	ID           string            `json:"id"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Attachments  []string          `json:"attachments,omitempty"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrNotDelivered is returned by LogSender. The message was logged, not
// handed to a mail server.
var ErrNotDelivered = errors.New("no mail server configured; message written to log only")

// LogSender writes messages to the log instead of a mail server. It is the
// development fallback when SMTP is not configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	names := make([]string, len(msg.Attachments))
	for i, a := range msg.Attachments {
		names[i] = a.Filename
	}
	s.logger.Info().
		Str("from", msg.From).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Strs("attachments", names).
		Msg("email not delivered, no mail server configured")
	return ErrNotDelivered
}

// MockSender is a test double for Sender.
type MockSender struct {
	mu         sync.Mutex
	calls      []Message
	ShouldFail bool
	FailError  string
}

// Send records the call and optionally returns an error.
func (m *MockSender) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msg)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of the recorded messages.
func (m *MockSender) Calls() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

// Template is a reusable subject and body with {{key}} placeholders.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine holds templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates an engine with the built-in templates registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.RegisterTemplate(Template{
		ID:      TemplateBPReport,
		Name:    "Blood Pressure Report",
		Subject: "Blood Pressure Report - {{patient_name}}",
		Body: "Dear {{clinic_name}},\n\n" +
			"Please find attached the home blood pressure report for {{patient_name}} " +
			"(date of birth {{date_of_birth}}) covering {{start_date}} to {{end_date}}.\n\n" +
			"Average: {{average}}\n" +
			"Readings: {{total_readings}} over {{days_with_readings}} days\n" +
			"Compliance: {{compliance_status}}\n\n" +
			"This report was generated by MyHomeBP.",
	})
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render replaces {{key}} placeholders with data. Keys missing from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Mailer
// ---------------------------------------------------------------------------

// DefaultLogSize is how many delivery attempts a Mailer keeps.
const DefaultLogSize = 1000

// AttachmentSource reloads attachment content by Attachment.Ref. The log
// keeps attachment metadata only, so retries fetch the bytes again.
type AttachmentSource interface {
	LoadAttachment(ctx context.Context, ref string) (Attachment, error)
	// AttachmentDelivered is called after a retry delivers an attachment.
	AttachmentDelivered(ctx context.Context, ref string) error
}

type logEntry struct {
	n   Notification
	msg Message
}

// Mailer sends messages from a fixed address and keeps the most recent
// attempts in memory.
type Mailer struct {
	sender    Sender
	templates *TemplateEngine
	from      string
	clock     func() time.Time
	source    AttachmentSource
	logSize   int

	mu      sync.RWMutex
	entries map[string]*logEntry
	order   []string
}

func NewMailer(sender Sender, tpl *TemplateEngine, from string) *Mailer {
	return &Mailer{
		sender:    sender,
		templates: tpl,
		from:      from,
		clock:     time.Now,
		logSize:   DefaultLogSize,
		entries:   make(map[string]*logEntry),
	}
}

// SetAttachmentSource lets Retry re-send attachments that carry a Ref.
func (m *Mailer) SetAttachmentSource(src AttachmentSource) { m.source = src }

// SetLogSize bounds the delivery log. The oldest attempts are evicted first.
func (m *Mailer) SetLogSize(n int) {
	if n > 0 {
		m.logSize = n
	}
}

// Send delivers msg and records the attempt. The notification is returned
// even when delivery fails.
func (m *Mailer) Send(ctx context.Context, msg Message) (*Notification, error) {
	return m.send(ctx, msg, "", nil)
}

// SendTemplate renders a template and sends it to recipient with the given
// attachments.
func (m *Mailer) SendTemplate(ctx context.Context, templateID string, data map[string]string, recipient string, attachments ...Attachment) (*Notification, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return m.send(ctx, Message{To: recipient, Subject: subject, Body: body, Attachments: attachments}, templateID, data)
}

func (m *Mailer) send(ctx context.Context, msg Message, templateID string, data map[string]string) (*Notification, error) {
	if msg.From == "" {
		msg.From = m.from
	}
	n := Notification{
		ID:           uuid.New().String(),
		Recipient:    msg.To,
		Subject:      msg.Subject,
		Body:         msg.Body,
		TemplateID:   templateID,
		TemplateData: copyData(data),
		Status:       StatusPending,
		CreatedAt:    m.clock().UTC(),
	}
	for _, a := range msg.Attachments {
		n.Attachments = append(n.Attachments, a.Filename)
	}

	err := m.deliver(ctx, msg)
	m.settle(&n, err)

	entry := &logEntry{n: n, msg: withoutContent(msg)}
	m.mu.Lock()
	m.entries[n.ID] = entry
	m.order = append(m.order, n.ID)
	m.evictLocked()
	out := entry.n.clone()
	m.mu.Unlock()
	return out, err
}

func (m *Mailer) deliver(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("recipient is required")
	}
	return m.sender.Send(ctx, msg)
}

func (m *Mailer) settle(n *Notification, err error) {
	if err != nil {
		n.Status = StatusFailed
		n.Error = err.Error()
		n.SentAt = nil
		return
	}
	sentAt := m.clock().UTC()
	n.Status = StatusSent
	n.SentAt = &sentAt
	n.Error = ""
}

func (m *Mailer) evictLocked() {
	for len(m.order) > m.logSize {
		delete(m.entries, m.order[0])
		m.order = m.order[1:]
	}
}

// Get returns a copy of a recorded notification.
func (m *Mailer) Get(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	return e.n.clone(), nil
}

// ListByRecipient returns up to limit notifications for recipient, newest
// first.
func (m *Mailer) ListByRecipient(_ context.Context, recipient string, limit int) []*Notification {
	m.mu.RLock()
	var out []*Notification
	for _, e := range m.entries {
		if strings.EqualFold(e.n.Recipient, recipient) {
			out = append(out, e.n.clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Retry re-sends a failed notification. The entry is marked pending while
// delivery runs so concurrent retries of the same id are refused.
func (m *Mailer) Retry(ctx context.Context, id string) (*Notification, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("notification %q not found", id)
	}
	if e.n.Status != StatusFailed {
		out := e.n.clone()
		m.mu.Unlock()
		return out, fmt.Errorf("notification %q is not in failed status (current: %s)", id, out.Status)
	}
	e.n.Status = StatusPending
	msg := e.msg
	msg.Attachments = append([]Attachment(nil), e.msg.Attachments...)
	m.mu.Unlock()

	err := m.reload(ctx, &msg)
	if err == nil {
		err = m.deliver(ctx, msg)
	}

	m.mu.Lock()
	m.settle(&e.n, err)
	out := e.n.clone()
	m.mu.Unlock()

	if err == nil && m.source != nil {
		for _, a := range msg.Attachments {
			if a.Ref == "" {
				continue
			}
			if derr := m.source.AttachmentDelivered(ctx, a.Ref); derr != nil {
				return out, fmt.Errorf("record delivery of %s: %w", a.Ref, derr)
			}
		}
	}
	return out, err
}

func (m *Mailer) reload(ctx context.Context, msg *Message) error {
	for i, a := range msg.Attachments {
		if a.Ref == "" || m.source == nil {
			return fmt.Errorf("attachment %q is no longer available", a.Filename)
		}
		loaded, err := m.source.LoadAttachment(ctx, a.Ref)
		if err != nil {
			return fmt.Errorf("load attachment %q: %w", a.Filename, err)
		}
		a.Content = loaded.Content
		msg.Attachments[i] = a
	}
	return nil
}

// Stats counts notifications by status.
func (m *Mailer) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, e := range m.entries {
		stats[e.n.Status]++
	}
	return stats
}

// RetainedBytes is the attachment content held by the log.
func (m *Mailer) RetainedBytes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int
	for _, e := range m.entries {
		for _, a := range e.msg.Attachments {
			total += len(a.Content)
		}
	}
	return total
}

func (n Notification) clone() *Notification {
	out := n
	out.TemplateData = copyData(n.TemplateData)
	out.Attachments = append([]string(nil), n.Attachments...)
	if n.SentAt != nil {
		t := *n.SentAt
		out.SentAt = &t
	}
	return &out
}

func copyData(data map[string]string) map[string]string {
	if data == nil {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func withoutContent(msg Message) Message {
	out := msg
	out.Attachments = make([]Attachment, len(msg.Attachments))
	for i, a := range msg.Attachments {
		a.Content = nil
		out.Attachments[i] = a
	}
	return out
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

// Handler exposes the delivery log to administrators.
type Handler struct {
	mailer *Mailer
}

func NewHandler(mailer *Mailer) *Handler {
	return &Handler{mailer: mailer}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/admin/notifications", auth.RequireRole(auth.RoleAdmin))
	g.GET("", h.List)
	g.GET("/stats", h.Stats)
	g.GET("/:id", h.Get)
	g.POST("/:id/retry", h.Retry)
}

// List handles GET /admin/notifications?recipient=...
func (h *Handler) List(c echo.Context) error {
	recipient := c.QueryParam("recipient")
	if recipient == "" {
		v := response.NewValidationError()
		v.Add("recipient", "The recipient field is required.")
		return v.Err()
	}
	return response.Success(c, http.StatusOK, "", h.mailer.ListByRecipient(c.Request().Context(), recipient, 100))
}

func (h *Handler) Get(c echo.Context) error {
	n, err := h.mailer.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
	}
	return response.Success(c, http.StatusOK, "", n)
}

func (h *Handler) Retry(c echo.Context) error {
	n, err := h.mailer.Retry(c.Request().Context(), c.Param("id"))
	if n == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
	}
	if err != nil {
		return response.Fail(c, http.StatusBadRequest, err.Error(), n)
	}
	return response.Success(c, http.StatusOK, "Notification sent", n)
}

func (h *Handler) Stats(c echo.Context) error {
	return response.Success(c, http.StatusOK, "", h.mailer.Stats(c.Request().Context()))
}
