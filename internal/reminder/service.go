// Package reminder answers the reminder commands typed into the chat:
// creating a reminder from free text, listing pending ones and clearing them.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/foschi-ia/recordar/internal/command"
	"github.com/foschi-ia/recordar/internal/storage"
	"github.com/foschi-ia/recordar/internal/timeparse"
)

// DefaultMessage is used when nothing is left of the text once the trigger
// and the time phrase are removed.
const DefaultMessage = "Recordatorio"

// DisplayLayout renders due instants in replies.
const DisplayLayout = "02/01/2006 15:04"

// ErrLimitReached is returned when an owner without unlimited reminders
// already has the maximum number pending.
var ErrLimitReached = storage.ErrLimitReached

// Store is the subset of the reminder store the service needs.
type Store interface {
	AddReminderLimited(ctx context.Context, owner, message string, dueAt time.Time, limit int) (storage.Reminder, error)
	ListPendingReminders(ctx context.Context, owner string) ([]storage.Reminder, error)
	ClearReminders(ctx context.Context, owner string) (int, error)
}

// Entitlements is the externally supplied yes/no answer to "may this owner
// keep any number of reminders".
type Entitlements interface {
	Unlimited(owner string) bool
}

// Reply is the assistant's answer to a reminder command.
type Reply struct {
	Text     string            `json:"texto"`
	Reminder *storage.Reminder `json:"recordatorio,omitempty"`
}

// Config holds service settings.
type Config struct {
	Location *time.Location
	// FreeLimit caps pending reminders per owner. Zero or less disables it.
	FreeLimit    int
	Entitlements Entitlements
	Now          func() time.Time
	Logger       *slog.Logger
}

type Service struct {
	store     Store
	loc       *time.Location
	freeLimit int
	ent       Entitlements
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(store Store, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:     store,
		loc:       cfg.Location,
		freeLimit: cfg.FreeLimit,
		ent:       cfg.Entitlements,
		now:       cfg.Now,
		logger:    cfg.Logger,
	}
}

// Handle answers text if it is a reminder command. The boolean is false when
// text is ordinary chat and should go to the reply collaborator instead.
// Parse failures and the free limit are answered in the reply, not as errors.
func (s *Service) Handle(ctx context.Context, owner, text string) (Reply, bool, error) {
	cmd := command.Classify(text)
	switch cmd.Kind {
	case command.KindClear:
		n, err := s.Clear(ctx, owner)
		if err != nil {
			return Reply{}, true, err
		}
		return Reply{Text: clearedText(n)}, true, nil

	case command.KindList:
		pending, err := s.List(ctx, owner)
		if err != nil {
			return Reply{}, true, err
		}
		return Reply{Text: s.RenderList(pending)}, true, nil

	case command.KindCreate:
		r, err := s.create(ctx, owner, cmd.Body)
		var perr *timeparse.ParseError
		switch {
		case errors.As(err, &perr):
			return Reply{Text: clarification}, true, nil
		case errors.Is(err, ErrLimitReached):
			return Reply{Text: fmt.Sprintf(limitText, s.freeLimit)}, true, nil
		case err != nil:
			return Reply{}, true, err
		}
		return Reply{
			Text:     fmt.Sprintf("✅ Listo, te voy a recordar \"%s\" el %s.", r.Message, s.display(r.DueAt)),
			Reminder: &r,
		}, true, nil
	}
	return Reply{}, false, nil
}

// Create stores a reminder from free text. A leading creation trigger
// ("recordame", "avisame", ...) is optional.
func (s *Service) Create(ctx context.Context, owner, text string) (storage.Reminder, error) {
	body := text
	if cmd := command.Classify(text); cmd.Kind == command.KindCreate {
		body = cmd.Body
	}
	return s.create(ctx, owner, body)
}

func (s *Service) create(ctx context.Context, owner, body string) (storage.Reminder, error) {
	now := s.now().In(s.loc)
	m, err := timeparse.Find(body, now)
	if err != nil {
		return storage.Reminder{}, err
	}
	message := Message(body[:m.Start] + " " + body[m.End:])

	limit := s.freeLimit
	if s.ent != nil && s.ent.Unlimited(owner) {
		limit = 0
	}

	r, err := s.store.AddReminderLimited(ctx, owner, message, m.At, limit)
	if err != nil {
		return storage.Reminder{}, err
	}
	s.logger.Info("reminder created", "reminder_id", r.ID, "owner", owner, "due_at", s.display(r.DueAt))
	return r, nil
}

// List returns owner's pending reminders in creation order.
func (s *Service) List(ctx context.Context, owner string) ([]storage.Reminder, error) {
	return s.store.ListPendingReminders(ctx, owner)
}

// Clear removes all of owner's pending reminders.
func (s *Service) Clear(ctx context.Context, owner string) (int, error) {
	n, err := s.store.ClearReminders(ctx, owner)
	if err != nil {
		return 0, err
	}
	s.logger.Info("reminders cleared", "owner", owner, "count", n)
	return n, nil
}

// RenderList renders pending reminders one "- {message} → {due_at}" line each.
func (s *Service) RenderList(pending []storage.Reminder) string {
	if len(pending) == 0 {
		return "No tenés recordatorios pendientes."
	}
	var b strings.Builder
	b.WriteString("📋 Tus recordatorios:")
	for _, r := range pending {
		fmt.Fprintf(&b, "\n- %s → %s", r.Message, s.display(r.DueAt))
	}
	return b.String()
}

func (s *Service) display(t time.Time) string {
	return t.In(s.loc).Format(DisplayLayout)
}

const (
	clarification = "No entendí cuándo querés que te lo recuerde. Probá con algo como " +
		"\"recordame comprar pan en 10 minutos\", \"avisame mañana a las 9\", " +
		"\"recordame a las 18:30 llamar a mamá\" o \"recordame el 5 de marzo a las 10 pagar la luz\"."
	limitText = "Llegaste al límite de %d recordatorios pendientes. Podés borrarlos con \"borrar recordatorios\"."
)

func clearedText(n int) string {
	switch n {
	case 0:
		return "No tenías recordatorios pendientes."
	case 1:
		return "🗑️ Borré tu recordatorio pendiente."
	default:
		return fmt.Sprintf("🗑️ Borré tus %d recordatorios pendientes.", n)
	}
}

// Leading words that only connect the trigger to the motive.
var connectors = map[string]bool{"que": true, "de": true, "a": true, "para": true}

// Message cleans what is left of a creation command into the reminder motive.
func Message(rest string) string {
	isTrim := func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) && r != '¿' && r != '?' && r != '¡' && r != '!' && r != '"'
	}
	words := strings.Fields(rest)
	for len(words) > 0 {
		w := strings.ToLower(strings.TrimFunc(words[0], isTrim))
		if w != "" && !connectors[w] {
			break
		}
		words = words[1:]
	}
	for len(words) > 0 {
		if strings.TrimFunc(words[len(words)-1], isTrim) != "" {
			break
		}
		words = words[:len(words)-1]
	}
	msg := strings.TrimFunc(strings.Join(words, " "), isTrim)
	if msg == "" {
		return DefaultMessage
	}
	return msg
}
