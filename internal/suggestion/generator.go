// Package suggestion offers each user a daily batch of optional challenges sampled
// from a template pool, and handles accepting or declining them.
package suggestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"household-missions/internal/datekey"
	"household-missions/internal/events"
	"household-missions/internal/metrics"
	"household-missions/internal/model"
	"household-missions/internal/repository"
)

const (
	DefaultCooldownDays = 7
	DefaultPoolSize     = 3
)

// ErrNotFound is returned for unknown users or suggestions.
var ErrNotFound = errors.New("suggestion not found")

// ErrForbidden is returned when someone answers a suggestion offered to another user.
var ErrForbidden = errors.New("suggestion belongs to another user")

// Store is the persistence the generator needs.
type Store interface {
	FindUser(ctx context.Context, userID uint) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.Suggestion, error)
	Pending(ctx context.Context, userID uint) ([]model.Suggestion, error)
	OfferBatch(ctx context.Context, userID uint, day datekey.Key, batch []model.Suggestion) error
	Accept(ctx context.Context, id string, now time.Time, task *model.Task) (bool, error)
	Decline(ctx context.Context, id string, now time.Time) (bool, error)
	ExpireBefore(ctx context.Context, day datekey.Key) (int64, error)
}

// Publisher receives suggestion events.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event)
}

// Options tunes a Generator. Zero values fall back to defaults.
type Options struct {
	CooldownDays int
	PoolSize     int
	Location     *time.Location
	Now          func() time.Time
	Rand         *rand.Rand
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Generator produces and transitions suggestions.
type Generator struct {
	store    Store
	pool     Pool
	pub      Publisher
	cooldown int
	size     int
	loc      *time.Location
	now      func() time.Time
	log      *slog.Logger
	metrics  *metrics.Metrics

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGenerator(store Store, pool Pool, pub Publisher, opts Options) *Generator {
	g := &Generator{
		store:    store,
		pool:     pool,
		pub:      pub,
		cooldown: opts.CooldownDays,
		size:     opts.PoolSize,
		loc:      opts.Location,
		now:      opts.Now,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		rnd:      opts.Rand,
	}
	if g.cooldown <= 0 {
		g.cooldown = DefaultCooldownDays
	}
	if g.size <= 0 {
		g.size = DefaultPoolSize
	}
	if g.loc == nil {
		g.loc = time.Local
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	if g.rnd == nil {
		g.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return g
}

func (g *Generator) today() time.Time {
	return datekey.Midnight(g.now().In(g.loc))
}

// Generate returns the user's batch for today, creating it on the first call of the
// day. Later calls on the same day return the pending batch unchanged.
func (g *Generator) Generate(ctx context.Context, userID uint) ([]model.Suggestion, error) {
	user, err := g.store.FindUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	today := g.today()
	key := datekey.Of(today)
	if user.LastOfferDay == key {
		return g.store.Pending(ctx, userID)
	}

	picked := g.sample(g.Eligible(user, today))
	now := g.now()
	batch := make([]model.Suggestion, 0, len(picked))
	for _, tpl := range picked {
		batch = append(batch, model.Suggestion{
			ID:        uuid.NewString(),
			UserID:    userID,
			Key:       tpl.Key,
			Title:     tpl.Title,
			ExpValue:  tpl.ExpValue,
			Status:    model.SuggestionPending,
			DayOffer:  key,
			CreatedAt: now,
		})
	}
	if err := g.store.OfferBatch(ctx, userID, key, batch); err != nil {
		return nil, err
	}

	ids := make([]string, len(batch))
	for i, s := range batch {
		ids[i] = s.ID
	}
	g.metrics.Offered(len(batch))
	g.log.Info("suggestions offered", slog.Uint64("user_id", uint64(userID)), slog.String("day", string(key)), slog.Int("count", len(batch)))
	g.publish(ctx, events.NewSuggestionEvent(events.SuggestionsOffered, userID, events.SuggestionRef{IDs: ids, DayOffer: key}, now))
	return batch, nil
}

// Eligible filters the pool by the user's per-template cooldown. A template accepted
// exactly CooldownDays calendar days before today is eligible again.
func (g *Generator) Eligible(user *model.User, today time.Time) Pool {
	out := make(Pool, 0, len(g.pool))
	for _, tpl := range g.pool {
		last, ok := user.LastAcceptedAt[tpl.Key]
		if ok && datekey.DaysBetween(last, today.In(g.loc)) < g.cooldown {
			continue
		}
		out = append(out, tpl)
	}
	return out
}

// sample picks min(size, len(pool)) templates uniformly without replacement.
func (g *Generator) sample(pool Pool) Pool {
	n := min(g.size, len(pool))
	picked := append(Pool(nil), pool...)

	g.mu.Lock()
	defer g.mu.Unlock()
	for i := 0; i < n; i++ {
		j := i + g.rnd.IntN(len(picked)-i)
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked[:n]
}

// Pending lists the user's open suggestions.
func (g *Generator) Pending(ctx context.Context, userID uint) ([]model.Suggestion, error) {
	return g.store.Pending(ctx, userID)
}

// Accept transitions a suggestion to ACCEPTED. The first call creates a one-off task
// due today and resets the template's cooldown; repeats return applied=false. Only the
// user the suggestion was offered to may answer it.
func (g *Generator) Accept(ctx context.Context, id string, userID uint) (*model.Suggestion, bool, error) {
	s, err := g.owned(ctx, id, userID)
	if err != nil {
		return nil, false, err
	}

	now := g.now()
	due := g.today()
	task := &model.Task{
		CreatedByUserID: s.UserID,
		Title:           s.Title,
		DueDate:         &due,
		RecurType:       model.RecurNone,
		ExpValue:        s.ExpValue,
	}
	applied, err := g.store.Accept(ctx, id, now, task)
	if err != nil {
		return nil, false, err
	}
	if !applied {
		g.log.Debug("suggestion already transitioned", slog.String("suggestion_id", id), slog.String("status", string(s.Status)))
		s, err = g.find(ctx, id)
		return s, false, err
	}

	g.metrics.Transitioned(string(model.SuggestionAccepted))
	g.log.Info("suggestion accepted", slog.String("suggestion_id", id), slog.Uint64("task_id", uint64(task.ID)))
	g.publish(ctx, events.NewSuggestionEvent(events.SuggestionAccepted, s.UserID,
		events.SuggestionRef{IDs: []string{id}, Key: s.Key, TaskID: task.ID, DayOffer: s.DayOffer}, now))

	s, err = g.find(ctx, id)
	return s, true, err
}

// Decline transitions a suggestion to DECLINED. It creates no task and leaves the
// cooldown untouched.
func (g *Generator) Decline(ctx context.Context, id string, userID uint) (*model.Suggestion, bool, error) {
	s, err := g.owned(ctx, id, userID)
	if err != nil {
		return nil, false, err
	}

	now := g.now()
	applied, err := g.store.Decline(ctx, id, now)
	if err != nil {
		return nil, false, err
	}
	if applied {
		g.metrics.Transitioned(string(model.SuggestionDeclined))
		g.publish(ctx, events.NewSuggestionEvent(events.SuggestionDeclined, s.UserID,
			events.SuggestionRef{IDs: []string{id}, Key: s.Key, DayOffer: s.DayOffer}, now))
	}

	s, err = g.find(ctx, id)
	return s, applied, err
}

// ExpireStale marks suggestions left pending from earlier days as EXPIRED.
func (g *Generator) ExpireStale(ctx context.Context) (int64, error) {
	n, err := g.store.ExpireBefore(ctx, datekey.Of(g.today()))
	if err != nil {
		return 0, err
	}
	for i := int64(0); i < n; i++ {
		g.metrics.Transitioned(string(model.SuggestionExpired))
	}
	return n, nil
}

func (g *Generator) owned(ctx context.Context, id string, userID uint) (*model.Suggestion, error) {
	s, err := g.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		g.log.Warn("suggestion answered by another user", slog.String("suggestion_id", id), slog.Uint64("user_id", uint64(userID)))
		return nil, ErrForbidden
	}
	return s, nil
}

func (g *Generator) find(ctx context.Context, id string) (*model.Suggestion, error) {
	s, err := g.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load suggestion: %w", err)
	}
	return s, nil
}

func (g *Generator) publish(ctx context.Context, ev events.Event) {
	if g.pub != nil {
		g.pub.Publish(ctx, ev)
	}
}
