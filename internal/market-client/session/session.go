// Package session é a camada de sincronização de um cliente: carrega o
// snapshot do Ledger Store, aplica comandos locais de forma otimista e
// mantém a projeção em dia com os eventos do Change Bus.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/chess-market-poc/internal/ledger-service/dto"
	"github.com/radieske/chess-market-poc/internal/market-client/projection"
	"github.com/radieske/chess-market-poc/internal/shared/bus"
	"github.com/radieske/chess-market-poc/internal/shared/pricing"
	"github.com/radieske/chess-market-poc/pkg/contracts/events"
	"github.com/radieske/chess-market-poc/pkg/contracts/models"
	"github.com/radieske/chess-market-poc/pkg/contracts/topics"
)

var (
	ErrBootstrap         = errors.New("session bootstrap failed")
	ErrWriteFailed       = errors.New("store write failed")
	ErrNotLive           = errors.New("session is not live")
	ErrInvalidCommand    = errors.New("invalid command")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// maxBacklog limita os eventos guardados enquanto o bootstrap não termina
const maxBacklog = 1024

type State int

const (
	Uninitialized State = iota
	Bootstrapping
	Live
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Bootstrapping:
		return "bootstrapping"
	case Live:
		return "live"
	case Failed:
		return "failed"
	default:
		return "closed"
	}
}

// Store é o Ledger Store visto pelo cliente
type Store interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	ListGames(ctx context.Context) ([]models.Game, error)
	ListBets(ctx context.Context) (map[string][]models.Bet, error)
	GetPlatformAccount(ctx context.Context) (models.PlatformAccount, error)
	SaveUser(ctx context.Context, u models.User, expectedVersion int64) (models.User, error)
	UpdateUserBalance(ctx context.Context, userID string, balance float64, expectedVersion int64) (models.User, error)
	SaveGame(ctx context.Context, g models.Game) (models.Game, error)
	SaveBet(ctx context.Context, gameID string, b models.Bet, marketProbability float64) (dto.PlaceBetResponse, error)
}

// Options ajusta a sessão; campos zerados usam os defaults
type Options struct {
	Topic           string
	StoreTimeout    time.Duration
	StartingBalance float64
	Fees            pricing.FeePolicy
	NewID           func(prefix string) string
	NewName         func() string
	Clock           func() time.Time

	// Callbacks de métricas, no estilo dos processors: quem chama decide o que contar
	OnApplied  func(event string, outcome projection.Outcome)
	OnDropped  func(reason string)
	OnRollback func(kind string)
}

func (o *Options) defaults() {
	if o.Topic == "" {
		o.Topic = topics.Tournament
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.StartingBalance <= 0 {
		o.StartingBalance = models.StartingBalance
	}
	if o.Fees == nil {
		o.Fees = pricing.FlatFee{Rate: pricing.DefaultFeeRate}
	}
	if o.NewID == nil {
		o.NewID = NewID
	}
	if o.NewName == nil {
		o.NewName = MyceliumName
	}
	if o.Clock == nil {
		o.Clock = func() time.Time { return time.Now().UTC() }
	}
	if o.OnApplied == nil {
		o.OnApplied = func(string, projection.Outcome) {}
	}
	if o.OnDropped == nil {
		o.OnDropped = func(string) {}
	}
	if o.OnRollback == nil {
		o.OnRollback = func(string) {}
	}
}

// Session serializa comandos locais e eventos remotos num único mutex.
// O mutex nunca fica preso enquanto se espera o store.
type Session struct {
	log   *zap.Logger
	store Store
	sub   bus.Subscriber
	opts  Options

	mu      sync.Mutex
	state   State
	proj    *projection.Projection
	userID  string
	backlog []events.Envelope
	cancel  context.CancelFunc
}

func New(log *zap.Logger, store Store, sub bus.Subscriber, opts Options) *Session {
	opts.defaults()
	return &Session{
		log:   log,
		store: store,
		sub:   sub,
		opts:  opts,
		proj:  projection.New().WithClock(opts.Clock),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// storeCtx limita uma chamada ao store; cancelar o ctx do chamador não
// interrompe uma escrita em voo
func (s *Session) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
}

// Bootstrap lê as quatro coleções em paralelo e carrega a projeção.
// Sem usuários, sintetiza um e persiste; senão adota o primeiro.
// Qualquer falha deixa a sessão em Failed, sem projeção parcial; pode ser repetido.
func (s *Session) Bootstrap(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Live:
		s.mu.Unlock()
		return nil
	case Bootstrapping:
		s.mu.Unlock()
		return fmt.Errorf("%w: already bootstrapping", ErrBootstrap)
	case Closed:
		s.mu.Unlock()
		return ErrNotLive
	}
	s.state = Bootstrapping
	s.mu.Unlock()

	var (
		users    []models.User
		games    []models.Game
		bets     map[string][]models.Bet
		platform models.PlatformAccount
	)
	g, gctx := errgroup.WithContext(ctx)
	read := func(name string, fn func(ctx context.Context) error) {
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(gctx, s.opts.StoreTimeout)
			defer cancel()
			if err := fn(rctx); err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			return nil
		})
	}
	read("users", func(ctx context.Context) (err error) { users, err = s.store.ListUsers(ctx); return })
	read("games", func(ctx context.Context) (err error) { games, err = s.store.ListGames(ctx); return })
	read("bets", func(ctx context.Context) (err error) { bets, err = s.store.ListBets(ctx); return })
	read("platform", func(ctx context.Context) (err error) { platform, err = s.store.GetPlatformAccount(ctx); return })
	if err := g.Wait(); err != nil {
		return s.failBootstrap(err)
	}

	var identity models.User
	if len(users) == 0 {
		synth := models.User{ID: s.opts.NewID("user"), Name: s.opts.NewName(), Balance: s.opts.StartingBalance}
		wctx, cancel := s.storeCtx(ctx)
		saved, err := s.store.SaveUser(wctx, synth, 0)
		cancel()
		if err != nil {
			return s.failBootstrap(fmt.Errorf("create user: %w", err))
		}
		users = []models.User{saved}
		identity = saved
		s.log.Info("user created", zap.String("userId", saved.ID), zap.String("name", saved.Name))
	} else {
		identity = users[0]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return ErrNotLive
	}
	s.proj.Load(users, games, bets, platform)
	s.userID = identity.ID
	s.state = Live

	backlog := s.backlog
	s.backlog = nil
	for _, env := range backlog {
		s.applyLocked(env)
	}
	s.log.Info("session live",
		zap.String("userId", identity.ID),
		zap.Int("users", len(users)),
		zap.Int("games", len(games)),
		zap.Int("replayed", len(backlog)),
	)
	return nil
}

func (s *Session) failBootstrap(err error) error {
	s.mu.Lock()
	if s.state != Closed {
		s.state = Failed
	}
	s.backlog = nil
	s.mu.Unlock()
	s.log.Error("bootstrap failed", zap.Error(err))
	return fmt.Errorf("%w: %w", ErrBootstrap, err)
}

// Run assina o tópico e aplica cada evento recebido até ctx terminar,
// Close ser chamado ou a assinatura fechar. Pode ser chamado antes do
// Bootstrap: os eventos ficam guardados e são reaplicados depois do snapshot.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return ErrNotLive
	}
	s.cancel = cancel
	s.mu.Unlock()

	sub, err := s.sub.Subscribe(ctx, s.opts.Topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.opts.Topic, err)
	}
	defer sub.Close()
	s.log.Info("subscribed", zap.String("topic", s.opts.Topic))

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-sub.Events():
			if !ok {
				return nil
			}
			s.handle(env)
		}
	}
}

func (s *Session) handle(env events.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Live:
		s.applyLocked(env)
	case Uninitialized, Bootstrapping:
		if len(s.backlog) >= maxBacklog {
			s.opts.OnDropped("backlog_full")
			s.log.Warn("event dropped: backlog full", zap.String("event", env.Event))
			return
		}
		s.backlog = append(s.backlog, env)
	default:
		s.opts.OnDropped("not_live")
	}
}

func (s *Session) applyLocked(env events.Envelope) {
	out, err := s.proj.ApplyEnvelope(env)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, events.ErrUnknownEvent) {
			reason = "unknown_event"
		}
		s.opts.OnDropped(reason)
		s.log.Warn("event dropped", zap.String("event", env.Event), zap.String("reason", reason), zap.Error(err))
		return
	}
	s.opts.OnApplied(env.Event, out)
	s.log.Debug("event applied", zap.String("event", env.Event), zap.Stringer("outcome", out))
}

// applyChange aplica o eco autoritativo de uma escrita (resposta do store)
func (s *Session) applyChange(c events.Change) {
	out := s.proj.Apply(c)
	s.opts.OnApplied(c.Name, out)
}

// Close encerra a sessão e a assinatura do Run
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Closed
	s.backlog = nil
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
