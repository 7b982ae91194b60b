package creator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"nftcreator/internal/config"
	"nftcreator/internal/inference"
	"nftcreator/internal/mint"
	"nftcreator/internal/storage"
)

// Minter mints a token for a metadata URL. *mint.Invoker satisfies it.
type Minter interface {
	Mint(ctx context.Context, tokenURI string) (mint.Receipt, error)
}

// Services are the three external capabilities a submission uses.
type Services struct {
	Generator inference.Generator
	Uploader  storage.Uploader
	Minter    Minter
}

// Observer is told about stage timings and finished submissions.
type Observer interface {
	StageDone(stage Phase, took time.Duration, err error)
	SubmissionDone(s State)
}

type nopObserver struct{}

func (nopObserver) StageDone(Phase, time.Duration, error) {}
func (nopObserver) SubmissionDone(State)                  {}

// SessionInfo describes the connected wallet for display.
type SessionInfo struct {
	Account string
	ChainID string
}

type Options struct {
	Timeouts config.TimeoutConfig
	Session  SessionInfo
	Logger   *zap.Logger
	Observer Observer
	// Preflight runs before generation; a wallet that cannot mint fails the
	// submission before any paid service is called.
	Preflight func(ctx context.Context) error
}

// Creator owns the state of the current submission and allows only one
// submission in flight.
type Creator struct {
	svc       Services
	timeouts  config.TimeoutConfig
	session   SessionInfo
	logger    *zap.Logger
	observer  Observer
	preflight func(ctx context.Context) error
	busy      *semaphore.Weighted

	mu    sync.RWMutex
	state State
	// held is true while a run owns the busy slot; guarded by mu.
	held  bool
}

func New(svc Services, opts Options) *Creator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Creator{
		svc:       svc,
		timeouts:  opts.Timeouts,
		session:   opts.Session,
		logger:    opts.Logger,
		observer:  opts.Observer,
		preflight: opts.Preflight,
		busy:      semaphore.NewWeighted(1),
	}
}

// State returns a snapshot of the current state.
func (c *Creator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// View projects the current state for display.
func (c *Creator) View() View {
	return c.ViewOf(c.State())
}

// ViewOf projects s with this creator's session details.
func (c *Creator) ViewOf(s State) View {
	return Project(s, c.session)
}

func (c *Creator) dispatch(a Action) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Reduce(c.state, a)
	return c.state
}

// finish applies a terminal action and frees the busy slot under one lock,
// so a reader that sees Busy=false can start the next submission.
func (c *Creator) finish(a Action) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Reduce(c.state, a)
	c.releaseLocked()
	return c.state
}

func (c *Creator) releaseLocked() {
	if c.held {
		c.held = false
		c.busy.Release(1)
	}
}

// Run is one accepted submission.
type Run struct {
	ID    string
	done  chan struct{}
	final State
	err   error
}

func (r *Run) Done() <-chan struct{} { return r.done }

// Result blocks until the run finishes and returns its terminal state.
func (r *Run) Result() (State, error) {
	<-r.done
	return r.final, r.err
}

// Start validates d, claims the busy slot and runs the pipeline in the
// background. The pipeline is bound to ctx.
func (c *Creator) Start(ctx context.Context, d Draft) (*Run, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if !c.busy.TryAcquire(1) {
		return nil, ErrBusy
	}

	run := &Run{ID: uuid.NewString(), done: make(chan struct{})}
	c.mu.Lock()
	c.held = true
	c.state = Reduce(c.state, SubmitStarted{ID: run.ID, Draft: d})
	c.mu.Unlock()
	c.logger.Info("submission started", zap.String("id", run.ID), zap.String("name", d.Name))

	go func() {
		defer close(run.done)
		defer func() {
			c.mu.Lock()
			c.releaseLocked()
			c.mu.Unlock()
		}()
		run.final, run.err = c.run(ctx, d)
	}()
	return run, nil
}

// Submit runs one submission to completion.
func (c *Creator) Submit(ctx context.Context, d Draft) (State, error) {
	run, err := c.Start(ctx, d)
	if err != nil {
		return c.State(), err
	}
	return run.Result()
}

func (c *Creator) run(ctx context.Context, d Draft) (final State, err error) {
	if c.timeouts.Submission > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeouts.Submission)
		defer cancel()
	}

	// every exit leaves a terminal, non-busy state
	defer func() {
		if r := recover(); r != nil {
			err = &Error{Kind: KindNetwork, Stage: c.State().Phase, Msg: "Submission failed", Err: fmt.Errorf("panic: %v", r)}
			c.logger.Error("submission panicked", zap.Any("panic", r))
		}
		if err != nil {
			final = c.fail(classify(c.State().Phase, err))
		} else {
			final = c.State()
		}
		c.observer.SubmissionDone(final)
	}()

	if c.preflight != nil {
		if err := c.preflight(ctx); err != nil {
			return State{}, classify(PhaseIdle, err)
		}
	}

	img, err := runStage(ctx, c, PhaseGenerating, GenerateStarted{}, c.timeouts.Generate,
		func(ctx context.Context) (inference.Image, error) {
			return c.svc.Generator.Generate(ctx, d.Description)
		})
	if err != nil {
		return State{}, err
	}
	c.dispatch(GenerateSucceeded{Image: GeneratedImage{
		Data:        img.Data,
		ContentType: img.ContentType,
		DataURI:     img.DataURI(),
	}})

	stored, err := runStage(ctx, c, PhaseUploading, UploadStarted{}, c.timeouts.Upload,
		func(ctx context.Context) (storage.Stored, error) {
			return c.svc.Uploader.Store(ctx, storage.Asset{
				Name:        d.Name,
				Description: d.Description,
				Image:       img.Data,
				ContentType: img.ContentType,
			})
		})
	if err != nil {
		return State{}, err
	}
	c.dispatch(UploadSucceeded{Metadata: StoredMetadata{CID: stored.CID, URL: stored.MetadataURL}})

	receipt, err := runStage(ctx, c, PhaseMinting, MintStarted{}, c.timeouts.Mint,
		func(ctx context.Context) (mint.Receipt, error) {
			return c.svc.Minter.Mint(ctx, stored.MetadataURL)
		})
	if err != nil {
		return State{}, err
	}

	rec := MintRecord{TxHash: receipt.TxHash.Hex(), Block: receipt.BlockNumber}
	if receipt.TokenID != nil {
		rec.TokenID = receipt.TokenID.String()
	}
	st := c.finish(MintSucceeded{Record: rec})
	c.logger.Info("submission minted",
		zap.String("id", st.SubmissionID),
		zap.String("tokenURI", stored.MetadataURL),
		zap.String("tx", rec.TxHash),
		zap.String("tokenId", rec.TokenID),
	)
	return st, nil
}

func (c *Creator) fail(e *Error) State {
	st := c.finish(StageFailed{Err: e})
	c.logger.Warn("submission failed",
		zap.String("id", st.SubmissionID),
		zap.String("stage", e.Stage.String()),
		zap.String("kind", e.Kind.String()),
		zap.Error(e.Err),
	)
	return st
}

// NotePending records a broadcast mint transaction on the current state.
func (c *Creator) NotePending(tx common.Hash) {
	c.dispatch(MintSent{TxHash: tx.Hex()})
}

// runStage enters phase, runs fn under its own timeout and reports timing.
func runStage[T any](ctx context.Context, c *Creator, phase Phase, start Action, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	c.dispatch(start)

	stageCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	began := time.Now()
	out, err := fn(stageCtx)
	c.observer.StageDone(phase, time.Since(began), err)
	if err != nil {
		var zero T
		return zero, classify(phase, err)
	}
	return out, nil
}
