// Copyright 2026 The Classmesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package alert delivers received teacher alerts to the local user
// exactly once each. The pipeline owns the prompt-or-banner policy,
// the banner auto-dismiss timer, and the per-alert feedback side
// effects; the UI layer supplies the presentation callbacks.
package alert

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/classmesh-foundation/classmesh/lib/clock"
	"github.com/classmesh-foundation/classmesh/wire"
)

// bannerDuration is how long a banner stays visible before the
// pipeline auto-dismisses it.
const bannerDuration = 4 * time.Second

// State is the pipeline's visible delivery state.
type State int

const (
	// Idle means nothing is on screen.
	Idle State = iota

	// PromptPending means an urgent alert raised the capture prompt
	// and the pipeline is waiting for Accept or Decline.
	PromptPending

	// BannerShown means a banner is visible and its auto-dismiss
	// timer is running.
	BannerShown
)

// Presenter shows and hides alert UI. Calls arrive from pipeline
// methods and from the auto-dismiss timer goroutine, never
// concurrently with each other.
type Presenter interface {
	// ShowPrompt raises the yes/no capture prompt for an urgent
	// alert. The UI answers by calling Pipeline.Accept or
	// Pipeline.Decline.
	ShowPrompt(alert wire.Alert)

	// ShowBanner displays the alert banner, replacing any banner
	// already visible.
	ShowBanner(alert wire.Alert)

	// HideBanner removes the banner.
	HideBanner()
}

// Feedback plays the haptic/sound cue for an alert. Keyed purely by
// kind, no I/O dependency; failures are swallowed.
type Feedback interface {
	Play(kind wire.AlertKind) error
}

// CaptureStarter begins live capture when the user accepts the
// prompt. Fire-and-forget; the pipeline never consumes its output.
type CaptureStarter interface {
	Start()
}

// Notifier posts a background notification for an alert. Optional and
// best-effort.
type Notifier interface {
	Notify(alert wire.Alert) error
}

// Options configures a Pipeline. Presenter is required; the rest may
// be nil.
type Options struct {
	Presenter Presenter
	Feedback  Feedback
	Capture   CaptureStarter
	Notifier  Notifier
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Pipeline turns inbound alerts into at-most-one local delivery each.
// All methods are safe to call from any goroutine; state transitions
// are serialized internally.
type Pipeline struct {
	presenter Presenter
	feedback  Feedback
	capture   CaptureStarter
	notifier  Notifier
	clock     clock.Clock
	logger    *slog.Logger

	commands chan func()
	done     chan struct{}

	// Loop-owned state. Only the run goroutine touches these.
	state   State
	current wire.Alert
	handled map[uuid.UUID]struct{}

	// dismissGen invalidates stale auto-dismiss timers: each new
	// banner bumps it, and a firing timer only dismisses if its
	// generation is still current.
	dismissGen   uint64
	dismissTimer *clock.Timer
}

// New creates and starts a pipeline.
func New(options Options) *Pipeline {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	p := &Pipeline{
		presenter: options.Presenter,
		feedback:  options.Feedback,
		capture:   options.Capture,
		notifier:  options.Notifier,
		clock:     options.Clock,
		logger:    options.Logger,
		commands:  make(chan func(), 64),
		done:      make(chan struct{}),
		handled:   make(map[uuid.UUID]struct{}),
	}
	go p.run()
	return p
}

func (p *Pipeline) run() {
	for command := range p.commands {
		command()
	}
	close(p.done)
}

// submit marshals a state mutation onto the pipeline's loop. After
// Stop the send would block forever, so a stopped pipeline drops it.
func (p *Pipeline) submit(command func()) {
	select {
	case <-p.done:
	default:
		defer func() {
			// The commands channel closes on Stop; a concurrent
			// submit may race that close and panic. Late commands
			// after stop are ignored by contract.
			recover()
		}()
		p.commands <- command
	}
}

// Deliver hands one received alert to the pipeline. capturing reports
// whether live capture is already running, which suppresses the
// prompt for urgent alerts. An alert ID already handled is ignored;
// the same alert may legitimately arrive through several delivery
// paths.
func (p *Pipeline) Deliver(alert wire.Alert, capturing bool) {
	p.submit(func() { p.deliver(alert, capturing) })
}

func (p *Pipeline) deliver(alert wire.Alert, capturing bool) {
	if _, seen := p.handled[alert.ID]; seen {
		return
	}
	p.handled[alert.ID] = struct{}{}

	if p.feedback != nil {
		if err := p.feedback.Play(alert.Kind); err != nil {
			p.logger.Debug("feedback failed", "kind", alert.Kind, "error", err)
		}
	}
	if p.notifier != nil {
		if err := p.notifier.Notify(alert); err != nil {
			p.logger.Debug("notification failed", "alert", alert.ID, "error", err)
		}
	}

	if alert.Kind == wire.AlertImportantNow && !capturing {
		p.cancelDismiss()
		if p.state == BannerShown {
			p.presenter.HideBanner()
		}
		p.state = PromptPending
		p.current = alert
		p.presenter.ShowPrompt(alert)
		return
	}
	p.showBanner(alert)
}

// Accept resolves a pending prompt affirmatively: capture starts and
// the banner is shown. A stray Accept with no prompt pending is a
// no-op.
func (p *Pipeline) Accept() {
	p.submit(func() {
		if p.state != PromptPending {
			return
		}
		if p.capture != nil {
			p.capture.Start()
		}
		p.showBanner(p.current)
	})
}

// Decline resolves a pending prompt negatively: the banner is shown
// without starting capture.
func (p *Pipeline) Decline() {
	p.submit(func() {
		if p.state != PromptPending {
			return
		}
		p.showBanner(p.current)
	})
}

// Dismiss removes the banner early, before the auto-dismiss fires.
func (p *Pipeline) Dismiss() {
	p.submit(func() {
		if p.state != BannerShown {
			return
		}
		p.cancelDismiss()
		p.state = Idle
		p.presenter.HideBanner()
	})
}

// State returns the current delivery state.
func (p *Pipeline) State() State {
	result := make(chan State, 1)
	p.submit(func() { result <- p.state })
	select {
	case state := <-result:
		return state
	case <-p.done:
		return Idle
	}
}

// Stop shuts the pipeline down: pending timers are cancelled and
// every later call becomes a no-op. Idempotent.
func (p *Pipeline) Stop() {
	p.submit(func() {
		p.cancelDismiss()
		p.state = Idle
		close(p.commands)
	})
	<-p.done
}

// showBanner displays the alert and arms a fresh auto-dismiss timer,
// replacing any banner already visible. Runs on the loop.
func (p *Pipeline) showBanner(alert wire.Alert) {
	p.cancelDismiss()
	p.state = BannerShown
	p.current = alert
	p.presenter.ShowBanner(alert)

	p.dismissGen++
	generation := p.dismissGen
	p.dismissTimer = p.clock.AfterFunc(bannerDuration, func() {
		p.submit(func() { p.autoDismiss(generation) })
	})
}

// autoDismiss fires on timer expiry; a stale generation means the
// banner was replaced or dismissed and the timer lost the race.
func (p *Pipeline) autoDismiss(generation uint64) {
	if generation != p.dismissGen || p.state != BannerShown {
		return
	}
	p.state = Idle
	p.presenter.HideBanner()
}

func (p *Pipeline) cancelDismiss() {
	if p.dismissTimer != nil {
		p.dismissTimer.Stop()
		p.dismissTimer = nil
	}
}
