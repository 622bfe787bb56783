package application

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
)

var (
	ErrPipelineAlreadyStarted = fmt.Errorf("signing pipeline already started")
	ErrAppLaunchSpecNotFound  = fmt.Errorf("no app launch spec found")
)

const addressVerifiedMsg = "address verified"

type pipelineDeps struct {
	source      ports.DeviceActionSource
	appConfig   ports.AppConfigProvider
	broadcaster ports.Broadcaster
	tracker     *tracker
}

// signingPipeline drives the device through a single signing flow:
// app launch spec resolution, app opening, address verification, signing
// and, for transactions, either broadcast or local assembly.
// A pipeline runs at most once.
type signingPipeline struct {
	flowID  string
	request domain.SigningRequest
	session domain.SessionContext
	adapter signAdapter
	deps    pipelineDeps
	hub     *StatusHub
	started atomic.Bool

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func newSigningPipeline(
	flowID string, req domain.SigningRequest, session domain.SessionContext,
	deps pipelineDeps, hub *StatusHub,
) (*signingPipeline, error) {
	adapter, err := newSignAdapter(req.Kind, deps.broadcaster)
	if err != nil {
		return nil, err
	}

	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("pipeline %s: %s", flowID, format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("pipeline %s: %s", flowID, format)
		log.WithError(err).Warnf(format, a...)
	}

	return &signingPipeline{
		flowID:  flowID,
		request: req,
		session: session,
		adapter: adapter,
		deps:    deps,
		hub:     hub,
		log:     logFn,
		warn:    warnFn,
	}, nil
}

// run executes the pipeline and publishes its terminal status, unless ctx is
// cancelled meanwhile, in which case nothing else is published.
func (p *signingPipeline) run(ctx context.Context) (err error) {
	if !p.started.CompareAndSwap(false, true) {
		return ErrPipelineAlreadyStarted
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("signing pipeline panicked: %v", r)
			p.warn(err, "recovered from panic\n%s", debug.Stack())
			p.finish(ctx, nil, err)
		}
	}()

	result, err := p.execute(ctx)
	p.finish(ctx, result, err)
	return nil
}

func (p *signingPipeline) finish(
	ctx context.Context, result *domain.SigningResult, err error,
) {
	if ctx.Err() != nil {
		p.log("cancelled")
		return
	}

	kind := p.request.Kind
	if err != nil {
		p.log("failed with %s: %s", domain.ErrorKind(err), err)
		p.hub.Publish(domain.ErrorStatus(p.flowID, kind, err))
		return
	}

	p.log("completed")
	p.deps.tracker.completed(p.trackingPayload(), *result)
	p.hub.Publish(domain.SuccessStatus(p.flowID, kind, *result))
}

func (p *signingPipeline) execute(
	ctx context.Context,
) (*domain.SigningResult, error) {
	account := p.session.SelectedAccount

	p.log("resolving app launch spec for %s", account.Blockchain)
	spec, err := p.deps.appConfig.GetAppLaunchSpec(ctx, account.Blockchain)
	if err == nil && spec == nil {
		err = ErrAppLaunchSpecNotFound
	}
	if err != nil {
		return nil, &domain.AppLaunchResolutionError{
			Blockchain: account.Blockchain, Cause: err,
		}
	}

	if p.request.Kind.IsTransaction() {
		p.deps.tracker.started(p.trackingPayload())
	}

	opts := domain.ActionOptions{DeviceSessionID: p.session.DeviceSessionID}

	p.log("opening app %s", spec.ApplicationName)
	openApp, err := p.deps.source.OpenAppWithDependencies(ctx, *spec, opts)
	if err != nil {
		return nil, &domain.AppOpenFailedError{Cause: err}
	}
	if _, _, err := consumeDeviceAction(ctx, openApp, p.publishPending); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &domain.AppOpenFailedError{Cause: err}
	}

	opts.SkipOpenApp = true

	p.log("verifying address at %s", p.request.DerivationPath)
	getAddress, err := p.deps.source.GetAddress(ctx, p.request.DerivationPath, opts)
	if err != nil {
		return nil, err
	}
	deviceAddress, _, err := consumeDeviceAction(ctx, getAddress, p.publishPending)
	if err != nil {
		return nil, err
	}
	if !VerifyAddress(deviceAddress.Address, account.Address) {
		return nil, &domain.IncorrectSeedError{
			Expected: account.Address, Actual: deviceAddress.Address,
		}
	}
	p.publish(ctx, domain.DebuggingStatus(p.flowID, p.request.Kind, addressVerifiedMsg))

	if !p.request.Kind.IsTransaction() {
		p.deps.tracker.started(p.trackingPayload())
	}

	p.log("signing %s", p.request.Kind)
	sign, err := p.adapter.sign(ctx, p.deps.source, p.request, opts)
	if err != nil {
		return nil, ClassifyError(err, "")
	}
	sig, pendingStep, err := consumeDeviceAction(ctx, sign, p.publishPending)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, ClassifyError(err, pendingStep)
	}

	return p.adapter.result(ctx, p.request, sig)
}

func (p *signingPipeline) publishPending(pending domain.PendingInteraction) {
	if pending.Interaction == domain.DeviceInteractionNone || pending.Interaction == "" {
		return
	}

	kind, ok := pending.Interaction.ToInteractionKind()
	if !ok {
		p.hub.Publish(domain.DebuggingStatus(
			p.flowID, p.request.Kind,
			fmt.Sprintf("device interaction %s", pending.Interaction),
		))
		return
	}
	p.hub.Publish(domain.InteractionStatus(p.flowID, p.request.Kind, kind))
}

func (p *signingPipeline) publish(ctx context.Context, status domain.SignFlowStatus) {
	if ctx.Err() != nil {
		return
	}
	p.hub.Publish(status)
}

func (p *signingPipeline) trackingPayload() domain.TrackingPayload {
	return domain.NewTrackingPayload(p.flowID, p.request, p.session)
}
