package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/hwsign/internal/core/domain"
)

type failingAppConfig struct{}

func (failingAppConfig) GetAppLaunchSpec(
	context.Context, string,
) (*domain.AppLaunchSpec, error) {
	return nil, nil
}

func TestPipelineRunsOnce(t *testing.T) {
	req := domain.NewPersonalMessageRequest(
		"m/44'/60'/0'/0/0", "account", []byte("hello"),
	)
	session := domain.SessionContext{
		DeviceSessionID: "session",
		ConnectedDevice: &domain.DeviceInfo{},
		SelectedAccount: &domain.Account{Address: "0x01", Blockchain: "ethereum"},
	}
	hub := NewStatusHub(nil)

	p, err := newSigningPipeline("flow", req, session, pipelineDeps{
		appConfig: failingAppConfig{},
	}, hub)
	require.NoError(t, err)

	require.NoError(t, p.run(context.Background()))
	status, ok := hub.Last()
	require.True(t, ok)
	require.Equal(t, domain.ErrorKindAppLaunchResolution, domain.ErrorKind(status.Err))

	require.ErrorIs(t, p.run(context.Background()), ErrPipelineAlreadyStarted)
}

func TestPipelineRecoversFromPanic(t *testing.T) {
	req := domain.NewPersonalMessageRequest(
		"m/44'/60'/0'/0/0", "account", []byte("hello"),
	)
	hub := NewStatusHub(nil)

	// A session with no account makes the pipeline panic: preconditions are
	// checked by the service, not by the pipeline.
	p, err := newSigningPipeline("flow", req, domain.SessionContext{}, pipelineDeps{
		appConfig: failingAppConfig{},
	}, hub)
	require.NoError(t, err)

	require.Error(t, p.run(context.Background()))
	status, ok := hub.Last()
	require.True(t, ok)
	require.Equal(t, domain.SignFlowError, status.State)
	require.Contains(t, status.Err.Error(), "panicked")
}

func TestConsumeDeviceAction(t *testing.T) {
	ch := make(chan domain.DeviceActionState[domain.Signature], 3)
	ch <- domain.PendingState[domain.Signature](
		domain.DeviceInteractionSignTransaction, domain.StepBlindSignTransactionFallback,
	)
	ch <- domain.ErrorState[domain.Signature](nil)
	close(ch)

	pendings := 0
	_, step, err := consumeDeviceAction(
		context.Background(), ch,
		func(domain.PendingInteraction) { pendings++ },
	)
	require.ErrorIs(t, err, ErrDeviceActionFailed)
	require.Equal(t, domain.StepBlindSignTransactionFallback, step)
	require.Equal(t, 1, pendings)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = consumeDeviceAction(ctx, make(chan domain.DeviceActionState[domain.Signature]), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCancelDropsStatusesOfUnwindingPipeline(t *testing.T) {
	flow := newSignFlow("flow", domain.SigningKindPersonalMessage)

	// The pipeline observes the cancellation only after the flow context is
	// done, anything it publishes meanwhile must be dropped.
	var published []bool
	flow.cancel = func() {
		published = append(published,
			flow.hub.Publish(domain.InteractionStatus(
				"flow", domain.SigningKindPersonalMessage, domain.InteractionPerformSigning,
			)),
			flow.hub.Publish(domain.ErrorStatus(
				"flow", domain.SigningKindPersonalMessage, ErrSignFlowCancelled,
			)),
		)
	}

	flow.Cancel()
	require.Equal(t, []bool{false, false}, published)
	_, ok := flow.Last()
	require.False(t, ok)

	statuses := make([]domain.SignFlowStatus, 0)
	for status := range flow.Subscribe(context.Background()) {
		statuses = append(statuses, status)
	}
	require.Empty(t, statuses)
}
