package email

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EstouBem/config"
	"EstouBem/pkg/errors"
)

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESClientBuildsSimpleMessage(t *testing.T) {
	api := &fakeSES{}
	c := &SESClient{api: api, from: "Estou Bem <avisos@estoubem.app>"}

	err := c.Send(context.Background(), "ana@example.com", "Aviso", "Olá")
	require.NoError(t, err)

	require.NotNil(t, api.input)
	assert.Equal(t, "Estou Bem <avisos@estoubem.app>", aws.ToString(api.input.FromEmailAddress))
	assert.Equal(t, []string{"ana@example.com"}, api.input.Destination.ToAddresses)
	assert.Equal(t, "Aviso", aws.ToString(api.input.Content.Simple.Subject.Data))
	assert.Equal(t, "Olá", aws.ToString(api.input.Content.Simple.Body.Text.Data))
	assert.Equal(t, "UTF-8", aws.ToString(api.input.Content.Simple.Body.Text.Charset))
}

func TestSESClientRejectedIsNonRetryable(t *testing.T) {
	api := &fakeSES{err: &types.MessageRejected{Message: aws.String("Email address is not verified.")}}
	c := &SESClient{api: api, from: "avisos@estoubem.app"}

	err := c.Send(context.Background(), "ana@example.com", "Aviso", "Olá")
	require.Error(t, err)
	assert.True(t, errors.IsNonRetryableError(err))
}

func TestSESClientThrottleIsRetryable(t *testing.T) {
	api := &fakeSES{err: &types.TooManyRequestsException{Message: aws.String("slow down")}}
	c := &SESClient{api: api, from: "avisos@estoubem.app"}

	err := c.Send(context.Background(), "ana@example.com", "Aviso", "Olá")
	require.Error(t, err)
	assert.False(t, errors.IsNonRetryableError(err))

	var throttled *types.TooManyRequestsException
	assert.True(t, stderrors.As(err, &throttled))
}

func TestMockClientFailTimes(t *testing.T) {
	m := NewMockClient()
	m.FailTimes = 1

	assert.Error(t, m.Send(context.Background(), "a@b.c", "s", "b"))
	assert.NoError(t, m.Send(context.Background(), "a@b.c", "s", "b"))
	assert.Equal(t, 2, m.CallCount())
}

func resetClient() {
	emailClient = nil
	emailErr = nil
	emailOnce = sync.Once{}
}

func TestInitFailureLeavesClientNil(t *testing.T) {
	prev := config.Cfg
	t.Cleanup(func() {
		config.Cfg = prev
		resetClient()
	})

	resetClient()
	config.Cfg.EmailProvider = "ses"
	config.Cfg.EmailFrom = ""

	require.Error(t, Init(context.Background()))
	assert.True(t, GetClient() == nil)
}
