package email

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"EstouBem/pkg/errors"
	"EstouBem/pkg/logger"
)

type SESOptions struct {
	Region          string
	AccessKeyID     string // 为空时走默认凭据链
	SecretAccessKey string
	Endpoint        string // 本地调试可以指向 localstack
	From            string
}

// sesAPI 便于测试替换
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESClient struct {
	api  sesAPI
	from string
}

func NewSESClient(ctx context.Context, opts SESOptions) (*SESClient, error) {
	if opts.From == "" {
		return nil, fmt.Errorf("ses requires a sender address")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	return &SESClient{api: client, from: opts.From}, nil
}

func (c *SESClient) Send(ctx context.Context, to, subject, body string) error {
	out, err := c.api.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		logger.Logger.Error("Failed to send email",
			zap.String("to", to),
			zap.Error(err),
		)
		return classifySESError(err)
	}

	logger.Logger.Debug("Email sent successfully",
		zap.String("to", to),
		zap.String("message_id", aws.ToString(out.MessageId)),
	)
	return nil
}

// classifySESError 拒收、发件域未验证、账号停用这类错误标记为不可重试
func classifySESError(err error) error {
	var (
		rejected     *types.MessageRejected
		notVerified  *types.MailFromDomainNotVerifiedException
		suspended    *types.AccountSuspendedException
		badRequest   *types.BadRequestException
		sendingPause *types.SendingPausedException
		notFound     *types.NotFoundException
	)

	switch {
	case stderrors.As(err, &rejected):
		return errors.NewNonRetryableError(rejected.ErrorCode(), rejected.ErrorMessage(), "recipient rejected")
	case stderrors.As(err, &notVerified):
		return errors.NewNonRetryableError(notVerified.ErrorCode(), notVerified.ErrorMessage(), "sender domain not verified")
	case stderrors.As(err, &suspended):
		return errors.NewNonRetryableError(suspended.ErrorCode(), suspended.ErrorMessage(), "account suspended")
	case stderrors.As(err, &badRequest):
		return errors.NewNonRetryableError(badRequest.ErrorCode(), badRequest.ErrorMessage(), "invalid request")
	case stderrors.As(err, &sendingPause):
		return errors.NewNonRetryableError(sendingPause.ErrorCode(), sendingPause.ErrorMessage(), "sending paused")
	case stderrors.As(err, &notFound):
		return errors.NewNonRetryableError(notFound.ErrorCode(), notFound.ErrorMessage(), "configuration set not found")
	}

	return fmt.Errorf("failed to send email: %w", err)
}
