package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	openapiutil "github.com/alibabacloud-go/openapi-util/service"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"
	credential "github.com/aliyun/credentials-go/credentials"
	"go.uber.org/zap"

	"EstouBem/pkg/errors"
	"EstouBem/pkg/logger"
	"EstouBem/utils"
)

// 阿里云返回这些错误码时重试没有意义
var nonRetryableCodes = map[string]struct{}{
	"isv.MOBILE_NUMBER_ILLEGAL":         {},
	"isv.MOBILE_COUNT_OVER_LIMIT":       {},
	"isv.SMS_SIGNATURE_ILLEGAL":         {},
	"isv.SMS_TEMPLATE_ILLEGAL":          {},
	"isv.INVALID_PARAMETERS":            {},
	"isv.TEMPLATE_MISSING_PARAMETERS":   {},
	"isv.TEMPLATE_PARAMS_ILLEGAL":       {},
	"isv.INVALID_JSON_PARAM":            {},
	"isv.BLACK_KEY_CONTROL_LIMIT":       {},
	"isv.AMOUNT_NOT_ENOUGH":             {},
	"isv.OUT_OF_SERVICE":                {},
	"isv.ACCOUNT_NOT_EXISTS":            {},
	"isv.ACCOUNT_ABNORMAL":              {},
	"isv.DENY_IP_RANGE":                 {},
	"isv.SMS_SIGN_ILLEGAL":              {},
	"SignatureDoesNotMatch":             {},
	"InvalidAccessKeyId.NotFound":       {},
	"isv.PRODUCT_UN_SUBSCRIPT":          {},
	"isv.PRODUCT_UNSUBSCRIBE":           {},
	"isv.EXTEND_CODE_ERROR":             {},
	"isv.DOMESTIC_NUMBER_NOT_SUPPORTED": {},
}

func isNonRetryableCode(code string) bool {
	_, ok := nonRetryableCodes[code]
	return ok
}

// SendResponse 阿里云 SendSms 响应
type SendResponse struct {
	MessageID string // BizId
	Code      string // "OK" 或 isv.* 错误码
	Message   string
	RequestID string
}

type AliyunClient struct {
	client       *openapi.Client
	signName     string
	templateCode string
}

// NewAliyunClient 创建阿里云 SMS 客户端
// AccessKey 从环境变量 ALIBABA_CLOUD_ACCESS_KEY_ID / ALIBABA_CLOUD_ACCESS_KEY_SECRET 读取
func NewAliyunClient(endpoint, signName, templateCode string) (*AliyunClient, error) {
	if signName == "" || templateCode == "" {
		return nil, fmt.Errorf("aliyun sms requires sign name and template code")
	}

	cred, err := credential.NewCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun credential: %w", err)
	}

	client, err := openapi.NewClient(&openapi.Config{
		Credential: cred,
		Endpoint:   tea.String(endpoint),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun client: %w", err)
	}

	return &AliyunClient{
		client:       client,
		signName:     signName,
		templateCode: templateCode,
	}, nil
}

func (c *AliyunClient) createApiInfo(action string) *openapi.Params {
	return &openapi.Params{
		Action:      tea.String(action),
		Version:     tea.String("2017-05-25"),
		Protocol:    tea.String("HTTPS"),
		Method:      tea.String("POST"),
		AuthType:    tea.String("AK"),
		Style:       tea.String("RPC"),
		Pathname:    tea.String("/"),
		ReqBodyType: tea.String("json"),
		BodyType:    tea.String("json"),
	}
}

// Send 发送单条告警短信，模板变量 content 承载完整文案
func (c *AliyunClient) Send(ctx context.Context, phone, message string) error {
	templateParam, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return fmt.Errorf("failed to marshal template param: %w", err)
	}

	queries := map[string]interface{}{
		"PhoneNumbers":  tea.String(phone),
		"SignName":      tea.String(c.signName),
		"TemplateCode":  tea.String(c.templateCode),
		"TemplateParam": tea.String(string(templateParam)),
	}

	// SDK 不接受 context，超时交给 runtime 选项
	runtime := &util.RuntimeOptions{}
	if deadline, ok := ctx.Deadline(); ok {
		timeoutMs := int(time.Until(deadline).Milliseconds())
		if timeoutMs <= 0 {
			return ctx.Err()
		}
		runtime.ReadTimeout = tea.Int(timeoutMs)
		runtime.ConnectTimeout = tea.Int(timeoutMs)
	}

	resp, err := c.client.CallApi(c.createApiInfo("SendSms"), &openapi.OpenApiRequest{
		Query: openapiutil.Query(queries),
	}, runtime)
	if err != nil {
		logger.Logger.Error("Failed to send SMS",
			zap.String("phone", utils.MaskPhone(phone)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to send SMS: %w", err)
	}

	result, err := parseSendResponse(resp)
	if err != nil {
		logger.Logger.Error("SMS send failed",
			zap.String("phone", utils.MaskPhone(phone)),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Debug("SMS sent successfully",
		zap.String("phone", utils.MaskPhone(phone)),
		zap.String("message_id", result.MessageID),
		zap.String("request_id", result.RequestID),
	)
	return nil
}

// parseSendResponse 解析 CallApi 返回的 map，区分可重试与不可重试的失败
func parseSendResponse(resp map[string]interface{}) (*SendResponse, error) {
	if raw, ok := resp["statusCode"]; ok && raw != nil {
		statusCode, err := parseStatusCode(raw)
		if err != nil {
			return nil, err
		}
		if statusCode != 200 {
			if statusCode >= 400 && statusCode < 500 && statusCode != 429 {
				return nil, errors.NewNonRetryableError(fmt.Sprintf("HTTP_%d", statusCode), "SMS API rejected request", "client error")
			}
			return nil, fmt.Errorf("SMS API error: statusCode=%d", statusCode)
		}
	}

	result := &SendResponse{}
	if resp["body"] == nil {
		return nil, fmt.Errorf("SMS API returned empty body")
	}

	bodyBytes, err := json.Marshal(resp["body"])
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response body: %w", err)
	}

	var body struct {
		BizId     string `json:"BizId"`
		Code      string `json:"Code"`
		Message   string `json:"Message"`
		RequestId string `json:"RequestId"`
	}
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	result.MessageID = body.BizId
	result.Code = body.Code
	result.Message = body.Message
	result.RequestID = body.RequestId

	if result.Code != "OK" {
		if isNonRetryableCode(result.Code) {
			return nil, errors.NewNonRetryableError(result.Code, result.Message, "SMS configuration or number rejected")
		}
		return nil, fmt.Errorf("SMS send failed: %s - %s", result.Code, result.Message)
	}

	return result, nil
}

func parseStatusCode(raw interface{}) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case *int:
		if v == nil {
			return 0, fmt.Errorf("nil status code")
		}
		return *v, nil
	case json.Number:
		n, err := v.Int64()
		return int(n), err
	default:
		return 0, fmt.Errorf("unexpected status code type %T", raw)
	}
}
