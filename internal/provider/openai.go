package provider

import (
	"context"
	"strings"

	"github.com/mhminhas/thinklab/internal/pricing"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const defaultChatModel = openai.ChatModelGPT4oMini

// systemPrompts steer the chat model per action kind.
var systemPrompts = map[pricing.ActionKind]string{
	pricing.KindTextGeneration:    "You are a helpful writing assistant. Produce the requested text.",
	pricing.KindCodeGeneration:    "You are an expert programmer. Return only the requested code with brief commentary.",
	pricing.KindDataAnalysis:      "You are a data analyst. Analyze the provided data and summarize the findings.",
	pricing.KindTextSummarization: "Summarize the provided text concisely while keeping the key points.",
	pricing.KindSEOOptimization:   "You are an SEO specialist. Optimize the provided content for search engines.",
}

// OpenAI invokes actions against the OpenAI API.
type OpenAI struct {
	client openai.Client
	log    *zap.Logger
}

// NewOpenAI builds an OpenAI-backed provider.
func NewOpenAI(apiKey, baseURL string, log *zap.Logger) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		log:    log.Named("provider.openai"),
	}
}

func (p *OpenAI) Invoke(ctx context.Context, kind pricing.ActionKind, input datatypes.JSON) (datatypes.JSON, error) {
	req, err := ParseRequest(input)
	if err != nil {
		return nil, err
	}

	if kind == pricing.KindImageGeneration {
		return p.generateImage(ctx, req)
	}
	return p.complete(ctx, kind, req)
}

func (p *OpenAI) complete(ctx context.Context, kind pricing.ActionKind, req Request) (datatypes.JSON, error) {
	model := openai.ChatModel(req.Model)
	if model == "" {
		model = defaultChatModel
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if system, ok := systemPrompts[kind]; ok {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		p.log.Warn("chat completion failed", zap.String("kind", string(kind)), zap.Error(err))
		return nil, Failure(err)
	}
	if len(completion.Choices) == 0 {
		return nil, Failure(errEmptyCompletion)
	}

	return marshalOutput(map[string]any{
		"content": completion.Choices[0].Message.Content,
		"model":   completion.Model,
	})
}

func (p *OpenAI) generateImage(ctx context.Context, req Request) (datatypes.JSON, error) {
	model := openai.ImageModel(req.Model)
	if model == "" {
		model = openai.ImageModelDallE3
	}

	image, err := p.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  model,
		N:      openai.Int(1),
	})
	if err != nil {
		p.log.Warn("image generation failed", zap.Error(err))
		return nil, Failure(err)
	}
	if len(image.Data) == 0 {
		return nil, Failure(errEmptyCompletion)
	}

	return marshalOutput(map[string]any{
		"url":   image.Data[0].URL,
		"model": model,
	})
}
