package llm

import (
	"context"
	"os"

	"github.com/lumen-mentor/lumen/errors"
	"github.com/lumen-mentor/lumen/session"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIClient streams chat completions from the OpenAI API. Chunk deltas
// carry index-keyed tool-call fragments, which map one-to-one onto ToolDelta.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAIClient. It requires the OPENAI_API_KEY
// environment variable to be set. OPENAI_BASE_URL overrides the endpoint.
func NewOpenAIClient(ctx context.Context, modelName string) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	c := openai.NewClient(options...)
	return &OpenAIClient{client: &c, model: modelName}, nil
}

// Stream sends the request and forwards each chunk as a Delta.
func (o *OpenAIClient) Stream(ctx context.Context, req Request, emit func(Delta) error) error {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: convertMessagesToOpenAIContent(req.System, req.Messages),
		Tools:    convertToolsToOpenAITools(req.Tools),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	for stream.Next() {
		chunk := stream.Current()

		if len(chunk.Choices) > 0 {
			delta := chunk.Choices[0].Delta
			if delta.Content != "" {
				if err := emit(Delta{Text: delta.Content}); err != nil {
					return err
				}
			}
			for _, tc := range delta.ToolCalls {
				fragment := Delta{Tool: &ToolDelta{
					Index: int(tc.Index),
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Args:  tc.Function.Arguments,
				}}
				if err := emit(fragment); err != nil {
					return err
				}
			}
		}

		// The final chunk carries the usage summary when IncludeUsage is set.
		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			usage := Delta{Usage: &Usage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
			}}
			if err := emit(usage); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return errors.Wrapf(err, "OpenAI stream failed")
	}
	return nil
}

// convertMessagesToOpenAIContent converts our internal message format to OpenAI's.
func convertMessagesToOpenAIContent(system string, messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	var chatMessages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		chatMessages = append(chatMessages, openai.SystemMessage(system))
	}
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleAssistant:
			assistantMessage := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: msg.Content,
			}
			if len(msg.ToolCalls) > 0 {
				var toolCalls []openai.ChatCompletionMessageToolCallUnion
				for _, tc := range msg.ToolCalls {
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnion{
						ID:   tc.ToolCallID,
						Type: "function",
						Function: openai.ChatCompletionMessageFunctionToolCallFunction{
							Name:      tc.Name,
							Arguments: tc.Args,
						},
					})
				}
				assistantMessage.ToolCalls = toolCalls
			}
			chatMessages = append(chatMessages, assistantMessage.ToParam())
		case session.RoleTool:
			if len(msg.ToolCalls) != 1 {
				// A tool message needs exactly one originating call id.
				continue
			}
			chatMessages = append(chatMessages, openai.ToolMessage(msg.Content, msg.ToolCalls[0].ToolCallID))
		case session.RoleUser:
			fallthrough
		default:
			chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
		}
	}
	return chatMessages
}

// convertToolsToOpenAITools converts tool definitions to the OpenAI format.
func convertToolsToOpenAITools(defs []ToolDef) []openai.ChatCompletionToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	var openAITools []openai.ChatCompletionToolUnionParam
	for _, def := range defs {
		toolParam := openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        def.Name,
			Description: openai.String(def.Description),
			Parameters:  openai.FunctionParameters(def.Parameters),
		})
		openAITools = append(openAITools, toolParam)
	}
	return openAITools
}
