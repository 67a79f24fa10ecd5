package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/lumen-mentor/lumen/errors"
	"github.com/lumen-mentor/lumen/session"
)

// AnthropicClient streams messages from the Anthropic API. Content block
// events are keyed by block index; tool_use blocks start with id and name,
// then grow their input through input_json_delta fragments.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates a new AnthropicClient.
// It requires the ANTHROPIC_API_KEY environment variable to be set.
func NewAnthropicClient(ctx context.Context, modelName string) (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicClient{
		client: &client,
		model:  modelName,
	}, nil
}

// Stream sends the request and forwards each stream event as a Delta.
func (a *AnthropicClient) Stream(ctx context.Context, req Request, emit func(Delta) error) error {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 4096,
		Messages:  convertMessagesToAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}
	anthropicTools := convertToolsToAnthropicTools(req.Tools)
	params.Tools = make([]anthropic.ToolUnionParam, len(anthropicTools))
	for i := range anthropicTools {
		params.Tools[i] = anthropic.ToolUnionParam{OfTool: &anthropicTools[i]}
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage := Delta{Usage: &Usage{PromptTokens: int(ev.Message.Usage.InputTokens)}}
			if err := emit(usage); err != nil {
				return err
			}
		case anthropic.ContentBlockStartEvent:
			if block, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				fragment := Delta{Tool: &ToolDelta{
					Index: int(ev.Index),
					ID:    block.ID,
					Name:  block.Name,
				}}
				if err := emit(fragment); err != nil {
					return err
				}
			}
		case anthropic.ContentBlockDeltaEvent:
			switch d := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if err := emit(Delta{Text: d.Text}); err != nil {
					return err
				}
			case anthropic.InputJSONDelta:
				fragment := Delta{Tool: &ToolDelta{
					Index: int(ev.Index),
					Args:  d.PartialJSON,
				}}
				if err := emit(fragment); err != nil {
					return err
				}
			}
		case anthropic.MessageDeltaEvent:
			usage := Delta{Usage: &Usage{CompletionTokens: int(ev.Usage.OutputTokens)}}
			if err := emit(usage); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return errors.Wrapf(err, "Anthropic stream failed")
	}
	return nil
}

// convertMessagesToAnthropicMessages converts our internal message format to Anthropic's format.
func convertMessagesToAnthropicMessages(messages []session.Message) []anthropic.MessageParam {
	var anthropicMessages []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleUser:
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case session.RoleAssistant:
			var contentItems []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				contentItems = append(contentItems, anthropic.ContentBlockParamUnion{
					OfText: &anthropic.TextBlockParam{
						Text: msg.Content,
					},
				})
			}
			for _, tc := range msg.ToolCalls {
				input := tc.Args
				if input == "" {
					input = "{}"
				}
				contentItems = append(contentItems, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						Type:  "tool_use",
						ID:    tc.ToolCallID,
						Name:  tc.Name,
						Input: json.RawMessage(input),
					}})
			}
			if len(contentItems) == 0 {
				continue
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: contentItems,
			})
		case session.RoleTool:
			if len(msg.ToolCalls) == 0 {
				continue
			}
			result := &anthropic.ToolResultBlockParam{
				ToolUseID: msg.ToolCalls[0].ToolCallID,
				Content: []anthropic.ToolResultBlockParamContentUnion{{
					OfText: &anthropic.TextBlockParam{
						Text: msg.Content,
					},
				}},
			}
			if msg.IsError {
				result.IsError = anthropic.Bool(true)
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{{OfToolResult: result}},
			})
		}
	}

	return anthropicMessages
}

// convertToolsToAnthropicTools converts tool definitions to Anthropic's tool format.
func convertToolsToAnthropicTools(defs []ToolDef) []anthropic.ToolParam {
	if len(defs) == 0 {
		return nil
	}

	var anthropicTools []anthropic.ToolParam
	for _, def := range defs {
		properties, required := splitSchema(def.Parameters)
		anthropicTools = append(anthropicTools, anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		})
	}
	return anthropicTools
}

// splitSchema pulls the properties map and required list out of a JSON-schema
// object, for providers that take them as separate fields.
func splitSchema(schema map[string]any) (map[string]any, []string) {
	properties := map[string]any{}
	if p, ok := schema["properties"].(map[string]any); ok {
		properties = p
	}
	var required []string
	switch r := schema["required"].(type) {
	case []string:
		required = r
	case []any:
		for _, v := range r {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	return properties, required
}
