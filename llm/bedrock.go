package llm

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/lumen-mentor/lumen/errors"
	"github.com/lumen-mentor/lumen/session"
)

// BedrockClient streams Anthropic models through AWS Bedrock. Bedrock wraps
// the Anthropic streaming events in response-stream chunks, so each chunk
// payload decodes to one Anthropic event.
type BedrockClient struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockClient creates a new BedrockClient.
// It requires AWS credentials to be configured in the environment.
func NewBedrockClient(ctx context.Context, modelID string) (*BedrockClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}

	return &BedrockClient{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}, nil
}

// bedrockEvent mirrors the Anthropic streaming event JSON carried in each
// Bedrock chunk. Only the fields this client reads are declared.
type bedrockEvent struct {
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Stream sends the request and forwards each Anthropic event as a Delta.
func (b *BedrockClient) Stream(ctx context.Context, req Request, emit func(Delta) error) error {
	body, err := createBedrockRequest(req)
	if err != nil {
		return errors.Wrapf(err, "failed to create Bedrock request")
	}

	output, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to invoke Bedrock model")
	}
	stream := output.GetStream()
	defer stream.Close()

	for event := range stream.Events() {
		chunk, ok := event.(*types.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		var ev bedrockEvent
		if err := json.Unmarshal(chunk.Value.Bytes, &ev); err != nil {
			return errors.Wrapf(err, "failed to decode Bedrock stream event")
		}

		switch ev.Type {
		case "message_start":
			if err := emit(Delta{Usage: &Usage{PromptTokens: ev.Message.Usage.InputTokens}}); err != nil {
				return err
			}
		case "content_block_start":
			if ev.ContentBlock.Type == "tool_use" {
				fragment := Delta{Tool: &ToolDelta{
					Index: ev.Index,
					ID:    ev.ContentBlock.ID,
					Name:  ev.ContentBlock.Name,
				}}
				if err := emit(fragment); err != nil {
					return err
				}
			}
		case "content_block_delta":
			switch ev.Delta.Type {
			case "text_delta":
				if err := emit(Delta{Text: ev.Delta.Text}); err != nil {
					return err
				}
			case "input_json_delta":
				fragment := Delta{Tool: &ToolDelta{
					Index: ev.Index,
					Args:  ev.Delta.PartialJSON,
				}}
				if err := emit(fragment); err != nil {
					return err
				}
			}
		case "message_delta":
			if err := emit(Delta{Usage: &Usage{CompletionTokens: ev.Usage.OutputTokens}}); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return errors.Wrapf(err, "Bedrock stream failed")
	}
	return nil
}

// createBedrockRequest creates the request body for Anthropic models on Bedrock.
func createBedrockRequest(req Request) ([]byte, error) {
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages":          convertMessagesToBedrockFormat(req.Messages),
	}

	if req.System != "" {
		request["system"] = req.System
	}

	if len(req.Tools) > 0 {
		var toolDefs []map[string]interface{}
		for _, def := range req.Tools {
			toolDefs = append(toolDefs, map[string]interface{}{
				"name":         def.Name,
				"description":  def.Description,
				"input_schema": def.Parameters,
			})
		}
		request["tools"] = toolDefs
	}

	return json.Marshal(request)
}

// convertMessagesToBedrockFormat converts our internal message format to the
// Anthropic message schema Bedrock expects.
func convertMessagesToBedrockFormat(messages []session.Message) []map[string]interface{} {
	var out []map[string]interface{}

	for _, msg := range messages {
		switch msg.Role {
		case session.RoleUser:
			out = append(out, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": msg.Content},
				},
			})
		case session.RoleAssistant:
			var content []map[string]interface{}
			if msg.Content != "" {
				content = append(content, map[string]interface{}{
					"type": "text",
					"text": msg.Content,
				})
			}
			for _, tc := range msg.ToolCalls {
				input := tc.Args
				if input == "" {
					input = "{}"
				}
				content = append(content, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ToolCallID,
					"name":  tc.Name,
					"input": json.RawMessage(input),
				})
			}
			if len(content) == 0 {
				continue
			}
			out = append(out, map[string]interface{}{
				"role":    "assistant",
				"content": content,
			})
		case session.RoleTool:
			if len(msg.ToolCalls) == 0 {
				continue
			}
			result := map[string]interface{}{
				"type":        "tool_result",
				"tool_use_id": msg.ToolCalls[0].ToolCallID,
				"content":     msg.Content,
			}
			if msg.IsError {
				result["is_error"] = true
			}
			out = append(out, map[string]interface{}{
				"role":    "user",
				"content": []map[string]interface{}{result},
			})
		}
	}

	return out
}
