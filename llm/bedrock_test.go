package llm

import (
	"encoding/json"
	"testing"

	"github.com/lumen-mentor/lumen/session"
)

func TestConvertMessagesToBedrockFormat(t *testing.T) {
	// User message
	messages := []session.Message{
		{Role: session.RoleUser, Content: "Hello, world!"},
	}
	result := convertMessagesToBedrockFormat(messages)
	if len(result) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(result))
	}
	if result[0]["role"] != "user" {
		t.Errorf("Expected role 'user', got '%s'", result[0]["role"])
	}

	// Assistant message with a tool call
	messages = []session.Message{
		{
			Role: session.RoleAssistant,
			ToolCalls: []session.ToolCall{
				{ToolCallID: "call_1", Name: "record_insight", Args: `{"domain":"focus","insight":"less is more"}`},
			},
		},
	}
	result = convertMessagesToBedrockFormat(messages)
	if len(result) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(result))
	}
	if result[0]["role"] != "assistant" {
		t.Errorf("Expected role 'assistant', got '%s'", result[0]["role"])
	}

	// Tool result becomes a user-role tool_result block
	messages = []session.Message{
		{
			Role:      session.RoleTool,
			Content:   "Tool result",
			ToolCalls: []session.ToolCall{{ToolCallID: "call_1", Name: "record_insight"}},
		},
	}
	result = convertMessagesToBedrockFormat(messages)
	if len(result) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(result))
	}
	if result[0]["role"] != "user" {
		t.Errorf("Expected role 'user', got '%s'", result[0]["role"])
	}
	block := result[0]["content"].([]map[string]interface{})[0]
	if _, present := block["is_error"]; present {
		t.Errorf("Expected no is_error on a successful tool result, got %v", block["is_error"])
	}

	// A failed tool result carries the is_error flag
	messages[0].IsError = true
	result = convertMessagesToBedrockFormat(messages)
	block = result[0]["content"].([]map[string]interface{})[0]
	if block["is_error"] != true {
		t.Errorf("Expected is_error on a failed tool result, got %v", block["is_error"])
	}

	// An assistant message with neither text nor tool calls is dropped
	messages = []session.Message{{Role: session.RoleAssistant}}
	if result := convertMessagesToBedrockFormat(messages); len(result) != 0 {
		t.Errorf("Expected empty assistant message to be dropped, got %d", len(result))
	}
}

func TestCreateBedrockRequest(t *testing.T) {
	req := Request{
		System:   "You are Lumen.",
		Messages: []session.Message{{Role: session.RoleUser, Content: "Hello!"}},
	}

	body, err := createBedrockRequest(req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("Request body is not valid JSON: %v", err)
	}
	if decoded["system"] != "You are Lumen." {
		t.Errorf("Expected system instruction in body, got %v", decoded["system"])
	}
	if decoded["anthropic_version"] != "bedrock-2023-05-31" {
		t.Errorf("Unexpected anthropic_version %v", decoded["anthropic_version"])
	}

	// With tools
	req.Tools = []ToolDef{{
		Name:        "record_insight",
		Description: "Records an insight.",
		Parameters:  map[string]any{"type": "object"},
	}}
	body, err = createBedrockRequest(req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("Request body is not valid JSON: %v", err)
	}
	toolDefs, ok := decoded["tools"].([]interface{})
	if !ok || len(toolDefs) != 1 {
		t.Errorf("Expected 1 tool definition, got %v", decoded["tools"])
	}
}
