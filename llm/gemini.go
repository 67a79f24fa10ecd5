package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/lumen-mentor/lumen/errors"
	"github.com/lumen-mentor/lumen/session"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiClient streams responses from the Google Gemini API. Gemini delivers
// function calls whole rather than fragmented, and without ids, so this
// client synthesizes a call id and assigns indexes in arrival order.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a new GeminiClient.
// It requires the GEMINI_API_KEY environment variable to be set.
func NewGeminiClient(ctx context.Context, modelName string) (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	return &GeminiClient{client: client, model: modelName}, nil
}

// Stream sends the request and forwards each response part as a Delta.
func (g *GeminiClient) Stream(ctx context.Context, req Request, emit func(Delta) error) error {
	model := g.client.GenerativeModel(g.model)
	model.Tools = convertToolsToGeminiTools(req.Tools)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}

	history := convertMessagesToGeminiContent(req.Messages)
	if len(history) == 0 {
		return errors.New("gemini request requires at least one message")
	}

	chatSession := model.StartChat()
	chatSession.History = history[:len(history)-1]
	last := history[len(history)-1]

	iter := chatSession.SendMessageStream(ctx, last.Parts...)
	var usage *genai.UsageMetadata
	nextIndex := 0
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "Gemini stream failed")
		}
		if resp.UsageMetadata != nil {
			usage = resp.UsageMetadata
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				if err := emit(Delta{Text: string(v)}); err != nil {
					return err
				}
			case genai.FunctionCall:
				args, err := json.Marshal(v.Args)
				if err != nil {
					return errors.Wrapf(err, "failed to encode function call args for '%s'", v.Name)
				}
				fragment := Delta{Tool: &ToolDelta{
					Index: nextIndex,
					ID:    "call_" + uuid.NewString(),
					Name:  v.Name,
					Args:  string(args),
				}}
				nextIndex++
				if err := emit(fragment); err != nil {
					return err
				}
			}
		}
	}

	if usage != nil {
		summary := Delta{Usage: &Usage{
			PromptTokens:     int(usage.PromptTokenCount),
			CompletionTokens: int(usage.CandidatesTokenCount),
		}}
		if err := emit(summary); err != nil {
			return err
		}
	}
	return nil
}

// convertMessagesToGeminiContent converts our internal message format to Gemini's.
func convertMessagesToGeminiContent(messages []session.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleAssistant:
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				if err := json.Unmarshal([]byte(tc.Args), &args); err != nil {
					args = map[string]any{}
				}
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: args})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case session.RoleTool:
			if len(msg.ToolCalls) == 0 {
				continue
			}
			// Gemini has no error flag on function responses; the key
			// distinguishes failures.
			response := map[string]any{"result": msg.Content}
			if msg.IsError {
				response = map[string]any{"error": msg.Content}
			}
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []genai.Part{genai.FunctionResponse{
					Name:     msg.ToolCalls[0].Name,
					Response: response,
				}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		}
	}
	return contents
}

// convertToolsToGeminiTools converts tool definitions to Gemini's FunctionDeclaration format.
func convertToolsToGeminiTools(defs []ToolDef) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration
	for _, def := range defs {
		properties, required := splitSchema(def.Parameters)
		schema := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: map[string]*genai.Schema{},
			Required:   required,
		}
		for name, prop := range properties {
			schema.Properties[name] = geminiPropertySchema(prop)
		}
		funcDecls = append(funcDecls, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}

func geminiPropertySchema(prop any) *genai.Schema {
	m, ok := prop.(map[string]any)
	if !ok {
		return &genai.Schema{Type: genai.TypeString}
	}
	description, _ := m["description"].(string)
	switch m["type"] {
	case "integer":
		return &genai.Schema{Type: genai.TypeInteger, Description: description}
	case "number":
		return &genai.Schema{Type: genai.TypeNumber, Description: description}
	case "boolean":
		return &genai.Schema{Type: genai.TypeBoolean, Description: description}
	case "array":
		return &genai.Schema{
			Type:        genai.TypeArray,
			Description: description,
			Items:       &genai.Schema{Type: genai.TypeString},
		}
	default:
		return &genai.Schema{Type: genai.TypeString, Description: description}
	}
}
