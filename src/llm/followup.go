package llm

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"select-explain-llm/src/logutil"
)

const (
	followUpMaxOriginal    = 500
	followUpMaxExplanation = 1000
	followUpMaxQuestions   = 5
)

const followUpSystemPrompt = "你是一个智能问题推荐助手。你的任务是根据用户选中的文本和已生成的解释，" +
	"推理出用户可能会进一步感兴趣的问题。\n\n" +
	"要求：\n" +
	"1. 生成 3-5 个相关的后续问题\n" +
	"2. 问题要具体、有针对性，不要太泛泛\n" +
	"3. 问题应该由浅入深，涵盖不同角度（如历史、应用、原理、对比等）\n" +
	"4. 每个问题控制在 15 字以内\n" +
	"5. 直接返回 JSON 数组格式，例如：[\"问题1\", \"问题2\", \"问题3\"]\n" +
	"6. 不要添加任何其他说明文字，只返回 JSON 数组"

// GenerateFollowUpQuestions asks the model for 3-5 short related questions.
// Follow-ups are an enhancement: every failure path (missing credential,
// transport error, unparseable response) returns an empty list and only
// logs — it never propagates to the caller.
func (c *OpenAIClient) GenerateFollowUpQuestions(ctx context.Context, originalText, explanation string) []string {
	if c.cfg.APIKey == "" {
		log.Printf("API key not configured, skipping follow-up questions")
		return nil
	}

	if r := []rune(originalText); len(r) > followUpMaxOriginal {
		originalText = string(r[:followUpMaxOriginal]) + "..."
	}
	if r := []rune(explanation); len(r) > followUpMaxExplanation {
		explanation = string(r[:followUpMaxExplanation]) + "..."
	}

	userPrompt := "用户选中的文本：" + originalText + "\n\n" +
		"已生成的解释：\n" + explanation + "\n\n" +
		"请生成 3-5 个用户可能感兴趣的后续问题："

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: followUpSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil {
		log.Printf("Follow-up question request failed: %v", err)
		return nil
	}
	if len(resp.Choices) == 0 {
		log.Printf("Follow-up question response had no choices")
		return nil
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	questions := parseQuestionList(content)
	log.Printf("Generated %d follow-up questions", len(questions))
	return questions
}

// parseQuestionList parses the model's reply as a JSON array of strings,
// tolerating a Markdown code fence around it. Anything unparseable yields
// an empty list.
func parseQuestionList(content string) []string {
	content = stripCodeFence(content)

	var raw []any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		log.Printf("Failed to parse follow-up questions JSON: %v (content: %s)",
			err, logutil.TruncateForLog(content, 100))
		return nil
	}

	var questions []string
	for _, entry := range raw {
		s, ok := entry.(string)
		if !ok {
			continue
		}
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			questions = append(questions, trimmed)
		}
		if len(questions) == followUpMaxQuestions {
			break
		}
	}
	return questions
}

// stripCodeFence removes a leading ```json or ``` marker and a trailing ```
// so fenced model output still parses.
func stripCodeFence(content string) string {
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSpace(content)
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
