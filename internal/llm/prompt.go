package llm

import "strings"

const systemPreamble = "You are a helpful AI assistant that analyzes images and provides detailed responses. "

// BuildPrompt creates the zero-shot prompt sent alongside the image
func BuildPrompt(userPrompt string) string {
	return systemPreamble + strings.TrimSpace(userPrompt)
}

// EstimateTokens approximates the token count of a message at four
// characters per token, image data URI included.
func EstimateTokens(msg Message) int {
	chars := 0
	for _, part := range msg.Content {
		chars += len(part.Text)
		if part.ImageURL != nil {
			chars += len(part.ImageURL.URL)
		}
	}
	return chars / 4
}
