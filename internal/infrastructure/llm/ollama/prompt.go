package ollama

import "fmt"

var visionPrompts = [3]string{
	"Provide a detailed but concise caption for this image (1-2 sentences).",
	"What are the main elements or information shown in this image?",
	"List key data points, equations, or relationships visible in the image.",
}

func buildAnswerPrompt(question, context string) string {
	return fmt.Sprintf(`You are a helpful research assistant.

Answer ONLY using the provided context.
If answer not present, say you don't know.

CONTEXT:
%s

QUESTION:
%s

ANSWER:
`, context, question)
}
