package query

import (
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// systemPrompt confines the model to the retrieved context.
const systemPrompt = `You are a helpful assistant. Only answer the question using the context provided.
If the answer is not in the context, say that you don't know. Do not make up an answer.`

// NoContextNotice replaces the context block when retrieval returned nothing.
const NoContextNotice = "(No relevant information was found in the knowledge base. Tell the user you don't know.)"

// BuildMessages assembles the prompt for one question: system instruction,
// prior turns, then the user message carrying the question and its context.
// The output depends only on the inputs.
func BuildMessages(question, context string, history []*schema.Message) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(history)+2)
	msgs = append(msgs, schema.SystemMessage(systemPrompt))
	msgs = append(msgs, history...)
	msgs = append(msgs, schema.UserMessage(UserPrompt(question, context)))
	return msgs
}

// UserPrompt renders the user message template.
func UserPrompt(question, context string) string {
	if context == "" {
		context = NoContextNotice
	}
	return fmt.Sprintf("User question: %s\nRelevant context:\n%s\nAnswer the user's question using the context above.", question, context)
}

// summaryMessages asks for a short summary of text.
func summaryMessages(text string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(fmt.Sprintf("Summarize the following text in 3-5 sentences:\n\n%s", text)),
	}
}

// followUpMessages applies one instruction to base. label names what base is
// ("summary" or "context") in the prompt.
func followUpMessages(label, base, instruction string) []*schema.Message {
	if base == "" {
		base = NoContextNotice
	}
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(fmt.Sprintf("Given the following %s:\n\n%s\n\nInstruction: %s\n\nAnswer:", label, base, instruction)),
	}
}
