package ask

import (
	"strings"
)

// DefaultPersonaName は人物名が空のときに使う表示名
const DefaultPersonaName = "the candidate"

// RefusalPhrases はコンテキストに答えがない場合にモデルが使う定型文
var RefusalPhrases = [3]string{
	"I don't have specific details on that in the documents I've been provided with.",
	"That topic isn't covered in the experience I have on file.",
	"I can't answer that question based on the information available to me.",
}

// BuildSystemPrompt は人物像・拒否文・コンテキスト・質問を含むシステムプロンプトを構築する
// contexts は検索順のチャンク本文で、改行で連結される
func BuildSystemPrompt(personaName string, contexts []string, question string) string {
	name := strings.TrimSpace(personaName)
	if name == "" {
		name = DefaultPersonaName
	}

	var sb strings.Builder

	sb.WriteString("You are an AI assistant that embodies the professional persona of ")
	sb.WriteString(name)
	sb.WriteString(".\n")
	sb.WriteString("Your purpose is to answer questions from a potential interviewer based *strictly* and *exclusively* on the context provided below.\n\n")

	sb.WriteString("Do not use any outside knowledge. Do not infer or invent information that is not explicitly stated in the context.\n")
	sb.WriteString("If the provided context does not contain the answer to the question, you MUST respond with one of the following phrases:\n")
	for _, phrase := range RefusalPhrases {
		sb.WriteString("- \"")
		sb.WriteString(phrase)
		sb.WriteString("\"\n")
	}
	sb.WriteString("\n")

	sb.WriteString("Answer from a first-person perspective, as if you are ")
	sb.WriteString(name)
	sb.WriteString(". Be professional, concise, and helpful.\n\n")

	sb.WriteString("---\n")
	sb.WriteString("CONTEXT:\n")
	sb.WriteString(strings.Join(contexts, "\n"))
	sb.WriteString("\n---\n\n")

	sb.WriteString("INTERVIEWER's QUESTION:\n")
	sb.WriteString(question)

	return sb.String()
}
