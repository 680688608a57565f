package prompt

import (
	"coach-app/internal/repository/db"
	"coach-app/internal/service/llm"
	"fmt"
	"strings"
	"unicode/utf8"
)

// HistoryWindow is how many prior turns are replayed to the model
const HistoryWindow = 6

const chunkSeparator = "\n\n---\n\n"

// Persona is the fixed system instruction of the coach
const Persona = `Eres el coach de IA de la membresía. Acompañas a cada miembro a definir metas claras, ` +
	`construir hábitos sostenibles y mantener la motivación.

Pautas:
- Responde siempre en español, con un tono cercano, directo y empático.
- Da pasos concretos y accionables; evita respuestas genéricas.
- Si el contexto de la base de conocimiento es relevante, úsalo y cítalo por su fuente.
- Si no sabes algo o no está en el contexto, dilo con honestidad en lugar de inventarlo.
- No des consejos médicos, legales ni financieros; sugiere consultar a un profesional.`

const contextHeader = "Contexto relevante de la base de conocimiento de la membresía. " +
	"Úsalo para fundamentar tu respuesta:\n\n"

// Assembler builds the ordered message list sent to the completion endpoint
type Assembler struct {
	maxContextChars int
}

// NewAssembler creates an assembler. maxContextChars <= 0 means no context budget.
func NewAssembler(maxContextChars int) *Assembler {
	return &Assembler{maxContextChars: maxContextChars}
}

// Build returns persona, the last HistoryWindow history turns, an optional
// context message and finally the user message
func (a *Assembler) Build(userMessage string, chunks []db.KnowledgeChunk, history []llm.Message) []llm.Message {
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}

	messages := make([]llm.Message, 0, len(history)+3)
	messages = append(messages, llm.Message{Role: "system", Content: Persona})
	messages = append(messages, history...)

	if block := a.formatContext(chunks); block != "" {
		messages = append(messages, llm.Message{Role: "system", Content: contextHeader + block})
	}

	return append(messages, llm.Message{Role: db.RoleUser, Content: userMessage})
}

// formatContext renders chunks in order, dropping whole trailing chunks that exceed the budget
func (a *Assembler) formatContext(chunks []db.KnowledgeChunk) string {
	var b strings.Builder
	used := 0
	for i, chunk := range chunks {
		block := fmt.Sprintf("[Fuente: %s]\n%s", chunk.Source, chunk.Content)
		cost := utf8.RuneCountInString(block)
		if i > 0 {
			cost += utf8.RuneCountInString(chunkSeparator)
		}
		if a.maxContextChars > 0 && used+cost > a.maxContextChars {
			break
		}
		if i > 0 {
			b.WriteString(chunkSeparator)
		}
		b.WriteString(block)
		used += cost
	}
	return b.String()
}
