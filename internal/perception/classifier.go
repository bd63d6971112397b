package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"jarvis/internal/capture"
)

// Classifier converts raw transcripts into validated classification records
// via a single LLM completion, with one stricter retry on malformed output.
type Classifier struct {
	client LLMClient
	logger *zap.Logger

	// now is injected so tests can pin relative-date resolution.
	now func() time.Time
}

// NewClassifier creates a classifier on top of an LLM provider client.
func NewClassifier(client LLMClient, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// rawClassification mirrors the JSON schema the model is asked to emit.
type rawClassification struct {
	Proyecto  string  `json:"proyecto"`
	Prioridad string  `json:"prioridad"`
	Resumen   string  `json:"resumen"`
	Tipo      string  `json:"tipo"`
	DueDate   *string `json:"due_date"`
}

// Classify classifies a transcript. On a response that fails to parse or
// validate it retries exactly once with a stricter instruction; a second
// failure surfaces capture.ErrClassification and the message is not
// captured.
func (c *Classifier) Classify(ctx context.Context, text string) (capture.Classification, error) {
	systemPrompt := c.buildSystemPrompt(false)

	reply, err := c.client.CompleteWithSystem(ctx, systemPrompt, text)
	if err != nil {
		c.logger.Warn("classification call failed", zap.Error(err))
		return capture.Classification{}, fmt.Errorf("%w: %v", capture.ErrClassification, err)
	}

	cls, verr := c.validate(reply, text)
	if verr == nil {
		return cls, nil
	}
	c.logger.Warn("malformed classification, retrying with strict prompt", zap.Error(verr))

	reply, err = c.client.CompleteWithSystem(ctx, c.buildSystemPrompt(true), text)
	if err != nil {
		return capture.Classification{}, fmt.Errorf("%w: %v", capture.ErrClassification, err)
	}

	cls, verr = c.validate(reply, text)
	if verr != nil {
		c.logger.Error("classification invalid after strict retry", zap.Error(verr))
		return capture.Classification{}, fmt.Errorf("%w: %v", capture.ErrClassification, verr)
	}
	return cls, nil
}

// validate parses a model reply and normalizes it into a Classification.
// Enum values match case-insensitively; the summary is truncated to the
// 80-char cap and falls back to the input text when the model omits it.
// An out-of-set project, priority or kind is a validation error, never a
// silent default.
func (c *Classifier) validate(reply, input string) (capture.Classification, error) {
	var raw rawClassification
	if err := json.Unmarshal([]byte(stripFences(reply)), &raw); err != nil {
		return capture.Classification{}, fmt.Errorf("unparseable reply: %w", err)
	}

	project, ok := capture.MatchProject(raw.Proyecto)
	if !ok {
		return capture.Classification{}, fmt.Errorf("invalid project %q", raw.Proyecto)
	}

	priority, ok := capture.ParsePriority(raw.Prioridad)
	if !ok {
		return capture.Classification{}, fmt.Errorf("invalid priority %q", raw.Prioridad)
	}

	kind, ok := capture.ParseKind(raw.Tipo)
	if !ok {
		return capture.Classification{}, fmt.Errorf("invalid kind %q", raw.Tipo)
	}

	summary := strings.TrimSpace(raw.Resumen)
	if summary == "" {
		summary = strings.TrimSpace(input)
	}
	summary = capture.TruncateSummary(summary)

	dueDate := ""
	if raw.DueDate != nil {
		d := strings.TrimSpace(*raw.DueDate)
		if d != "" && strings.ToLower(d) != "null" {
			if _, err := time.Parse("2006-01-02", d); err != nil {
				return capture.Classification{}, fmt.Errorf("invalid due_date %q", d)
			}
			dueDate = d
		}
	}

	return capture.Classification{
		Project:  project,
		Priority: priority,
		Summary:  summary,
		Kind:     kind,
		DueDate:  dueDate,
	}, nil
}

// stripFences removes a markdown code fence wrapper if the model added one
// despite the JSON-only instruction.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func (c *Classifier) buildSystemPrompt(strict bool) string {
	today := c.now().Format("2006-01-02")
	projects := strings.Join(capture.ValidProjects, ", ")

	var b strings.Builder
	b.WriteString("Sos un asistente que clasifica mensajes para un sistema de gestión de tareas.\n")
	b.WriteString("El usuario es co-founder de una agencia de marketing digital (Nomadic) que también trabaja en:\n")
	b.WriteString("- Charlas y eventos como speaker\n")
	b.WriteString("- Marca personal (Substack, LinkedIn)\n")
	b.WriteString("- Automatización con AI\n")
	b.WriteString("- Adquisición de nuevos clientes\n")
	b.WriteString("- Docencia (voluntariado, capacitaciones)\n")
	b.WriteString("- Vida personal (salud, trámites, gym)\n\n")
	fmt.Fprintf(&b, "La fecha de hoy es %s (formato YYYY-MM-DD). Usá ESTA fecha como referencia para interpretar fechas relativas como \"hoy\", \"mañana\", \"el viernes\", \"esta semana\", \"la semana que viene\", etc.\n\n", today)
	b.WriteString("Clasificá el mensaje y devolvé SOLO un JSON válido (sin markdown, sin backticks) con estos campos:\n\n")
	fmt.Fprintf(&b, "- \"proyecto\": uno de [%s]\n", projects)
	b.WriteString("- \"prioridad\": \"alta\" (urgente, para hoy) | \"media\" (esta semana) | \"baja\" (puede esperar)\n")
	b.WriteString("- \"resumen\": título claro y accionable de máximo 80 caracteres\n")
	b.WriteString("- \"tipo\": \"tarea\" (algo que hacer) | \"idea\" (para explorar) | \"seguimiento\" (follow-up) | \"referencia\" (info útil) | \"nota\" (recordatorio)\n")
	b.WriteString("- \"due_date\": string con la fecha de vencimiento en formato YYYY-MM-DD, o null si no se menciona ninguna fecha o deadline\n\n")
	b.WriteString("Reglas:\n")
	b.WriteString("- Si mencionan un cliente o trabajo de agencia → proyecto = \"Nomadic\"\n")
	b.WriteString("- Si mencionan propuestas, prospectos, ventas → proyecto = \"Adquisición\"\n")
	b.WriteString("- Si mencionan charla, presentación, evento → proyecto = \"Speaker\"\n")
	b.WriteString("- Si mencionan Substack, LinkedIn, contenido propio → proyecto = \"Marca personal\"\n")
	b.WriteString("- Si mencionan bots, agentes, automatizar, Claude, Cursor → proyecto = \"Automatización\"\n")
	b.WriteString("- Si mencionan enseñar, Semillero, curso → proyecto = \"Docencia\"\n")
	b.WriteString("- Si mencionan investigar, research, analizar empresa, diagnóstico → proyecto = \"Personal\"\n")
	b.WriteString("- Si mencionan gym, médico, trámite, casa → proyecto = \"Personal\"\n")
	b.WriteString("- Si hay duda, usá \"Personal\"\n")
	b.WriteString("- El resumen debe ser accionable: empezar con verbo cuando sea posible\n")

	if strict {
		b.WriteString("\nIMPORTANTE: tu respuesta anterior no cumplió el esquema. ")
		b.WriteString("Respondé ÚNICAMENTE el objeto JSON, sin texto adicional, y usá ")
		b.WriteString("EXACTAMENTE los valores listados para \"proyecto\", \"prioridad\" y \"tipo\". ")
		b.WriteString("Ningún otro valor es aceptable.\n")
	}

	return b.String()
}
