// Package gemini implementa el oráculo de forecasting sobre la API REST
// de Gemini (generateContent). El contrato es best-effort: cualquier fallo
// de red, cuota o parseo se degrada a "sin opinión" (nil, nil) y el core
// sigue con su política por defecto.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alf-alejandro/agente-clima/internal/domain"
	"github.com/alf-alejandro/agente-clima/internal/ports"
)

const (
	baseURL        = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultTimeout = 25 * time.Second
)

// Advisor llama al modelo de Gemini configurado. Implementa ports.Advisor.
type Advisor struct {
	apiKey string
	model  string
	http   *http.Client
	now    func() time.Time
}

var _ ports.Advisor = (*Advisor)(nil)

// New crea el advisor. Devuelve nil si no hay API key: el caller trata
// nil como "oráculo deshabilitado".
func New(apiKey, model string) *Advisor {
	if apiKey == "" {
		return nil
	}
	return &Advisor{
		apiKey: apiKey,
		model:  model,
		http:   &http.Client{Timeout: defaultTimeout},
		now:    time.Now,
	}
}

// EvaluatePosition pide al oráculo una evaluación de salida para una
// posición abierta.
func (a *Advisor) EvaluatePosition(ctx context.Context, pos domain.Position) (*ports.Advice, error) {
	prompt := a.positionPrompt(pos)
	return a.consult(ctx, prompt)
}

// EvaluateCandidate pide al oráculo una estimación de probabilidad y una
// recomendación de entrada para un candidato del scanner.
func (a *Advisor) EvaluateCandidate(ctx context.Context, opp domain.Opportunity) (*ports.Advice, error) {
	prompt := a.candidatePrompt(opp)
	return a.consult(ctx, prompt)
}

// positionPrompt arma el prompt con los hechos de la posición. El modelo
// debe responder SOLO el JSON del esquema pedido.
func (a *Advisor) positionPrompt(pos domain.Position) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Eres un analista de mercados de predicción meteorológicos en Polymarket.\n")
	fmt.Fprintf(&b, "Evalúa esta posición NO abierta (apuesta a que el rango de temperatura NO se cumple):\n\n")
	fmt.Fprintf(&b, "Mercado: %s\n", pos.Question)
	fmt.Fprintf(&b, "Ciudad: %s\n", pos.City)
	fmt.Fprintf(&b, "Precio NO de entrada: %.3f\n", pos.EntryNo)
	fmt.Fprintf(&b, "Precio NO actual: %.3f\n", pos.CurrentNo)
	fmt.Fprintf(&b, "P&L flotante: %+.2f USD sobre %.2f USD asignados\n", pos.UnrealizedPnL(), pos.Allocated)
	fmt.Fprintf(&b, "Cierre del mercado: %s\n", pos.EndDate.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Fecha actual: %s\n\n", a.now().UTC().Format(time.RFC3339))
	b.WriteString(schemaInstructions("EXIT | HOLD | REDUCE"))
	return b.String()
}

// candidatePrompt arma el prompt para un candidato de entrada.
func (a *Advisor) candidatePrompt(opp domain.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Eres un analista de mercados de predicción meteorológicos en Polymarket.\n")
	fmt.Fprintf(&b, "Evalúa este candidato para comprar NO (apostar a que el rango de temperatura NO se cumple):\n\n")
	fmt.Fprintf(&b, "Mercado: %s\n", opp.Question)
	fmt.Fprintf(&b, "Ciudad: %s\n", opp.City)
	fmt.Fprintf(&b, "Precio NO: %.3f (precio YES %.3f)\n", opp.NoPrice, opp.YesPrice)
	fmt.Fprintf(&b, "Volumen: %.0f USD\n", opp.Volume)
	fmt.Fprintf(&b, "Cierre del mercado: %s\n", opp.EndDate.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Fecha actual: %s\n\n", a.now().UTC().Format(time.RFC3339))
	b.WriteString(schemaInstructions("ENTER | SKIP"))
	return b.String()
}

func schemaInstructions(actions string) string {
	return fmt.Sprintf(`Usa tu conocimiento de climatología y forecasts típicos de la época.
Responde SOLO con un objeto JSON, sin texto extra:
{
  "true_prob_no": <probabilidad real estimada de que NO gane, 0.0-1.0>,
  "recommendation": "<%s>",
  "reasoning": "<una frase>",
  "data_quality": "<HIGH | MEDIUM | LOW>"
}`, actions)
}

// --- Llamada y parseo ---

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type adviceJSON struct {
	TrueProbNo     float64 `json:"true_prob_no"`
	Recommendation string  `json:"recommendation"`
	Reasoning      string  `json:"reasoning"`
	DataQuality    string  `json:"data_quality"`
}

// consult ejecuta la llamada y parsea la respuesta. Los fallos se loguean
// en debug y se devuelven como sin opinión.
func (a *Advisor) consult(ctx context.Context, prompt string) (*ports.Advice, error) {
	raw, err := a.generate(ctx, prompt)
	if err != nil {
		slog.Debug("gemini call failed", "err", err)
		return nil, nil
	}

	advice, ok := parseAdvice(raw)
	if !ok {
		slog.Debug("gemini response unparseable", "raw", truncate(raw, 200))
		return nil, nil
	}
	return advice, nil
}

func (a *Advisor) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("gemini.generate: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", baseURL, a.model, a.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini.generate: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini.generate: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("gemini.generate: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini.generate: status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var gr generateResponse
	if err := json.Unmarshal(data, &gr); err != nil {
		return "", fmt.Errorf("gemini.generate: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini.generate: respuesta vacía")
	}
	return gr.Candidates[0].Content.Parts[0].Text, nil
}

// parseAdvice extrae el objeto JSON de la respuesta del modelo, tolerando
// fences markdown y texto alrededor.
func parseAdvice(raw string) (*ports.Advice, bool) {
	jsonText, ok := extractJSON(raw)
	if !ok {
		return nil, false
	}

	var aj adviceJSON
	if err := json.Unmarshal([]byte(jsonText), &aj); err != nil {
		return nil, false
	}

	rec := ports.Recommendation(strings.ToUpper(strings.TrimSpace(aj.Recommendation)))
	switch rec {
	case ports.RecommendExit, ports.RecommendHold, ports.RecommendEnter,
		ports.RecommendReduce, ports.RecommendSkip:
	default:
		return nil, false
	}
	if aj.TrueProbNo < 0 || aj.TrueProbNo > 1 {
		aj.TrueProbNo = 0
	}

	return &ports.Advice{
		TrueProbNo:     aj.TrueProbNo,
		Recommendation: rec,
		Reasoning:      strings.TrimSpace(aj.Reasoning),
		DataQuality:    strings.ToUpper(strings.TrimSpace(aj.DataQuality)),
	}, true
}

// extractJSON busca primero un bloque ```json ... ``` y si no, el primer
// objeto balanceado {...} del texto.
func extractJSON(raw string) (string, bool) {
	if i := strings.Index(raw, "```json"); i >= 0 {
		rest := raw[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j]), true
		}
	}

	start := strings.Index(raw, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

// truncate corta en frontera de runa: las respuestas vienen en español y
// un corte a mitad de byte dejaría UTF-8 inválido en el log.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
