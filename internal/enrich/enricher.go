package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hdcopilot/ticket-enrich-back/internal/domain"
)

// Enricher produces the context note written back to the ticket. The LLM
// prompt-synthesis collaborator implements this interface; the pipeline
// treats it as opaque and bounded by its own timeout.
type Enricher interface {
	Enrich(ctx context.Context, envelope domain.JobEnvelope) (string, error)
}

// StaticEnricher renders a deterministic note from the envelope payload,
// used when no LLM collaborator is configured and in tests.
type StaticEnricher struct{}

func NewStaticEnricher() *StaticEnricher {
	return &StaticEnricher{}
}

func (e *StaticEnricher) Enrich(_ context.Context, envelope domain.JobEnvelope) (string, error) {
	var payload struct {
		Subject     string `json:"subject"`
		Description string `json:"description"`
	}
	_ = json.Unmarshal(envelope.Payload, &payload)

	builder := strings.Builder{}
	builder.WriteString("Automated context for ticket ")
	builder.WriteString(envelope.TicketID)
	builder.WriteString(".")
	if subject := strings.TrimSpace(payload.Subject); subject != "" {
		fmt.Fprintf(&builder, " Subject: %s.", subject)
	}
	if description := strings.TrimSpace(payload.Description); description != "" {
		fmt.Fprintf(&builder, " Summary: %s", description)
	}
	return builder.String(), nil
}
