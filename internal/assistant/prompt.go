package assistant

import (
	"fmt"
	"strings"

	"github.com/suPer8Hu/salesbot/internal/catalog"
	"github.com/suPer8Hu/salesbot/internal/order"
)

const defaultTraining = "Eres un asistente de ventas amable que responde en español, con mensajes breves aptos para WhatsApp."

// SystemPrompt assembles the instructions sent ahead of the conversation.
func SystemPrompt(training string, products []catalog.Product, current *order.Order) string {
	var b strings.Builder
	training = strings.TrimSpace(training)
	if training == "" {
		training = defaultTraining
	}
	b.WriteString(training)
	b.WriteString("\n\n## Catálogo\n")
	if len(products) == 0 {
		b.WriteString("No hay planes disponibles en este momento.\n")
	}
	for _, p := range products {
		fmt.Fprintf(&b, "- %s: %.2f", p.Name, p.Price)
		if d := strings.TrimSpace(p.Description); d != "" {
			fmt.Fprintf(&b, " (%s)", d)
		}
		b.WriteString("\n")
	}

	if len(products) > 0 {
		b.WriteString("\n## Mapa interno de planes (CONFIDENCIAL)\n")
		b.WriteString("Úsalo solo como argumento de confirm_plan. Nunca muestres estos ids al cliente.\n")
		for _, p := range products {
			fmt.Fprintf(&b, "%s => %s\n", p.Name, p.ID)
		}
	}

	b.WriteString("\n## Estado del pedido\n")
	b.WriteString(order.Summary(current))
	b.WriteString("\n\n## Reglas\n")
	b.WriteString("- Cuando el cliente confirme que quiere un plan, llama a confirm_plan con su id interno.\n")
	b.WriteString("- Cuando el cliente envíe su correo electrónico, llama a process_email.\n")
	b.WriteString("- No escribas código, nombres de funciones ni ids internos en tus respuestas.\n")
	return b.String()
}
