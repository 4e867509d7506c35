package assistant

import "github.com/suPer8Hu/salesbot/internal/ai"

const (
	ToolConfirmPlan  = "confirm_plan"
	ToolProcessEmail = "process_email"
)

var tools = []ai.Tool{
	{
		Name:        ToolConfirmPlan,
		Description: "Registra el pedido cuando el cliente confirma que quiere comprar un plan. Usa el id interno del plan.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"plan_id": map[string]any{"type": "string", "description": "Id interno del plan elegido"},
			},
			"required": []string{"plan_id"},
		},
	},
	{
		Name:        ToolProcessEmail,
		Description: "Guarda el correo electrónico del cliente para el pedido pendiente.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"email": map[string]any{"type": "string", "description": "Correo electrónico del cliente"},
			},
			"required": []string{"email"},
		},
	},
}

type confirmPlanArgs struct {
	PlanID string `json:"plan_id"`
}

type processEmailArgs struct {
	Email string `json:"email"`
}
