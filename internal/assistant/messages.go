package assistant

import "fmt"

// Canned customer-facing texts.
const (
	MsgGreeting        = "¡Hola! 👋 Soy tu asistente de ventas. ¿En qué puedo ayudarte hoy?"
	MsgAck             = "¡Listo! ¿Hay algo más en lo que pueda ayudarte?"
	MsgUnknownPlan     = "No encontré ese plan en nuestro catálogo. ¿Podrías indicarme cuál te interesa?"
	MsgInvalidEmail    = "Ese correo no parece válido. ¿Podrías enviarlo de nuevo? Ejemplo: nombre@correo.com"
	MsgNoPendingOrder  = "Primero elige un plan para que pueda registrar tu correo."
	MsgApology         = "Lo siento, tuve un problema para responderte. Por favor intenta de nuevo en unos minutos."
	MsgAudioUnreadable = "[Audio recibido, pero no se pudo transcribir]"
)

func MsgAskEmail(product string) string {
	return fmt.Sprintf("¡Excelente elección! Registré tu pedido de *%s*. Para continuar, envíame tu correo electrónico.", product)
}

func MsgPaymentInstructions(product string, amount float64, hasQR bool) string {
	if hasQR {
		return fmt.Sprintf("¡Gracias! Tu pedido de *%s* por %.2f está listo para el pago. Te envío el código QR; cuando pagues, mándame la foto del comprobante.", product, amount)
	}
	return fmt.Sprintf("¡Gracias! Tu pedido de *%s* por %.2f está listo para el pago. Cuando pagues, mándame la foto del comprobante.", product, amount)
}

func MsgReceiptReceived(product string) string {
	return fmt.Sprintf("¡Recibimos tu comprobante! Tu pedido de *%s* quedó pendiente de entrega. Te avisaremos muy pronto.", product)
}
