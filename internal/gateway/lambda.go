package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog/log"

	"legal-rag/internal/telegram"
)

// Webhook statuses returned in the response body. Telegram always gets a
// 200 so it does not redeliver.
const (
	StatusOK               = "ok"
	StatusNoBody           = "no_body"
	StatusInvalidJSON      = "invalid_json"
	StatusAlreadyProcessed = "already_processed"
	StatusError            = "error"
)

// HandleAPIGateway is the webhook Lambda handler.
func (g *Gateway) HandleAPIGateway(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	log.Info().Msg("Webhook received")

	body := req.Body
	if body == "" {
		log.Warn().Msg("Event without body")
		return statusResponse(StatusNoBody), nil
	}
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			log.Error().Err(err).Msg("Failed to decode base64 body")
			return statusResponse(StatusOK), nil
		}
		body = string(decoded)
	}

	var update telegram.Update
	if err := json.Unmarshal([]byte(body), &update); err != nil {
		log.Error().Err(err).Msg("Failed to parse update")
		return statusResponse(StatusInvalidJSON), nil
	}

	out := g.HandleUpdate(ctx, update)
	switch {
	case out.Duplicate:
		return statusResponse(StatusAlreadyProcessed), nil
	case out.Err != nil && !out.Replied:
		return statusResponse(StatusError), nil
	default:
		return statusResponse(StatusOK), nil
	}
}

func statusResponse(status string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(map[string]string{"status": status})
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}
