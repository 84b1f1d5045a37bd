package datadog

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/ibs-source/logship/internal/sink"
	"github.com/ibs-source/logship/internal/transport"
)

// Health interprets a healthcheck response of the logs intake. Only 200 is
// healthy; a rejected key reports the intake's own error message.
func Health(resp *transport.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return sink.Unauthorized(resp.StatusCode, authMessage(resp))
	default:
		return sink.UnexpectedStatus(resp)
	}
}

func authMessage(resp *transport.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return fmt.Sprintf("Token is not valid, %d returned.", resp.StatusCode)
}
