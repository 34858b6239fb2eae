package llm

import (
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/domain/types"
)

const maxMessageLen = 512

// UpstreamError builds an ErrUpstream carrying the provider's status and
// message. status is 0 when no response was received.
func UpstreamError(provider types.ProviderKind, status int, message string) error {
	message = Truncate(message)
	desc := fmt.Sprintf("%s API error: %s", provider.DisplayName(), message)
	if status > 0 {
		desc = fmt.Sprintf("%s API error (status %d): %s", provider.DisplayName(), status, message)
	}
	return goerr.Wrap(model.ErrUpstream, desc,
		goerr.V(model.ProviderKey, provider),
		goerr.V(model.StatusKey, status),
		goerr.V(model.MessageKey, message),
	)
}

// SchemaError builds an ErrSchemaViolation for a response envelope that
// lacks the expected payload.
func SchemaError(provider types.ProviderKind, reason string, response string) error {
	return goerr.Wrap(model.ErrSchemaViolation, provider.DisplayName()+" response: "+reason,
		goerr.V(model.ProviderKey, provider),
		goerr.V(model.ResponseKey, Truncate(response)),
	)
}

// Truncate bounds s for inclusion in error values
func Truncate(s string) string {
	return model.Truncate(s, maxMessageLen)
}
