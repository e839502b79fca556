package messagequeue

import (
	"encoding/json"
	"fmt"

	"github.com/shepd/shepherd/internal/domain/detection"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation
// (future-proof for new message types).
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectDetectionEvent:
		// Detection events carry a type discriminator; decoding enforces
		// both the envelope and the variant schema.
		if _, err := detection.Unmarshal(data); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		return nil
	case SubjectEscalationCreated:
		return unmarshalInto(subject, data, &EscalationCreatedPayload{})
	case SubjectEscalationUpdated:
		return unmarshalInto(subject, data, &EscalationUpdatedPayload{})
	case SubjectActionResult:
		return unmarshalInto(subject, data, &ActionResultPayload{})
	default:
		return nil
	}
}

func unmarshalInto(subject string, data []byte, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
