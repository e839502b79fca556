package detection

import (
	"encoding/json"
	"fmt"
)

// Marshal encodes an event as a flat JSON object with a "type" discriminator
// alongside the variant's own fields. The result round-trips through
// Unmarshal and is the wire and storage format for detection events.
func Marshal(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Kind(), err)
	}

	var flat map[string]any
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("flatten %s event: %w", e.Kind(), err)
	}
	flat["type"] = string(e.Kind())

	return json.Marshal(flat)
}

// Unmarshal decodes a flat event envelope produced by Marshal back into its
// concrete variant.
func Unmarshal(data []byte) (Event, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	var e Event
	switch head.Type {
	case KindStuck:
		e = &Stuck{}
	case KindError:
		e = &Error{}
	case KindAuthRequired:
		e = &AuthRequired{}
	case KindTestFailure:
		e = &TestFailure{}
	case KindBuildFailure:
		e = &BuildFailure{}
	case KindRateLimited:
		e = &RateLimited{}
	case KindGitConflict:
		e = &GitConflict{}
	case KindCrash:
		e = &Crash{}
	case KindHeartbeatTimeout:
		e = &HeartbeatTimeout{}
	case KindContextExhaustion:
		e = &ContextExhaustion{}
	default:
		return nil, fmt.Errorf("unknown detection event type %q", head.Type)
	}

	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", head.Type, err)
	}
	return deref(e), nil
}

// deref returns the value type so callers can type-switch on non-pointer
// variants consistently.
func deref(e Event) Event {
	switch v := e.(type) {
	case *Stuck:
		return *v
	case *Error:
		return *v
	case *AuthRequired:
		return *v
	case *TestFailure:
		return *v
	case *BuildFailure:
		return *v
	case *RateLimited:
		return *v
	case *GitConflict:
		return *v
	case *Crash:
		return *v
	case *HeartbeatTimeout:
		return *v
	case *ContextExhaustion:
		return *v
	}
	return e
}
