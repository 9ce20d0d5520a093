package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["t", "room", "p"],
  "properties": {
    "t": {"enum": ["player_state", "bullet_spawn", "melee_hit", "enemy_batch", "kill"]},
    "room": {"type": "string", "minLength": 1, "maxLength": 32},
    "from": {"type": "string", "maxLength": 64},
    "p": {"type": "object"}
  }
}`

var envelopeValidator = jsonschema.MustCompileString("envelope.schema.json", envelopeSchema)

// ValidateFrame checks a JSON text frame against the envelope schema.
func ValidateFrame(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := envelopeValidator.Validate(v); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}
	return nil
}

// ValidateEnvelope runs the schema over an already decoded envelope.
func ValidateEnvelope(e Envelope) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return ValidateFrame(raw)
}
