package events

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const commentNewSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["taskId", "comment"],
  "properties": {
    "taskId": { "type": "string", "minLength": 1 },
    "comment": {
      "type": "object",
      "required": ["_id"],
      "properties": {
        "_id": { "type": "string", "minLength": 1 },
        "text": { "type": "string" },
        "user": { "type": ["object", "null"] },
        "createdAt": { "type": "string" }
      }
    }
  }
}`

const attachmentsUpdatedSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["taskId", "attachments"],
  "properties": {
    "taskId": { "type": "string", "minLength": 1 },
    "attachments": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "fileName": { "type": "string" },
          "originalName": { "type": "string" },
          "url": { "type": "string" },
          "size": { "type": "number", "minimum": 0 }
        },
        "anyOf": [
          { "required": ["fileName"] },
          { "required": ["originalName"] }
        ]
      }
    }
  }
}`

const notificationSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["_id"],
  "properties": {
    "_id": { "type": "string", "minLength": 1 },
    "type": { "type": "string" },
    "message": { "type": "string" },
    "read": { "type": "boolean" },
    "createdAt": { "type": "string" }
  }
}`

var schemaLoaders = map[string]gojsonschema.JSONLoader{
	CommentNew:         gojsonschema.NewStringLoader(commentNewSchemaJSON),
	AttachmentsUpdated: gojsonschema.NewStringLoader(attachmentsUpdatedSchemaJSON),
	NewNotification:    gojsonschema.NewStringLoader(notificationSchemaJSON),
}

// Known reports whether event is one this client consumes.
func Known(event string) bool {
	_, ok := schemaLoaders[event]
	return ok
}

// Validate checks the envelope payload against the schema of its event.
func Validate(env Envelope) error {
	schema, ok := schemaLoaders[env.Event]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("%w: %s: empty payload", ErrMalformedPayload, env.Event)
	}
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(env.Data))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Event, err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return fmt.Errorf("%w: %s: %s", ErrMalformedPayload, env.Event, strings.Join(issues, "; "))
	}
	return nil
}
