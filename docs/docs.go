// Package docs holds the OpenAPI description served at /swagger/doc.json.
// Regenerate with: swag init -g cmd/qia/main.go -d ./,./internal/transport/http
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/command": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Runs the text as a command for the authenticated user and returns the result envelope.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["commands"],
                "summary": "Run a typed command",
                "parameters": [
                    {
                        "description": "Command text",
                        "name": "command",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/message.CommandRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Result envelope (status may be error)", "schema": {"$ref": "#/definitions/message.Envelope"}},
                    "400": {"description": "Invalid request body", "schema": {"$ref": "#/definitions/message.ErrorResponse"}},
                    "401": {"description": "Invalid authentication credentials", "schema": {"$ref": "#/definitions/message.ErrorResponse"}}
                }
            }
        },
        "/api/v1/process-voice": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Accepts an audio upload, either as the multipart field \"audio_file\" or as the raw request body. The audio is transcribed, run as a command for the authenticated user, and the result message is synthesized back to speech when TTS is enabled.",
                "consumes": ["multipart/form-data", "audio/wav", "audio/ogg"],
                "produces": ["application/json"],
                "tags": ["commands"],
                "summary": "Process a voice command",
                "parameters": [
                    {"type": "file", "description": "Recorded audio", "name": "audio_file", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "Transcription, command envelope and optional audio", "schema": {"$ref": "#/definitions/message.VoiceResponse"}},
                    "400": {"description": "Failed to transcribe audio", "schema": {"$ref": "#/definitions/message.ErrorResponse"}},
                    "401": {"description": "Invalid authentication credentials", "schema": {"$ref": "#/definitions/message.ErrorResponse"}},
                    "500": {"description": "Internal processing error", "schema": {"$ref": "#/definitions/message.ErrorResponse"}}
                }
            }
        },
        "/api/v1/shortcuts": {
            "put": {
                "security": [{"BearerAuth": []}],
                "description": "A command that exactly matches the phrase runs as the expansion instead.",
                "consumes": ["application/json"],
                "tags": ["shortcuts"],
                "summary": "Set a custom shortcut",
                "parameters": [
                    {
                        "description": "Shortcut",
                        "name": "shortcut",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/http.ShortcutRequest"}
                    }
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Invalid request body", "schema": {"$ref": "#/definitions/message.ErrorResponse"}},
                    "401": {"description": "Invalid authentication credentials", "schema": {"$ref": "#/definitions/message.ErrorResponse"}}
                }
            }
        },
        "/api/v1/shortcuts/{phrase}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["shortcuts"],
                "summary": "Remove a custom shortcut",
                "parameters": [
                    {"type": "string", "description": "Shortcut phrase", "name": "phrase", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "401": {"description": "Invalid authentication credentials", "schema": {"$ref": "#/definitions/message.ErrorResponse"}}
                }
            }
        },
        "/ws/{user_id}": {
            "get": {
                "description": "Upgrades to a WebSocket. Each inbound text frame is a JSON object {\"text\": \"...\"}; each command's result envelope is sent to every open session of the user. A frame that is not valid JSON is answered with {\"type\":\"error\",\"message\":\"Invalid JSON format\"}. The connection is closed with code 4001 when the token does not belong to user_id and with 4000 on an internal fault.",
                "tags": ["sessions"],
                "summary": "Open a command session",
                "parameters": [
                    {"type": "string", "description": "User identity", "name": "user_id", "in": "path", "required": true},
                    {"type": "string", "description": "Bearer token (alternatively the Authorization header)", "name": "token", "in": "query"}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"}
                }
            }
        }
    },
    "definitions": {
        "http.ShortcutRequest": {
            "type": "object",
            "properties": {
                "expansion": {"type": "string"},
                "phrase": {"type": "string"}
            }
        },
        "message.CommandRequest": {
            "type": "object",
            "properties": {
                "aux": {"type": "object", "additionalProperties": {"type": "string"}},
                "text": {"type": "string"}
            }
        },
        "message.Envelope": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "result": {"type": "object"},
                "status": {"type": "string"},
                "task_type": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        },
        "message.ErrorResponse": {
            "type": "object",
            "properties": {
                "detail": {"type": "string"}
            }
        },
        "message.VoiceResponse": {
            "type": "object",
            "properties": {
                "audio_content_type": {"type": "string"},
                "audio_response": {"type": "string"},
                "language": {"type": "string"},
                "response": {"$ref": "#/definitions/message.Envelope"},
                "status": {"type": "string"},
                "transcription": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "qia API",
	Description:      "Voice-driven command orchestrator.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
