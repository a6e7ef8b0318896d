package api

import (
	"github.com/mattjoyce/widgetsync/internal/dispatch"
)

// commandSchemas maps each surface command to the JSON schema of its payload.
var commandSchemas = map[dispatch.CommandType]map[string]any{
	dispatch.CmdSendMessage: object(map[string]any{
		"data": str("Serialized kernel message"),
	}, "data"),
	dispatch.CmdSendBinaryMessage: object(map[string]any{
		"protocol": str("Binary frame protocol"),
		"data":     str("Base64 encoded binary frame"),
	}, "data"),
	dispatch.CmdRegisterCommTarget: object(map[string]any{
		"target_name": str("Comm target to register on the kernel"),
	}, "target_name"),
	dispatch.CmdRegisterMessageHook: object(map[string]any{
		"request_id":  str("Correlates the operation_handled reply"),
		"hook_msg_id": str("Parent msg_id whose iopub messages are hooked"),
	}, "request_id", "hook_msg_id"),
	dispatch.CmdRemoveMessageHook: object(map[string]any{
		"request_id":         str("Correlates the operation_handled reply"),
		"hook_msg_id":        str("Parent msg_id of the hook"),
		"last_hooked_msg_id": str("Defer removal until this message has been hooked"),
	}, "request_id", "hook_msg_id"),
	dispatch.CmdMessageHookResult: object(map[string]any{
		"request_id": str("Hook call being answered"),
		"parent_id":  str("Parent msg_id of the hooked message"),
		"msg_type":   str("Type of the hooked message"),
		"result":     map[string]any{"type": "boolean"},
	}, "request_id", "result"),
	dispatch.CmdMessageReceived: object(map[string]any{
		"id": str("Forwarded message id"),
	}, "id"),
	dispatch.CmdIOPubHandled: object(map[string]any{
		"id": str("Kernel msg_id of the handled Output widget update"),
	}, "id"),
	dispatch.CmdLog: object(map[string]any{
		"level":    str("debug, info, warning or error"),
		"message":  str("Log line"),
		"category": str("Surface component"),
	}, "message"),
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the surface API.
func buildOpenAPIDoc() map[string]any {
	variants := make([]any, 0, len(commandSchemas))
	for _, t := range []dispatch.CommandType{
		dispatch.CmdSendMessage,
		dispatch.CmdSendBinaryMessage,
		dispatch.CmdRegisterCommTarget,
		dispatch.CmdRegisterMessageHook,
		dispatch.CmdRemoveMessageHook,
		dispatch.CmdMessageHookResult,
		dispatch.CmdMessageReceived,
		dispatch.CmdIOPubHandled,
		dispatch.CmdLog,
	} {
		variants = append(variants, object(map[string]any{
			"type":    map[string]any{"const": string(t)},
			"payload": commandSchemas[t],
		}, "type", "payload"))
	}
	command := map[string]any{"oneOf": variants}

	secured := []any{map[string]any{"BearerAuth": []string{}}}
	stream := func(summary string) map[string]any {
		return map[string]any{
			"get": map[string]any{
				"summary":  summary,
				"security": secured,
				"parameters": []any{map[string]any{
					"name": "Last-Event-ID", "in": "header", "required": false,
					"schema": map[string]any{"type": "integer"},
				}},
				"responses": map[string]any{
					"200": map[string]any{
						"description": "Server-sent event stream",
						"content":     map[string]any{"text/event-stream": map[string]any{}},
					},
				},
			},
		}
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "widgetsync surface API",
			"version": "1.0",
		},
		"paths": map[string]any{
			"/healthz": map[string]any{
				"get": map[string]any{
					"summary":   "Dispatcher health and counters",
					"responses": map[string]any{"200": map[string]any{"description": "OK"}},
				},
			},
			"/surface/commands": map[string]any{
				"post": map[string]any{
					"summary":  "Dispatch one command or a batch",
					"security": secured,
					"requestBody": map[string]any{
						"required": true,
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{
									"oneOf": []any{command, map[string]any{"type": "array", "items": command}},
								},
							},
						},
					},
					"responses": map[string]any{
						"202": map[string]any{"description": "Commands dispatched"},
						"400": map[string]any{"description": "Bad command"},
						"401": map[string]any{"description": "Unauthorized"},
						"503": map[string]any{"description": "Dispatcher disposed"},
					},
				},
			},
			"/surface/state": map[string]any{
				"get": map[string]any{
					"summary":   "Dispatcher state",
					"security":  secured,
					"responses": map[string]any{"200": map[string]any{"description": "OK"}},
				},
			},
			"/surface/events":  stream("Messages posted to the render surface"),
			"/surface/display": stream("display_data messages from the kernel"),
			"/surface/display/history": map[string]any{
				"get": map[string]any{
					"summary":  "Journaled display_data messages",
					"security": secured,
					"parameters": []any{
						map[string]any{"name": "after", "in": "query", "schema": map[string]any{"type": "integer"}},
						map[string]any{"name": "limit", "in": "query", "schema": map[string]any{"type": "integer"}},
					},
					"responses": map[string]any{
						"200": map[string]any{"description": "OK"},
						"404": map[string]any{"description": "Journal disabled"},
					},
				},
			},
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func object(props map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func str(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
