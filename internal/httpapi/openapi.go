package httpapi

import "net/http"

// handleOpenAPI serves the OpenAPI 3.0 document.
// GET /api/v1/openapi.json
func (a *API) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, openAPISpec())
}

func openAPISpec() map[string]any {
	objectSchema := func(props map[string]any, required ...string) map[string]any {
		s := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			s["required"] = required
		}
		return s
	}
	jsonResponse := func(description string, schema map[string]any) map[string]any {
		return map[string]any{
			"description": description,
			"content": map[string]any{
				"application/json": map[string]any{"schema": schema},
			},
		}
	}
	ref := func(name string) map[string]any {
		return map[string]any{"$ref": "#/components/schemas/" + name}
	}

	return map[string]any{
		"openapi": "3.0.0",
		"info": map[string]any{
			"title":       "Polya Decomposer API",
			"version":     "1.0.0",
			"description": "REST API for the objective decomposition service",
		},
		"servers": []map[string]any{
			{"url": "http://localhost:8081", "description": "Local development server"},
		},
		"security": []map[string]any{
			{"apiKey": []string{}},
			{"bearerAuth": []string{}},
		},
		"paths": map[string]any{
			"/api/v1/decompositions": map[string]any{
				"post": map[string]any{
					"summary": "Decompose an objective",
					"requestBody": map[string]any{
						"required": true,
						"content": map[string]any{
							"application/json": map[string]any{"schema": ref("InvocationInput")},
						},
					},
					"responses": map[string]any{
						"200": jsonResponse("Decomposition result", ref("SuccessEnvelope")),
						"400": jsonResponse("Validation failure", ref("ErrorEnvelope")),
						"500": jsonResponse("Processing failure", ref("ErrorEnvelope")),
					},
				},
				"get": map[string]any{
					"summary": "List recent decompositions",
					"parameters": []map[string]any{
						{"name": "limit", "in": "query", "schema": map[string]any{
							"type": "integer", "minimum": 1, "maximum": 100, "default": 20,
						}},
					},
					"responses": map[string]any{
						"200": jsonResponse("Recent decompositions", objectSchema(map[string]any{
							"decompositions": map[string]any{"type": "array"},
						})),
					},
				},
			},
			"/api/v1/decompositions/{id}": map[string]any{
				"get": map[string]any{
					"summary": "Fetch one decomposition by id",
					"parameters": []map[string]any{
						{"name": "id", "in": "path", "required": true,
							"schema": map[string]any{"type": "string"}},
					},
					"responses": map[string]any{
						"200": jsonResponse("Stored decomposition", map[string]any{"type": "object"}),
						"404": jsonResponse("Unknown id", map[string]any{"type": "object"}),
					},
				},
			},
			"/api/v1/agents": map[string]any{
				"get": map[string]any{
					"summary": "List registered agents",
					"responses": map[string]any{
						"200": jsonResponse("Agent descriptions", map[string]any{"type": "object"}),
					},
				},
			},
			"/api/v1/agents/{slug}": map[string]any{
				"get": map[string]any{
					"summary": "Describe one agent",
					"parameters": []map[string]any{
						{"name": "slug", "in": "path", "required": true,
							"schema": map[string]any{"type": "string"}},
					},
					"responses": map[string]any{
						"200": jsonResponse("Agent description", map[string]any{"type": "object"}),
						"404": jsonResponse("Unknown agent", map[string]any{"type": "object"}),
					},
				},
			},
			"/api/v1/stream/sse": map[string]any{
				"get": map[string]any{
					"summary": "Stream invocation events (Server-Sent Events)",
					"parameters": []map[string]any{
						{"name": "execution_ref", "in": "query", "required": true,
							"schema": map[string]any{"type": "string"}},
						{"name": "last_event_id", "in": "query",
							"schema": map[string]any{"type": "integer"}},
					},
					"responses": map[string]any{
						"200": map[string]any{"description": "text/event-stream of lifecycle events"},
					},
				},
			},
			"/api/v1/stream/ws": map[string]any{
				"get": map[string]any{
					"summary": "Stream invocation events (WebSocket)",
					"parameters": []map[string]any{
						{"name": "execution_ref", "in": "query", "required": true,
							"schema": map[string]any{"type": "string"}},
					},
					"responses": map[string]any{
						"101": map[string]any{"description": "WebSocket upgrade"},
					},
				},
			},
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"apiKey": map[string]any{
					"type": "apiKey", "in": "header", "name": "X-API-Key",
				},
				"bearerAuth": map[string]any{
					"type": "http", "scheme": "bearer", "bearerFormat": "JWT",
				},
			},
			"schemas": map[string]any{
				"InvocationInput": objectSchema(map[string]any{
					"objective": map[string]any{"type": "string", "maxLength": 10000},
					"context": objectSchema(map[string]any{
						"max_depth":           map[string]any{"type": "integer", "minimum": 0, "maximum": 5},
						"constraints":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"existing_components": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					}),
					"config": objectSchema(map[string]any{
						"max_sub_objectives": map[string]any{"type": "integer", "minimum": 1, "maximum": 100},
						"target_granularity": map[string]any{"type": "string", "enum": []string{"coarse", "standard", "fine"}},
					}),
					"execution_ref": map[string]any{"type": "string"},
				}, "objective"),
				"SuccessEnvelope": objectSchema(map[string]any{
					"status":             map[string]any{"type": "string", "enum": []string{"success"}},
					"event":              map[string]any{"type": "object"},
					"persistence_status": map[string]any{"type": "object"},
				}),
				"ErrorEnvelope": objectSchema(map[string]any{
					"status":        map[string]any{"type": "string", "enum": []string{"error"}},
					"error_code":    map[string]any{"type": "string"},
					"error_message": map[string]any{"type": "string"},
					"execution_ref": map[string]any{"type": "string"},
				}),
			},
		},
	}
}
