// Package apidocs registers the swagger document of the session facade.
// Import it for side effects before serving /docs.
package apidocs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "Apache 2.0",
            "url": "http://www.apache.org/licenses/LICENSE-2.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/connect": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Opens an authenticated warehouse session and returns its ID. The token may be sent in the body or as Authorization: Bearer.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "Open a warehouse session",
                "parameters": [
                    {
                        "description": "Connection parameters",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/gateway.Params"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.connectResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.errorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/api.errorResponse"}}
                }
            }
        },
        "/test": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Opens a temporary session, runs SELECT 1 AS test and closes it.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "Test warehouse connectivity",
                "parameters": [
                    {
                        "description": "Connection parameters",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/gateway.Params"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.successResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.errorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/api.errorResponse"}}
                }
            }
        },
        "/query": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Runs a raw statement verbatim, or a logical query with equality filters, on an open session.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Queries"],
                "summary": "Run a statement",
                "parameters": [
                    {
                        "description": "Session and statement",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/api.queryRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.queryResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.errorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.errorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/api.errorResponse"}}
                }
            }
        },
        "/disconnect": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Closes the session. Closing an unknown or already closed session succeeds.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "Close a session",
                "parameters": [
                    {
                        "description": "Session to close",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/api.disconnectRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.successResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.errorResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "description": "Reports liveness, the session TTL and the number of open sessions. Pass sessions=true to list them; listing requires the admin role when auth is enabled.",
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Facade status",
                "parameters": [
                    {
                        "type": "boolean",
                        "description": "Include open sessions",
                        "name": "sessions",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.Status"}}
                }
            }
        },
        "/sessions/{id}": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "Get a session",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Session ID",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/session.Session"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.errorResponse"}}
                }
            }
        },
        "/sessions/{id}/events": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Lists recorded lifecycle events of a session, newest first. Closed and expired sessions are included. Requires the admin role when auth is enabled.",
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "Session event history",
                "parameters": [
                    {"type": "string", "description": "Session ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "opened, closed, evicted or close_failed", "name": "kind", "in": "query"},
                    {"type": "string", "description": "RFC 3339 lower bound", "name": "since", "in": "query"},
                    {"type": "integer", "description": "Maximum events (default and cap 1000)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/postgres.StoredEvent"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.errorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/api.errorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.errorResponse"}}
                }
            }
        },
        "/{entity}": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Runs the logical query for the entity on the session. Remaining query parameters are equality filters.",
                "produces": ["application/json"],
                "tags": ["Queries"],
                "summary": "Read an entity",
                "parameters": [
                    {
                        "type": "string",
                        "description": "accounts, transactions, projects, budget-entries, vendors or kpis",
                        "name": "entity",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Session ID",
                        "name": "sessionId",
                        "in": "query",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"type": "object"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.errorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.errorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/api.errorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "api.Status": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"},
                "activeConnections": {"type": "integer"},
                "serverTime": {"type": "string"},
                "sessionTtlMs": {"type": "integer", "example": 1800000},
                "drivers": {"type": "array", "items": {"type": "string"}},
                "sessions": {"type": "array", "items": {"$ref": "#/definitions/session.Session"}}
            }
        },
        "api.connectResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": true},
                "sessionId": {"type": "string", "example": "0b7f3c9e-6a55-4d8e-9a51-0f3b1e2d4c6a"},
                "expiresAt": {"type": "string"}
            }
        },
        "api.disconnectRequest": {
            "type": "object",
            "properties": {
                "sessionId": {"type": "string"}
            }
        },
        "api.errorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "boolean", "example": true},
                "message": {"type": "string"}
            }
        },
        "api.queryRequest": {
            "type": "object",
            "properties": {
                "sessionId": {"type": "string"},
                "statement": {"type": "string"},
                "logical": {"type": "string"},
                "filters": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "api.queryResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": true},
                "data": {"type": "array", "items": {"type": "object"}},
                "columns": {"type": "array", "items": {"type": "string"}},
                "count": {"type": "integer"}
            }
        },
        "api.successResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean", "example": true}
            }
        },
        "gateway.Params": {
            "type": "object",
            "properties": {
                "driver": {"type": "string"},
                "endpointUrl": {"type": "string"},
                "accessPath": {"type": "string"},
                "catalog": {"type": "string"},
                "schema": {"type": "string"},
                "token": {"type": "string"}
            }
        },
        "postgres.StoredEvent": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "sessionId": {"type": "string"},
                "kind": {"type": "string", "example": "closed"},
                "driver": {"type": "string"},
                "endpoint": {"type": "string"},
                "catalog": {"type": "string"},
                "schema": {"type": "string"},
                "detail": {"type": "string"},
                "occurredAt": {"type": "string"}
            }
        },
        "session.Session": {
            "type": "object",
            "properties": {
                "sessionId": {"type": "string"},
                "driver": {"type": "string"},
                "endpointUrl": {"type": "string"},
                "catalog": {"type": "string"},
                "schema": {"type": "string"},
                "createdAt": {"type": "string"},
                "expiresAt": {"type": "string"},
                "status": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "type": "apiKey",
            "name": "X-API-Key",
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
	Title:            "Budget Data Gateway API",
	Description:      "Session-scoped query gateway to hosted analytical SQL warehouses.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
