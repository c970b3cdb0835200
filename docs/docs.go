// Package docs registers the OpenAPI document of the filters service with swag.
// Regenerate with `swag init -g cmd/filters-service/main.go`.
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
        "/filters/{partition}": {
            "get": {
                "description": "Get the items currently shown for inclusions or exclusions",
                "produces": ["application/json"],
                "tags": ["filters"],
                "summary": "List filters of a partition",
                "parameters": [
                    {"type": "string", "description": "inclusions or exclusions", "name": "partition", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.ListResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}}
                }
            },
            "post": {
                "description": "Create one record per non-empty field. The store write is asynchronous.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["filters"],
                "summary": "Add filters",
                "parameters": [
                    {"type": "string", "description": "inclusions or exclusions", "name": "partition", "in": "path", "required": true},
                    {"description": "Filter fields", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/filters.AddRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/filters.Record"}}},
                    "202": {"description": "Accepted", "schema": {"type": "array", "items": {"$ref": "#/definitions/filters.Record"}}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/filters/{partition}/{index}": {
            "delete": {
                "description": "Evict the item at index and delete its record asynchronously",
                "produces": ["application/json"],
                "tags": ["filters"],
                "summary": "Remove a filter by position",
                "parameters": [
                    {"type": "string", "description": "inclusions or exclusions", "name": "partition", "in": "path", "required": true},
                    {"type": "integer", "description": "Item index", "name": "index", "in": "path", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/filters.Record"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/match": {
            "post": {
                "description": "Run an entry through the current inclusions and exclusions",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["filters"],
                "summary": "Test a log entry",
                "parameters": [
                    {"description": "Log entry", "name": "entry", "in": "body", "required": true, "schema": {"$ref": "#/definitions/matcher.Entry"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/matcher.Decision"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "500": {"description": "Internal Server Error", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "api.ListResponse": {
            "type": "object",
            "properties": {
                "partition": {"type": "string"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/filters.DisplayItem"}},
                "empty": {"type": "boolean"},
                "version": {"type": "integer"}
            }
        },
        "filters.AddRequest": {
            "type": "object",
            "properties": {
                "keyword": {"type": "string"},
                "tag": {"type": "string"},
                "pid": {"type": "string"},
                "tid": {"type": "string"},
                "log_levels": {"type": "array", "items": {"type": "string"}}
            }
        },
        "filters.DisplayItem": {
            "type": "object",
            "properties": {
                "type_label": {"type": "string"},
                "display_text": {"type": "string"},
                "source": {"$ref": "#/definitions/filters.Record"}
            }
        },
        "filters.Record": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "kind": {"type": "string"},
                "content": {"type": "string"},
                "exclusion": {"type": "boolean"},
                "created_at": {"type": "string"}
            }
        },
        "matcher.Decision": {
            "type": "object",
            "properties": {
                "matched": {"type": "boolean"},
                "reason": {"type": "string"},
                "rule": {"$ref": "#/definitions/filters.Record"}
            }
        },
        "matcher.Entry": {
            "type": "object",
            "properties": {
                "tag": {"type": "string"},
                "message": {"type": "string"},
                "pid": {"type": "string"},
                "tid": {"type": "string"},
                "priority": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Filters Service API",
	Description:      "REST API for managing inclusion and exclusion log filters",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
