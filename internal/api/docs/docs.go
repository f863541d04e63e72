// Package docs registers the admin API's swagger spec with swaggo/swag so
// /swagger/*any (wired in internal/api/routes.go) has something to serve.
// Normally produced by `swag init` from the @-annotations in
// internal/api/handlers; hand-maintained here since the annotated surface
// is small and stable (health/stats/lists/querylog).
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{.Description}}",
        "contact": {
            "name": "odns",
            "url": "https://github.com/jroosing/odns"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "tags": ["system"],
                "summary": "Health check",
                "security": [{"ApiKeyAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/stats": {
            "get": {
                "tags": ["system"],
                "summary": "Server statistics",
                "security": [{"ApiKeyAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/lists": {
            "get": {
                "tags": ["lists"],
                "summary": "List access-list entries",
                "security": [{"ApiKeyAuth": []}],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["lists"],
                "summary": "Add an access-list entry",
                "security": [{"ApiKeyAuth": []}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}}
            }
        },
        "/lists/{id}": {
            "delete": {
                "tags": ["lists"],
                "summary": "Remove an access-list entry",
                "security": [{"ApiKeyAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "integer"}],
                "responses": {"204": {"description": "No Content"}, "404": {"description": "Not Found"}}
            }
        },
        "/querylog": {
            "get": {
                "tags": ["querylog"],
                "summary": "Query the resolved-query history",
                "security": [{"ApiKeyAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "type": "apiKey",
            "in": "header",
            "name": "X-API-Key"
        }
    }
}`

// SwaggerInfo holds the spec metadata swag templates into docTemplate.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "odns Management API",
	Description:      "REST API for managing odns's access lists and observing server health, statistics, and resolved-query history.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
