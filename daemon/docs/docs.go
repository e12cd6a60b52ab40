package docs

import "github.com/swaggo/swag"

// Hand-maintained Swagger document for the API routes, registered the way
// a generated docs.go would register it.

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/health": {
            "get": {
                "tags": ["System"],
                "summary": "Health and decode-error counters",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/telemetry": {
            "get": {
                "tags": ["Telemetry"],
                "summary": "Most recent telemetry record",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/telemetry/history": {
            "get": {
                "tags": ["Telemetry"],
                "summary": "Bounded telemetry history",
                "responses": {"200": {"description": "OK"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so the http-swagger handler can
// look it up via the swag registry keyed by InstanceName.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8043",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Battery Correlation Engine API",
	Description:      "REST API and WebSocket interface over the 104s8p pack thermal-runaway correlation engine.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
