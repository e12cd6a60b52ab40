// Package docs provides Swagger/OpenAPI documentation for the battery
// correlation engine's REST API.
package docs

// General API Info
//
//	@title						Battery Correlation Engine API
//	@version					1.0.0
//	@description				REST API and WebSocket interface over the 104s8p pack thermal-runaway correlation engine.
//
//	@license.name				MIT
//
//	@host						localhost:8043
//	@BasePath					/api/v1
//	@schemes					http https
//
//	@tag.name					System
//	@tag.description			Health check endpoint
//	@tag.name					Telemetry
//	@tag.description			Latest and historical telemetry records
//	@tag.name					WebSocket
//	@tag.description			Real-time telemetry streaming via WebSocket
