// Package api holds the OpenAPI description of the HTTP surface. The raw
// document is embedded so the server can serve it and validate requests
// against it without touching the filesystem.
package api

import _ "embed"

// OpenAPI is the raw OpenAPI 3 document, served at /openapi.yaml.
//
//go:embed openapi.yaml
var OpenAPI []byte
