// Package api holds the gateway's OpenAPI document.
package api

import _ "embed"

// OpenAPI is the YAML OpenAPI 3 document of the REST gateway.
//
//go:embed openapi.yaml
var OpenAPI []byte
