// Package api serves the DID projection and the indexer controls over HTTP.
// @title DIDIndexor API
// @version 1.0
// @description REST API for querying DID records and event history projected from the DID registry contract
// @contact.name API Support
// @contact.url https://github.com/goran-ethernal/DIDIndexor
// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0.html
// @basePath /api/v1
// @schemes http https
package api

//go:generate swag init --generalInfo docs.go --dir .,../../internal/projection,../indexer --output docs --outputTypes go
