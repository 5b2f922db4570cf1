package search

import "github.com/hyperjump/tanya/internal/models"

// ProcessQuery validates the request and applies the default top-k.
func ProcessQuery(req *models.AskRequest, defaultTopK int) error {
	return req.Validate(defaultTopK)
}
