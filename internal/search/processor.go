package search

import "github.com/hyperjump/kusari/internal/models"

// ProcessQuery validates the query and caps TopK at maxTopK (when positive).
func ProcessQuery(query *models.SearchQuery, maxTopK int) error {
	if err := query.Validate(); err != nil {
		return err
	}
	if maxTopK > 0 && query.TopK > maxTopK {
		query.TopK = maxTopK
	}
	return nil
}
