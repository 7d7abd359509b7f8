package service

import (
	"fmt"

	"github.com/vedran77/rentals/internal/repository"
)

func decodeDocument[T any](doc *repository.Document) (*T, error) {
	var v T
	if err := doc.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", doc.Collection, doc.ID, err)
	}
	return &v, nil
}

func decodeDocuments[T any](docs []repository.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for i := range docs {
		v, err := decodeDocument[T](&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}
