package usecase

import (
	"errors"

	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

func isConflict(err error) bool { return errors.Is(err, domain.ErrConflict) }

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }

func ptr[T any](v T) *T { return &v }
