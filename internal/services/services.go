// Package services porte la logique métier : catalogue, commandes, paiements, reporting, utilisateurs.
package services

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"bazaar_back_end/internal/apperr"
	"bazaar_back_end/internal/repository"
	"bazaar_back_end/internal/utils"
)

// priceTolerance : écart toléré entre le total client et le total serveur.
const priceTolerance = 0.01

// Actor est l'utilisateur authentifié à l'origine d'une opération.
type Actor = utils.Actor

// round2 arrondit un montant au centime.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// parsePage lit un numéro de page ou une taille de page; une valeur absente ou < 1 prend def.
func parsePage(raw string, def, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

func totalPages(total, limit int) int {
	if limit <= 0 || total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// storeErr convertit une erreur de dépôt en erreur métier.
func storeErr(err error, notFound, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperr.Missing(notFound)
	case errors.Is(err, repository.ErrDuplicate):
		return apperr.Duplicate("document déjà existant")
	default:
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return err
		}
		return apperr.Internalf(err, "%s", op)
	}
}

type clock func() time.Time
