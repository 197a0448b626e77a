package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Invalid("prix invalide"), http.StatusBadRequest},
		{New(DomainState, "commande non terminée"), http.StatusBadRequest},
		{New(Signature, "signature invalide"), http.StatusBadRequest},
		{Missing("produit introuvable"), http.StatusNotFound},
		{Duplicate("doublon"), http.StatusConflict},
		{New(OutOfStock, "rupture"), http.StatusConflict},
		{Denied("admin requis"), http.StatusForbidden},
		{Unauthenticated("token manquant"), http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
		{Internalf(errors.New("boom"), "lecture"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := Status(tc.err); got != tc.want {
			t.Errorf("Status(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestWrappedErrorKeepsKind(t *testing.T) {
	base := Missing("réservation introuvable")
	err := fmt.Errorf("annulation: %w", base)

	if !Is(err, NotFound) {
		t.Fatalf("Is(err, NotFound) = false")
	}
	if Message(err) != "réservation introuvable" {
		t.Fatalf("Message = %q", Message(err))
	}
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internalf(cause, "insert %s", "bookings")

	if Message(err) != "erreur interne" {
		t.Fatalf("Message = %q", Message(err))
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost")
	}
}
