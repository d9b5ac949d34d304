package httpx

import (
	"errors"
	"net/http"

	"github.com/meridianhq/meridian/internal/platform/i18n"
	"github.com/meridianhq/meridian/internal/shared"
)

// RespondError maps domain errors to RFC7807 responses, localising titles
// using the negotiated request language.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	lang := i18n.FromContext(r.Context())
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, i18n.T(lang, "not_found"), err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, i18n.T(lang, "conflict"), err.Error())
	case errors.Is(err, shared.ErrReferentialIntegrity):
		Problem(w, http.StatusUnprocessableEntity, i18n.T(lang, "referential_integrity"), err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, i18n.T(lang, "validation_failed"), err.Error())
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, i18n.T(lang, "unauthorized"), "")
	default:
		Problem(w, http.StatusInternalServerError, i18n.T(lang, "internal_error"), "")
	}
}
