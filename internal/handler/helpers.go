package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dukerupert/kinship/internal/auth"
	"github.com/dukerupert/kinship/internal/model"
	"github.com/dukerupert/kinship/internal/store"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// isodate accepts "" (field left blank) or a YYYY-MM-DD calendar date.
	v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		_, err := time.Parse(model.DateLayout, s)
		return err == nil
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIDParam(r *http.Request) (int64, error) {
	return parsePathInt(r, "id")
}

func parsePathInt(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

// decode reads a JSON body into v and runs struct validation. On failure it
// writes a 400 and returns false.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "email":
		return field + " must be a valid email address"
	case "isodate":
		return field + " must be a date in YYYY-MM-DD format"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "gt", "gte":
		return field + " must be a positive id"
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", field, fe.Param())
	}
	return field + " is invalid"
}

// isClientError reports whether err is a store validation sentinel rather
// than an infrastructure failure.
func isClientError(err error) bool {
	for _, target := range []error{
		store.ErrSelfRelation, store.ErrParentNotOlder, store.ErrFieldNotProposable,
		store.ErrPersonNotFound, store.ErrDuplicateRelation, store.ErrProposalReviewed,
		store.ErrInvalidValue,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeStoreError maps store sentinel errors onto 4xx responses. Anything
// else is a 500 with the generic message.
func writeStoreError(w http.ResponseWriter, err error, generic string) {
	switch {
	case errors.Is(err, store.ErrSelfRelation), errors.Is(err, store.ErrParentNotOlder),
		errors.Is(err, store.ErrFieldNotProposable), errors.Is(err, store.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrPersonNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrDuplicateRelation), errors.Is(err, store.ErrProposalReviewed):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, generic)
	}
}

// scopeFor translates the viewer's permissions into a store query scope.
func scopeFor(ac auth.AuthContext) store.Scope {
	switch {
	case !ac.Authenticated():
		return store.Scope{Levels: []model.Visibility{model.VisibilityPublic}}
	case ac.IsAdmin(), ac.CanViewPrivate:
		return store.Scope{All: true}
	}
	return store.Scope{
		Levels:     []model.Visibility{model.VisibilityPublic, model.VisibilityFamily},
		PrivateFor: ac.UserID,
	}
}

func viewer(r *http.Request) auth.AuthContext {
	ac, _ := auth.FromContext(r.Context())
	return ac
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}
