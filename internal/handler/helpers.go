package handler

import (
	"errors"
	"net/http"
	"reflect"

	"fairtrace/internal/apierror"
	"fairtrace/internal/graph"
	"fairtrace/internal/middleware"
	"fairtrace/internal/model"
	"fairtrace/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// gt=0 and required work on quantities.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails; the
// caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid JSON: "+err.Error()))
		return false
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
			return false
		}
		fields := make(map[string]string)
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// paramID parses a uuid path parameter, writing 400 when malformed.
func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("Invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// callerFrom builds the service caller from the validated token.
func callerFrom(c *gin.Context) service.Caller {
	claims := middleware.GetClaims(c)
	return service.Caller{
		UserID: claims.User(),
		NodeID: claims.Node(),
		Admin:  claims.Role == string(model.RoleAdmin),
	}
}

// respondError maps service and domain errors onto the apierror envelope.
// Anything unrecognised is logged and returned as a generic 500.
func respondError(c *gin.Context, err error) {
	var cycle *graph.CycleError
	switch {
	case errors.As(err, &cycle):
		c.JSON(http.StatusUnprocessableEntity, apierror.WithCode(apierror.CodeCycle, cycle.Error()))
	case errors.Is(err, service.ErrInsufficientQuantity):
		c.JSON(http.StatusUnprocessableEntity, apierror.WithCode(apierror.CodeInsufficientQuantity, err.Error()))
	case errors.Is(err, graph.ErrTraversalTooLarge):
		c.JSON(http.StatusServiceUnavailable, apierror.WithCode(apierror.CodeTraceTooLarge, "Trace is too large to compute"))
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, apierror.New("Not found"))
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, apierror.New(err.Error()))
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, apierror.New(err.Error()))
	case errors.Is(err, service.ErrBatchNotVisible):
		c.JSON(http.StatusBadRequest, apierror.WithCode(apierror.CodeNotVisible, err.Error()))
	case errors.Is(err, service.ErrThemeMismatch),
		errors.Is(err, service.ErrBatchArchived),
		errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, apierror.New(err.Error()))
	default:
		log.Error().
			Err(err).
			Str("request_id", c.GetString(middleware.RequestIDKey)).
			Str("path", c.FullPath()).
			Msg("request failed")
		c.JSON(http.StatusInternalServerError, apierror.New("Internal server error"))
	}
}
