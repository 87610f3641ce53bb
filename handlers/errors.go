package handlers

import (
	"errors"
	"net/http"

	"passenger-flow-api/prediction"
	"passenger-flow-api/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// respondError maps not-found errors to 404, duplicates to 409 and everything
// else to a logged 500.
func respondError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, prediction.ErrRouteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).
			Str("request_id", c.GetString("request_id")).
			Str("path", c.FullPath()).
			Msg(msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
