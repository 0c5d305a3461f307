package ingest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// observationRequest is the wire shape posted by agents.
type observationRequest struct {
	Vendor   string          `json:"vendor" binding:"required"`
	URL      string          `json:"url"`
	RawPrice string          `json:"rawPrice"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Route    struct {
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
		Date        string `json:"date"`
	} `json:"route"`
	PageTitle string    `json:"pageTitle"`
	UserAgent string    `json:"userAgent"`
	TabURL    string    `json:"tabUrl"`
	ClientID  string    `json:"clientId"`
	TS        time.Time `json:"ts"`
}

// NewRouter wires the ingestion endpoints. An empty apiKey disables
// authentication, which is only sensible on a loopback listener.
func NewRouter(svc *Service, apiKey string, logger zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	if apiKey != "" {
		api.Use(requireAPIKey(apiKey))
	}

	api.POST("/observations", func(c *gin.Context) {
		var req observationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		obs := Observation{
			Vendor:      req.Vendor,
			URL:         req.URL,
			RawPrice:    req.RawPrice,
			Price:       req.Price,
			Currency:    req.Currency,
			Origin:      req.Route.Origin,
			Destination: req.Route.Destination,
			FlightDate:  req.Route.Date,
			PageTitle:   req.PageTitle,
			ClientID:    req.ClientID,
			CapturedAt:  req.TS,
		}

		stored, err := svc.Ingest(c.Request.Context(), obs)
		if err != nil {
			if errors.Is(err, ErrInvalidObservation) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			logger.Error().Err(err).Str("vendor", req.Vendor).Msg("ingest failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"id":         stored.ID,
			"dedupeKey":  stored.DedupeKey,
			"confidence": stored.Confidence,
		})
	})

	return router
}

func requireAPIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-API-Key") != key {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
