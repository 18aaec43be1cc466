package facilitator

import (
	"net/http"

	"github.com/gin-gonic/gin"

	x402 "github.com/x402rail/facilitator"
)

// NewServer wires the facilitator's gin router: the settlement endpoint at
// both "/" and "/facilitator", a health check, and the supplemented
// "/supported" discovery endpoint (§4.2, §6). gin.Logger() gives every
// request a line in the standard combined-log format; reject/fail add the
// pipeline-stage detail on top of that (§10.1, §12).
func NewServer(pipeline *Pipeline, mockMode bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	settle := func(c *gin.Context) {
		var payload x402.FacilitatorPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, x402.ErrorResponse{Error: "invalid request body: " + err.Error()})
			return
		}

		outcome := pipeline.Handle(c.Request.Context(), payload)
		if outcome.StatusCode == http.StatusOK {
			c.JSON(outcome.StatusCode, outcome.Response)
			return
		}
		c.JSON(outcome.StatusCode, outcome.ErrorBody)
	}
	r.POST("/", settle)
	r.POST("/facilitator", settle)

	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"service":   "x402-facilitator",
			"version":   "1.0.0",
			"mockMode":  mockMode,
		})
	}
	r.GET("/", health)
	r.GET("/health", health)

	r.GET("/supported", func(c *gin.Context) {
		networks := x402.SupportedNetworks()
		kinds := make([]gin.H, 0, len(networks))
		for _, n := range networks {
			kinds = append(kinds, gin.H{
				"scheme":            "exact",
				"network":           n.CAIP2,
				"stablecoinAddress": n.StablecoinAddress,
			})
		}
		c.JSON(http.StatusOK, gin.H{"kinds": kinds})
	})

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST,GET,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type,Authorization,X-402-Receipt,X-PAYMENT")
		c.Header("Access-Control-Max-Age", "86400")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
