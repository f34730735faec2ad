package middleware

import (
	"strings"

	"crew_assessment_backend/internal/model"
	"crew_assessment_backend/internal/repository"
	"crew_assessment_backend/internal/service"
	"crew_assessment_backend/internal/util"
	"crew_assessment_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// AuthMiddleware validates the admin JWT and stores its claims in the
// context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(token, secret)
		if err != nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		c.Set("user", claims)
		c.Next()
	}
}

// AdminRequired gates a route group to admin accounts. Must run after
// AuthMiddleware.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := util.GetUserFromContext(c)
		if claims == nil || claims.Role != model.Admin {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// SessionMiddleware validates the per-assessment session token, checks it
// against the :id path parameter and feeds the request fingerprint to the
// integrity engine. A fingerprint observation failure is logged, never
// fatal; grading must not stop because the audit write hiccuped.
func SessionMiddleware(secret string, assessmentRepo *repository.AssessmentRepository, integrity *service.IntegrityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			token = c.GetHeader("X-Session-Token")
		}
		if token == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseSessionToken(token, secret)
		if err != nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		id := util.MustParseUint(c.Param("id"))
		if id == 0 || id != claims.AssessmentID {
			util.Forbidden(c)
			c.Abort()
			return
		}

		c.Set("session", claims)

		assessment, err := assessmentRepo.FindByID(claims.AssessmentID)
		if err == nil {
			if err := integrity.Observe(assessment, c.ClientIP(), c.Request.UserAgent()); err != nil {
				logger.Log.Error("Fingerprint observation failed",
					zap.Uint("assessmentId", claims.AssessmentID),
					zap.Error(err))
			}
		}

		c.Next()
	}
}
