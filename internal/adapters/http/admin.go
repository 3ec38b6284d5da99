package http

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/dkeye/WatchParty/internal/core"
	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const adminRole = "admin"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("admin role required")
)

// AdminClaims is the payload of an admin bearer token.
type AdminClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

func ParseAdminToken(secret, token string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if !slices.Contains(claims.Roles, adminRole) {
		return nil, ErrForbidden
	}
	return claims, nil
}

// AdminAuth requires "Authorization: Bearer <jwt>" signed with secret and
// carrying the admin role.
func AdminAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": ErrMissingToken.Error()})
			return
		}
		claims, err := ParseAdminToken(secret, token)
		switch {
		case errors.Is(err, ErrForbidden):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": err.Error()})
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.Set("admin_subject", claims.Subject)
		c.Next()
	}
}

// RoomAdmin is what the admin API needs from the coordinator.
type RoomAdmin interface {
	ListRooms() []core.RoomInfo
	ForceHost(room domain.RoomID, user domain.UserID) (*core.RoomInfo, error)
}

func RegisterAdmin(g *gin.RouterGroup, a RoomAdmin) {
	g.GET("/rooms", func(c *gin.Context) {
		rooms := a.ListRooms()
		total := 0
		for _, r := range rooms {
			total += r.TotalUsers
		}
		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"rooms":      rooms,
			"totalRooms": len(rooms),
			"totalUsers": total,
		})
	})

	g.POST("/rooms/:channelId/change-host", func(c *gin.Context) {
		var req struct {
			NewHostID string `json:"newHostId"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.NewHostID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "newHostId is required"})
			return
		}
		roomID := domain.RoomID(c.Param("channelId"))
		info, err := a.ForceHost(roomID, domain.UserID(req.NewHostID))
		switch {
		case errors.Is(err, domain.ErrRoomNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Room not found"})
			return
		case errors.Is(err, domain.ErrNotMember):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "User is not in this room"})
			return
		case err != nil:
			log.Error().Err(err).Str("module", "adapters.http").Msg("change host")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to change host"})
			return
		}
		log.Info().Str("module", "adapters.http").Str("admin", c.GetString("admin_subject")).
			Str("room", string(roomID)).Str("new_host", req.NewHostID).Msg("host changed")
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"message":   "Host changed to " + req.NewHostID,
			"newHostId": req.NewHostID,
			"room":      info,
		})
	})
}
