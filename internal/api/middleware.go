package api

import (
	"strings"
	"time"

	"github.com/gmsas95/dosekeeper/internal/errors"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
)

const localPatientID = "patient_id"

const tokenTTL = 7 * 24 * time.Hour

func (s *Server) issueToken(patientID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": patientID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(tokenTTL).Unix(),
	})
	return token.SignedString([]byte(s.config.Security.JWTSecret))
}

// patientFromToken validates the token and returns its subject
func (s *Server) patientFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.Security.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", errors.ErrUnauthorized.WithCause(err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.ErrUnauthorized
	}
	return sub, nil
}

func (s *Server) authMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := c.Get("Authorization")
		if auth == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing authorization header", "code": errors.ErrUnauthorized.Code})
		}

		patientID, err := s.patientFromToken(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token", "code": errors.ErrUnauthorized.Code})
		}

		c.Locals(localPatientID, patientID)
		return c.Next()
	}
}

// wsUpgradeMiddleware authenticates app windows. Browsers cannot set headers
// on a websocket handshake, so the token travels in the query string.
func (s *Server) wsUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		patientID, err := s.patientFromToken(c.Query("token"))
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token", "code": errors.ErrUnauthorized.Code})
		}

		c.Locals(localPatientID, patientID)
		return c.Next()
	}
}

func patientID(c *fiber.Ctx) string {
	id, _ := c.Locals(localPatientID).(string)
	return id
}
