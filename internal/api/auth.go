package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ministore/recordstore/recordstore/models"
)

const (
	ctxAuthRecord = "recordstore.auth"
	ctxSuperuser  = "recordstore.superuser"
)

// Claims identify the authenticated record of a bearer token.
type Claims struct {
	ID           string `json:"id"`
	CollectionID string `json:"collectionId"`
	jwt.RegisteredClaims
}

type AuthConfig struct {
	Enabled             bool
	Secret              []byte
	SuperuserCollection string
}

// IssueToken signs an HS256 token for the record id of collection.
func IssueToken(secret []byte, collection, id string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ID:           id,
		CollectionID: collection,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "recordstore",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (h *Handler) parseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return h.auth.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.ID == "" || claims.CollectionID == "" {
		return nil, errors.New("token has no id or collectionId claim")
	}
	return claims, nil
}

// Authenticate resolves the bearer token into the auth record exposed as
// @request.auth. Requests without a token stay anonymous.
func (h *Handler) Authenticate() gin.HandlerFunc {
	logger := zap.S().Named("auth")

	return func(c *gin.Context) {
		if !h.auth.Enabled {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			abort(c, http.StatusUnauthorized, "invalid authorization header", nil)
			return
		}

		claims, err := h.parseToken(raw)
		if err != nil {
			logger.Debugw("rejected token", "error", err)
			abort(c, http.StatusUnauthorized, "invalid or expired token", nil)
			return
		}

		if claims.CollectionID == h.auth.SuperuserCollection {
			c.Set(ctxSuperuser, true)
			c.Next()
			return
		}

		record, err := h.records.GetRecord(c.Request.Context(), claims.CollectionID, claims.ID)
		if err != nil {
			logger.Debugw("unknown token record", "collection", claims.CollectionID, "id", claims.ID, "error", err)
			abort(c, http.StatusUnauthorized, "invalid or expired token", nil)
			return
		}
		c.Set(ctxAuthRecord, record)
		c.Next()
	}
}

// requestInfo collects the request data rules and filters can reference.
func requestInfo(c *gin.Context, body map[string]any) *models.RequestInfo {
	info := &models.RequestInfo{
		Context: models.RequestContextDefault,
		Method:  c.Request.Method,
		Headers: make(map[string]string, len(c.Request.Header)),
		Query:   make(map[string]string),
		Body:    body,
	}
	for k, v := range c.Request.Header {
		if len(v) > 0 {
			info.Headers[k] = v[0]
		}
	}
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			info.Query[k] = v[0]
		}
	}
	if record, ok := c.Get(ctxAuthRecord); ok {
		info.Auth, _ = record.(*models.Record)
	}
	info.Superuser = c.GetBool(ctxSuperuser)
	return info
}
