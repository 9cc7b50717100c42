package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/verdia/trellis/internal/cache"
	"github.com/verdia/trellis/internal/realtime"
	"github.com/verdia/trellis/internal/store"
)

type routeDeps struct {
	store    *store.Store
	broker   *store.Broker
	cache    cache.Store
	cacheTTL time.Duration
}

// registerRoutes sets up all gateway routes on the Gin router.
func registerRoutes(router *gin.Engine, deps routeDeps) {
	router.GET("/healthz", handleHealth())

	v1 := router.Group("/v1")
	v1.POST("/conversations", handleFindOrCreateConversation(deps))
	v1.GET("/conversations", handleListConversations(deps))
	v1.GET("/conversations/:id", handleGetConversation(deps))
	v1.GET("/conversations/:id/messages", handleListMessages(deps))
	v1.POST("/conversations/:id/messages", handlePostMessage(deps))
	v1.GET("/conversations/:id/intake", handleGetIntake(deps))
	v1.POST("/conversations/:id/intake", handleMarkIntake(deps))
	v1.GET("/conversations/:id/subscribe", handleSubscribe(deps))
	v1.GET("/diagnoses/latest", handleLatestDiagnosis(deps))
}

func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleFindOrCreateConversation(deps routeDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			UserID   string `json:"user_id"`
			ExpertID string `json:"expert_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.UserID == "" || req.ExpertID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and expert_id are required"})
			return
		}
		conv, err := deps.store.FindOrCreateConversation(c.Request.Context(), req.UserID, req.ExpertID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		// A first-contact create changes the user's conversation list.
		deps.dropKeys(c, cache.UserConversationsKey(req.UserID))
		c.JSON(http.StatusOK, conv)
	}
}

func handleListConversations(deps routeDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}
		deps.cachedJSON(c, cache.UserConversationsKey(userID), func() (any, error) {
			return deps.store.ListConversations(c.Request.Context(), userID)
		})
	}
}

func handleGetConversation(deps routeDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		deps.cachedJSON(c, cache.ConversationKey(id), func() (any, error) {
			return deps.store.GetConversation(c.Request.Context(), id)
		})
	}
}

func handleListMessages(deps routeDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		deps.cachedJSON(c, cache.MessagesKey(id), func() (any, error) {
			return deps.store.LoadMessages(c.Request.Context(), id)
		})
	}
}

func handlePostMessage(deps routeDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req realtime.NewMessage
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		req.ConversationID = c.Param("id")

		msg, err := deps.store.CreateMessage(c.Request.Context(), req)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		keys := []string{
			cache.MessagesKey(req.ConversationID),
			cache.ConversationKey(req.ConversationID),
		}
		if req.SenderID != "" {
			keys = append(keys, cache.UserConversationsKey(req.SenderID))
		}
		if req.RecipientID != "" {
			keys = append(keys, cache.UserConversationsKey(req.RecipientID))
		}
		deps.dropKeys(c, keys...)
		c.JSON(http.StatusCreated, msg)
	}
}

func handleGetIntake(deps routeDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sent, err := deps.store.IsIntakeSent(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sent": sent})
	}
}

func handleMarkIntake(deps routeDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := deps.store.MarkIntakeSent(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleLatestDiagnosis(deps routeDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
			return
		}
		report, err := deps.store.LatestDiagnosis(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if report == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no diagnosis report"})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// cachedJSON serves the key from the cache when present, otherwise loads,
// caches, and serves. Cache failures fall through to an uncached read.
func (d routeDeps) cachedJSON(c *gin.Context, key string, load func() (any, error)) {
	if d.cache != nil {
		if body, ok, err := d.cache.Get(c.Request.Context(), key); err == nil && ok {
			c.Data(http.StatusOK, "application/json; charset=utf-8", body)
			return
		}
	}

	value, err := load()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	body, err := json.Marshal(value)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if d.cache != nil {
		_ = d.cache.Set(c.Request.Context(), key, body, d.cacheTTL)
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (d routeDeps) dropKeys(c *gin.Context, keys ...string) {
	if d.cache == nil {
		return
	}
	_ = d.cache.Delete(c.Request.Context(), keys...)
}
