package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Server exposes the search handler over HTTP
type Server struct {
	router *gin.Engine
}

// NewServer creates the router and registers the routes
func NewServer(handler *SearchHandler) *Server {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.POST("/searches", handler.CreateSearch)
	v1.GET("/searches", handler.ListSearches)
	v1.GET("/searches/:id", handler.GetSearch)

	return &Server{router: router}
}

// Handler returns the underlying http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until the listener fails
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
