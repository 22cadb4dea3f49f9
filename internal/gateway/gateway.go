package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Route maps a downstream service to the URL used when it cannot be
// discovered.
type Route struct {
	Service  string
	Fallback string
}

// Gateway reverse-proxies the public API to the pipeline's services
type Gateway struct {
	resolve func(service, fallback string) string
	routes  []Route
	logger  *zap.Logger
	client  *http.Client

	mutex    sync.RWMutex
	proxies  map[string]*httputil.ReverseProxy
	services map[string]string
}

// New builds a gateway and resolves every route once. resolve returns the
// URL of a service or the given fallback.
func New(routes []Route, resolve func(service, fallback string) string, logger *zap.Logger) *Gateway {
	g := &Gateway{
		resolve:  resolve,
		routes:   routes,
		logger:   logger,
		client:   &http.Client{Timeout: 2 * time.Second},
		proxies:  make(map[string]*httputil.ReverseProxy),
		services: make(map[string]string),
	}

	g.discoverServices()
	return g
}

func (g *Gateway) discoverServices() {
	for _, route := range g.routes {
		g.updateProxy(route.Service, g.resolve(route.Service, route.Fallback))
	}
}

func (g *Gateway) updateProxy(serviceName, serviceURL string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.services[serviceName] == serviceURL {
		return
	}

	target, err := url.Parse(serviceURL)
	if err != nil {
		g.logger.Error("❌ Invalid service URL", zap.String("service", serviceName), zap.Error(err))
		return
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		g.logger.Error("❌ Proxy error", zap.String("service", serviceName), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error": "service unavailable"}`)
	}

	g.proxies[serviceName] = proxy
	g.services[serviceName] = serviceURL
	g.logger.Info("✅ Updated route", zap.String("service", serviceName), zap.String("url", serviceURL))
}

// Watch re-resolves the routes every interval until ctx is done
func (g *Gateway) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.discoverServices()
		}
	}
}

func (g *Gateway) getProxy(serviceName string) *httputil.ReverseProxy {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.proxies[serviceName]
}

// Proxy returns a handler forwarding requests to serviceName
func (g *Gateway) Proxy(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxy := g.getProxy(serviceName)
		if proxy == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": serviceName + " unavailable"})
			return
		}
		g.logger.Debug("🔀 Routing request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("service", serviceName),
		)
		proxy.ServeHTTP(c.Writer, c.Request)
	}
}

// HealthCheck reports the gateway healthy and each downstream service's
// /health result. Any unhealthy service makes the gateway "degraded".
func (g *Gateway) HealthCheck(c *gin.Context) {
	g.mutex.RLock()
	targets := make(map[string]string, len(g.services))
	for name, u := range g.services {
		targets[name] = u
	}
	g.mutex.RUnlock()

	statuses := make(map[string]string)
	allHealthy := true

	for name, u := range targets {
		req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, u+"/health", nil)
		if err != nil {
			statuses[name] = "unhealthy"
			allHealthy = false
			continue
		}
		resp, err := g.client.Do(req)
		if err != nil || resp.StatusCode != http.StatusOK {
			statuses[name] = "unhealthy"
			allHealthy = false
		} else {
			statuses[name] = "healthy"
		}
		if resp != nil {
			resp.Body.Close()
		}
	}

	status := "healthy"
	if !allHealthy {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"service":  "api-gateway",
		"services": statuses,
	})
}

// ListServices returns the current route table
func (g *Gateway) ListServices(c *gin.Context) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	names := make([]string, 0, len(g.services))
	for name := range g.services {
		names = append(names, name)
	}
	sort.Strings(names)

	routes := make([]gin.H, 0, len(names))
	for _, name := range names {
		routes = append(routes, gin.H{"service": name, "url": g.services[name]})
	}
	c.JSON(http.StatusOK, gin.H{"services": routes})
}

// RegisterRoutes mounts the public API
func (g *Gateway) RegisterRoutes(r gin.IRouter, orderService, inventoryService, notificationService string) {
	r.GET("/health", g.HealthCheck)
	r.GET("/services", g.ListServices)

	r.POST("/order", g.Proxy(orderService))
	r.Any("/orders", g.Proxy(orderService))
	r.Any("/orders/*path", g.Proxy(orderService))
	r.GET("/inventory", g.Proxy(inventoryService))
	r.GET("/notifications", g.Proxy(notificationService))
}
