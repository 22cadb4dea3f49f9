package discovery

import (
	"fmt"
	"net"
	"os"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

type ConsulClient struct {
	client *api.Client
	logger *zap.Logger
}

type ServiceConfig struct {
	Name string
	ID   string
	Port int
	Tags []string
}

func NewConsulClient(addr string, logger *zap.Logger) (*ConsulClient, error) {
	config := api.DefaultConfig()
	config.Address = addr

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}

	// Test connection
	if _, err := client.Agent().Self(); err != nil {
		return nil, fmt.Errorf("failed to connect to Consul: %w", err)
	}

	logger.Info("✅ Connected to Consul", zap.String("addr", addr))
	return &ConsulClient{client: client, logger: logger}, nil
}

// getOutboundIP gets the preferred outbound IP of this machine
func getOutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

// Register registers a service with an HTTP health check on /health
func (c *ConsulClient) Register(cfg ServiceConfig) error {
	hostIP := getOutboundIP()

	registration := &api.AgentServiceRegistration{
		ID:      cfg.ID,
		Name:    cfg.Name,
		Port:    cfg.Port,
		Address: hostIP,
		Tags:    cfg.Tags,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", hostIP, cfg.Port),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "30s",
		},
	}

	if err := c.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	c.logger.Info("✅ Registered service",
		zap.String("name", cfg.Name),
		zap.String("id", cfg.ID),
		zap.String("address", fmt.Sprintf("%s:%d", hostIP, cfg.Port)),
	)
	return nil
}

// Deregister removes a service from Consul
func (c *ConsulClient) Deregister(serviceID string) error {
	if err := c.client.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}

	c.logger.Info("✅ Deregistered service", zap.String("id", serviceID))
	return nil
}

// GetService returns a healthy instance of a service
func (c *ConsulClient) GetService(serviceName string) (string, int, error) {
	services, _, err := c.client.Health().Service(serviceName, "", true, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to get service: %w", err)
	}

	if len(services) == 0 {
		return "", 0, fmt.Errorf("no healthy instances of %s found", serviceName)
	}

	// Return first healthy instance
	service := services[0].Service
	address := service.Address
	if address == "" && services[0].Node != nil {
		address = services[0].Node.Address
	}
	if address == "" {
		address = "localhost"
	}

	return address, service.Port, nil
}

// GetServiceURL returns the full URL for a service
func (c *ConsulClient) GetServiceURL(serviceName string) (string, error) {
	address, port, err := c.GetService(serviceName)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("http://%s:%d", address, port), nil
}

// Resolver returns a function yielding the URL of serviceName, or fallback
// when the service cannot be resolved. A nil client always yields fallback.
func Resolver(c *ConsulClient, serviceName, fallback string) func() string {
	return func() string {
		if c == nil {
			return fallback
		}
		url, err := c.GetServiceURL(serviceName)
		if err != nil {
			c.logger.Debug("Service not resolved, using fallback",
				zap.String("service", serviceName),
				zap.String("fallback", fallback),
				zap.Error(err),
			)
			return fallback
		}
		return url
	}
}

// Connect returns a client for addr, or nil when addr is empty or Consul is
// unreachable. Services run without discovery in that case.
func Connect(addr string, logger *zap.Logger) *ConsulClient {
	if addr == "" {
		return nil
	}
	c, err := NewConsulClient(addr, logger)
	if err != nil {
		logger.Warn("⚠️ Consul unavailable, using static service URLs", zap.Error(err))
		return nil
	}
	return c
}

// ServiceID derives an instance id that is unique per host
func ServiceID(serviceName string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return serviceName + "-1"
	}
	return serviceName + "-" + host
}
