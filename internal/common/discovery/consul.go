package discovery

import (
	"fmt"

	"github.com/hashicorp/consul/api"
)

// 探测参数，gRPC / HTTP 两种 check 共用。
const (
	checkInterval   = "10s"
	checkTimeout    = "5s"
	checkDeregister = "30s" // 连续不健康这么久后由 Consul 摘除
)

// ServiceRegistry 往 Consul 注册/注销一个服务实例。
type ServiceRegistry struct {
	client    *api.Client
	serviceID string
	service   string
	address   string
	port      int
	tags      []string
	check     *api.AgentServiceCheck
}

func newRegistry(client *api.Client, serviceID, service, address string, port int, tags []string, check *api.AgentServiceCheck) *ServiceRegistry {
	check.Interval = checkInterval
	check.Timeout = checkTimeout
	check.DeregisterCriticalServiceAfter = checkDeregister
	return &ServiceRegistry{
		client:    client,
		serviceID: serviceID,
		service:   service,
		address:   address,
		port:      port,
		tags:      tags,
		check:     check,
	}
}

// NewServiceRegistry gRPC 健康检查（标准 grpc.health.v1 服务）。
func NewServiceRegistry(client *api.Client, serviceID, service, address string, port int, tags []string) *ServiceRegistry {
	return newRegistry(client, serviceID, service, address, port, tags, &api.AgentServiceCheck{
		GRPC: fmt.Sprintf("%s:%d", address, port),
	})
}

// NewHTTPServiceRegistry HTTP 健康检查，打 /healthz。
func NewHTTPServiceRegistry(client *api.Client, serviceID, service, address string, port int, tags []string) *ServiceRegistry {
	return newRegistry(client, serviceID, service, address, port, tags, &api.AgentServiceCheck{
		HTTP: fmt.Sprintf("http://%s:%d/healthz", address, port),
	})
}

// Register 注册服务实例。
func (r *ServiceRegistry) Register() error {
	return r.client.Agent().ServiceRegister(&api.AgentServiceRegistration{
		ID:      r.serviceID,
		Name:    r.service,
		Tags:    r.tags,
		Address: r.address,
		Port:    r.port,
		Check:   r.check,
	})
}

// Deregister 注销服务实例。
func (r *ServiceRegistry) Deregister() error {
	return r.client.Agent().ServiceDeregister(r.serviceID)
}

// NewConsulClient 创建 Consul 客户端。
func NewConsulClient(host string, port int) (*api.Client, error) {
	cfg := api.DefaultConfig()
	cfg.Address = fmt.Sprintf("%s:%d", host, port)
	return api.NewClient(cfg)
}
