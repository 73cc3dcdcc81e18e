package server

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/config"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/discovery"
	"github.com/camposesilvatopografia-beep/abastech-sub005/internal/common/logger"
)

// registerConsul 把服务实例注册到 Consul，返回注销函数。
// Consul 连不上或注册失败只告警，不阻塞服务启动；返回值永不为 nil，
// 调用方直接 defer 即可。
func registerConsul(cfg *config.Config, log logger.Logger, port int, httpCheck bool) func() {
	client, err := discovery.NewConsulClient(cfg.Consul.Host, cfg.Consul.Port)
	if err != nil {
		log.Warnf("failed to connect to Consul: %v", err)
		return func() {}
	}

	serviceID := fmt.Sprintf("%s-%s", cfg.Server.Name, uuid.New().String())
	var registry *discovery.ServiceRegistry
	if httpCheck {
		registry = discovery.NewHTTPServiceRegistry(client, serviceID, cfg.Server.Name, cfg.Server.Host, port, []string{"http"})
	} else {
		registry = discovery.NewServiceRegistry(client, serviceID, cfg.Server.Name, cfg.Server.Host, port, []string{"grpc"})
	}

	if err := registry.Register(); err != nil {
		log.Warnf("failed to register service to Consul: %v", err)
		return func() {}
	}
	log.Infof("service registered to Consul: %s", serviceID)

	return func() {
		if err := registry.Deregister(); err != nil {
			log.Warnf("failed to deregister service from Consul: %v", err)
		}
	}
}
